package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/edugrove/examgen-api/internal/dto"
	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/internal/repository"
)

// Assessment service errors.
var (
	ErrAssessmentNotFound   = errors.New("assessment not found")
	ErrNotAssessmentOwner   = errors.New("assessment belongs to another teacher")
	ErrInvalidStatusChange  = errors.New("invalid assessment status change")
	ErrInvalidQuestionSet   = errors.New("invalid question set")
	ErrAssessmentNotVisible = errors.New("assessment is not available")
)

// AssessmentService manages quiz definitions and their lifecycle.
type AssessmentService interface {
	Create(ctx context.Context, payload dto.AssessmentCreateRequest, grounded bool, teacherID uint) (dto.AssessmentResponse, error)
	Update(ctx context.Context, id uint, payload dto.AssessmentUpdateRequest, teacherID uint) (dto.AssessmentResponse, error)
	List(ctx context.Context, role string, materialID *uint, page, pageSize int) ([]dto.AssessmentResponse, int64, error)
	Get(ctx context.Context, id uint, role string) (dto.AssessmentResponse, error)
	Delete(ctx context.Context, id uint, teacherID uint) error
	PublishResults(ctx context.Context, id uint, published bool, teacherID uint) (dto.AssessmentResponse, error)
}

type assessmentService struct {
	assessments repository.AssessmentRepository
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewAssessmentService constructs an AssessmentService instance.
func NewAssessmentService(assessments repository.AssessmentRepository, validate *validator.Validate, logger zerolog.Logger) AssessmentService {
	return &assessmentService{
		assessments: assessments,
		validator:   validate,
		logger:      logger.With().Str("component", "assessment_service").Logger(),
	}
}

func (s *assessmentService) Create(ctx context.Context, payload dto.AssessmentCreateRequest, grounded bool, teacherID uint) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assignQuestionIDs(payload.Questions)
	if err := validateQuestions(payload.Questions); err != nil {
		return dto.AssessmentResponse{}, err
	}

	questions, err := dto.EncodeQuestions(payload.Questions)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	materialIDs, err := dto.EncodeMaterialIDs(payload.MaterialIDs)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment := models.Assessment{
		Title:           payload.Title,
		Description:     payload.Description,
		Topic:           payload.Topic,
		TeacherID:       teacherID,
		MaterialIDs:     materialIDs,
		Questions:       questions,
		Status:          models.AssessmentStatusDraft,
		DurationMinutes: payload.DurationMinutes,
		Grounded:        grounded,
	}

	if payload.DueDate != nil {
		due, err := time.Parse(time.RFC3339, *payload.DueDate)
		if err != nil {
			return dto.AssessmentResponse{}, fmt.Errorf("invalid due date: %w", err)
		}
		assessment.DueDate = &due
	}

	if err := s.assessments.Create(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.logger.Info().Uint("assessment_id", assessment.ID).Uint("teacher_id", teacherID).Msg("assessment created")

	return dto.NewAssessmentResponse(assessment, false), nil
}

func (s *assessmentService) Update(ctx context.Context, id uint, payload dto.AssessmentUpdateRequest, teacherID uint) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment, err := s.ownedAssessment(ctx, id, teacherID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	if payload.Title != nil {
		assessment.Title = *payload.Title
	}
	if payload.Description != nil {
		assessment.Description = *payload.Description
	}
	if payload.Topic != nil {
		assessment.Topic = *payload.Topic
	}
	if payload.DurationMinutes != nil {
		assessment.DurationMinutes = *payload.DurationMinutes
	}
	if payload.DueDate != nil {
		due, err := time.Parse(time.RFC3339, *payload.DueDate)
		if err != nil {
			return dto.AssessmentResponse{}, fmt.Errorf("invalid due date: %w", err)
		}
		assessment.DueDate = &due
	}

	if payload.Questions != nil {
		// Question edits are only allowed before publication so active
		// submissions always grade against the questions students saw.
		if assessment.Status != models.AssessmentStatusDraft {
			return dto.AssessmentResponse{}, fmt.Errorf("%w: questions are frozen after publication", ErrInvalidStatusChange)
		}
		assignQuestionIDs(*payload.Questions)
		if err := validateQuestions(*payload.Questions); err != nil {
			return dto.AssessmentResponse{}, err
		}
		encoded, err := dto.EncodeQuestions(*payload.Questions)
		if err != nil {
			return dto.AssessmentResponse{}, err
		}
		assessment.Questions = encoded
	}

	if payload.Status != nil {
		if err := validateStatusChange(assessment.Status, *payload.Status); err != nil {
			return dto.AssessmentResponse{}, err
		}
		assessment.Status = *payload.Status
	}

	if err := s.assessments.Update(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	return dto.NewAssessmentResponse(assessment, false), nil
}

func (s *assessmentService) List(ctx context.Context, role string, materialID *uint, page, pageSize int) ([]dto.AssessmentResponse, int64, error) {
	redact := role != models.RoleTeacher

	if materialID != nil {
		assessments, err := s.assessments.ListByMaterial(ctx, *materialID)
		if err != nil {
			return nil, 0, err
		}
		if redact {
			assessments = publishedOnly(assessments)
		}
		return dto.NewAssessmentResponseSlice(assessments, redact), int64(len(assessments)), nil
	}

	filter := repository.AssessmentFilter{Page: page, PageSize: pageSize}
	if redact {
		filter.Status = models.AssessmentStatusPublished
	}

	assessments, total, err := s.assessments.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return dto.NewAssessmentResponseSlice(assessments, redact), total, nil
}

func publishedOnly(assessments []models.Assessment) []models.Assessment {
	var visible []models.Assessment
	for _, assessment := range assessments {
		if assessment.Status == models.AssessmentStatusPublished {
			visible = append(visible, assessment)
		}
	}

	return visible
}

func (s *assessmentService) Get(ctx context.Context, id uint, role string) (dto.AssessmentResponse, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentResponse{}, ErrAssessmentNotFound
		}
		return dto.AssessmentResponse{}, err
	}

	redact := role != models.RoleTeacher
	if redact && assessment.Status == models.AssessmentStatusDraft {
		return dto.AssessmentResponse{}, ErrAssessmentNotVisible
	}

	return dto.NewAssessmentResponse(assessment, redact), nil
}

func (s *assessmentService) Delete(ctx context.Context, id uint, teacherID uint) error {
	if _, err := s.ownedAssessment(ctx, id, teacherID); err != nil {
		return err
	}

	if err := s.assessments.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssessmentNotFound
		}
		return err
	}

	s.logger.Info().Uint("assessment_id", id).Msg("assessment deleted")

	return nil
}

func (s *assessmentService) PublishResults(ctx context.Context, id uint, published bool, teacherID uint) (dto.AssessmentResponse, error) {
	assessment, err := s.ownedAssessment(ctx, id, teacherID)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment.ResultsPublished = published
	if err := s.assessments.Update(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.logger.Info().Uint("assessment_id", id).Bool("published", published).Msg("results visibility changed")

	return dto.NewAssessmentResponse(assessment, false), nil
}

func (s *assessmentService) ownedAssessment(ctx context.Context, id, teacherID uint) (models.Assessment, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}

	if assessment.TeacherID != teacherID {
		return models.Assessment{}, ErrNotAssessmentOwner
	}

	return assessment, nil
}

// assignQuestionIDs stamps identifiers onto questions submitted
// without one, using the generator's scheme. Grading matches answers
// to questions by these identifiers.
func assignQuestionIDs(questions []models.Question) {
	stamp := time.Now().UnixMilli()
	for i := range questions {
		if strings.TrimSpace(questions[i].ID) == "" {
			questions[i].ID = fmt.Sprintf("q_%d_%d", stamp, i)
		}
	}
}

// validateQuestions enforces the structural rules the generator also
// guarantees, so hand-authored quizzes meet the same contract.
func validateQuestions(questions []models.Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrInvalidQuestionSet)
	}

	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question %d is missing an id", ErrInvalidQuestionSet, i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidQuestionSet, q.ID)
		}
		seen[q.ID] = struct{}{}

		switch q.Type {
		case models.QuestionTypeMCQ:
			if len(q.Options) != 4 {
				return fmt.Errorf("%w: question %d must have exactly 4 options", ErrInvalidQuestionSet, i)
			}
			if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex > 3 {
				return fmt.Errorf("%w: question %d has an out of range answer index", ErrInvalidQuestionSet, i)
			}
		case models.QuestionTypeOpen:
			if q.ExpectedAnswer == "" {
				return fmt.Errorf("%w: question %d is missing expected key concepts", ErrInvalidQuestionSet, i)
			}
		default:
			return fmt.Errorf("%w: question %d has unknown type %q", ErrInvalidQuestionSet, i, q.Type)
		}

		if q.Prompt == "" {
			return fmt.Errorf("%w: question %d has an empty prompt", ErrInvalidQuestionSet, i)
		}
		if q.MaxPoints <= 0 {
			return fmt.Errorf("%w: question %d has non-positive points", ErrInvalidQuestionSet, i)
		}
	}

	return nil
}

// validateStatusChange keeps the lifecycle monotonic.
func validateStatusChange(current, next string) error {
	allowed := map[string][]string{
		models.AssessmentStatusDraft:     {models.AssessmentStatusPublished},
		models.AssessmentStatusPublished: {models.AssessmentStatusClosed},
		models.AssessmentStatusClosed:    {},
	}

	if current == next {
		return nil
	}

	for _, candidate := range allowed[current] {
		if candidate == next {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, current, next)
}
