package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/edugrove/examgen-api/internal/dto"
	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/internal/repository"
)

// Submission service errors.
var (
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrNotSubmissionOwner  = errors.New("submission belongs to another student")
	ErrAlreadySubmitted    = errors.New("assessment already submitted")
	ErrAlreadyGraded       = errors.New("submission has already been graded")
	ErrAssessmentNotOpen   = errors.New("assessment is not accepting submissions")
	ErrSubmissionNotActive = errors.New("submission is not in progress")
	ErrUnknownQuestion     = errors.New("answer references an unknown question")
)

// SubmissionService runs the submission lifecycle from start through grading.
type SubmissionService interface {
	Start(ctx context.Context, payload dto.SubmissionStartRequest, studentID uint) (dto.SubmissionResponse, error)
	Submit(ctx context.Context, id uint, payload dto.SubmissionSubmitRequest, studentID uint) (dto.SubmissionResponse, error)
	Regrade(ctx context.Context, id uint) (dto.SubmissionResponse, error)
	Override(ctx context.Context, id uint, payload dto.SubmissionOverrideRequest) (dto.SubmissionResponse, error)
	List(ctx context.Context, filter dto.SubmissionFilter, role string, userID uint) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint, role string, userID uint) (dto.SubmissionResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	grader      GradingEngine
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(submissions repository.SubmissionRepository, assessments repository.AssessmentRepository, grader GradingEngine, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: submissions,
		assessments: assessments,
		grader:      grader,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

func (s *submissionService) Start(ctx context.Context, payload dto.SubmissionStartRequest, studentID uint) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	assessment, err := s.assessments.GetByID(ctx, payload.AssessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrAssessmentNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if err := s.checkOpen(assessment); err != nil {
		return dto.SubmissionResponse{}, err
	}

	// Starting twice is idempotent while the attempt is still open.
	existing, err := s.submissions.GetByAssessmentAndStudent(ctx, payload.AssessmentID, studentID)
	if err == nil {
		if existing.Status != models.SubmissionStatusInProgress {
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		return dto.NewSubmissionResponse(existing, true), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.SubmissionResponse{}, err
	}

	questions, err := assessment.DecodeQuestions()
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		AssessmentID: payload.AssessmentID,
		StudentID:    studentID,
		Status:       models.SubmissionStatusInProgress,
		MaxScore:     models.MaxScore(questions),
		StartedAt:    s.now(),
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().Uint("submission_id", submission.ID).Uint("assessment_id", payload.AssessmentID).Msg("submission started")

	return dto.NewSubmissionResponse(submission, true), nil
}

func (s *submissionService) Submit(ctx context.Context, id uint, payload dto.SubmissionSubmitRequest, studentID uint) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if submission.StudentID != studentID {
		return dto.SubmissionResponse{}, ErrNotSubmissionOwner
	}
	if submission.Status != models.SubmissionStatusInProgress {
		return dto.SubmissionResponse{}, ErrAlreadySubmitted
	}

	assessment, err := s.assessments.GetByID(ctx, submission.AssessmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	questions, err := assessment.DecodeQuestions()
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}
	for _, answer := range payload.Answers {
		if !known[answer.QuestionID] {
			return dto.SubmissionResponse{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, answer.QuestionID)
		}
	}

	encoded, err := json.Marshal(payload.Answers)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submittedAt := s.now()
	submission.Answers = encoded
	submission.Status = models.SubmissionStatusSubmitted
	submission.SubmittedAt = &submittedAt

	// The transition is conditional on the attempt still being in
	// progress, so a racing submit cannot finalize the same attempt
	// twice.
	if err := s.submissions.UpdateIfStatus(ctx, &submission, models.SubmissionStatusInProgress); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		return dto.SubmissionResponse{}, err
	}

	// A grading failure leaves the submission in the submitted state
	// with its answers persisted; a later regrade picks them up. The
	// failure itself still reaches the caller.
	if err := s.grade(ctx, &submission, assessment.Topic, questions, payload.Answers); err != nil {
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("grading failed, submission kept as submitted")
		return dto.SubmissionResponse{}, err
	}

	hideResults := !assessment.ResultsPublished
	return dto.NewSubmissionResponse(submission, hideResults), nil
}

func (s *submissionService) Regrade(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	// Regrading only recovers submissions whose grading failed. A
	// graded submission keeps its score; teachers adjust it through an
	// override instead.
	switch submission.Status {
	case models.SubmissionStatusInProgress:
		return dto.SubmissionResponse{}, ErrSubmissionNotActive
	case models.SubmissionStatusGraded:
		return dto.SubmissionResponse{}, ErrAlreadyGraded
	}

	assessment, err := s.assessments.GetByID(ctx, submission.AssessmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	questions, err := assessment.DecodeQuestions()
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	answers, err := submission.DecodeAnswers()
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.grade(ctx, &submission, assessment.Topic, questions, answers); err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission, false), nil
}

func (s *submissionService) grade(ctx context.Context, submission *models.Submission, topic string, questions []models.Question, answers []models.Answer) error {
	outcome, err := s.grader.Grade(ctx, topic, questions, answers)
	if err != nil {
		return err
	}

	breakdown, err := json.Marshal(outcome.Breakdown)
	if err != nil {
		return err
	}
	topics, err := json.Marshal(outcome.TopicAnalysis)
	if err != nil {
		return err
	}

	gradedAt := s.now()
	submission.Score = &outcome.Score
	submission.MaxScore = outcome.MaxScore
	submission.Grade = outcome.Grade
	submission.Feedback = outcome.Feedback
	submission.Breakdown = breakdown
	submission.TopicAnalysis = topics
	submission.Status = models.SubmissionStatusGraded
	submission.GradedAt = &gradedAt

	// Conditional on the submitted state so a submission is graded at
	// most once even when two regrades race.
	if err := s.submissions.UpdateIfStatus(ctx, submission, models.SubmissionStatusSubmitted); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAlreadyGraded
		}
		return err
	}

	return nil
}

func (s *submissionService) Override(ctx context.Context, id uint, payload dto.SubmissionOverrideRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if submission.Status == models.SubmissionStatusInProgress {
		return dto.SubmissionResponse{}, ErrSubmissionNotActive
	}

	if payload.Score > submission.MaxScore {
		return dto.SubmissionResponse{}, fmt.Errorf("override score %.1f exceeds maximum %.1f", payload.Score, submission.MaxScore)
	}

	gradedAt := s.now()
	submission.OverrideScore = &payload.Score
	submission.Grade = models.ComputeGrade(payload.Score, submission.MaxScore)
	if payload.Feedback != "" {
		submission.Feedback = payload.Feedback
	}
	submission.Status = models.SubmissionStatusGraded
	if submission.GradedAt == nil {
		submission.GradedAt = &gradedAt
	}

	if err := s.submissions.Update(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().Uint("submission_id", id).Float64("score", payload.Score).Msg("score overridden")

	return dto.NewSubmissionResponse(submission, false), nil
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter, role string, userID uint) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	repoFilter := repository.SubmissionFilter{
		AssessmentID: filter.AssessmentID,
		StudentID:    filter.StudentID,
	}
	if filter.Status != nil {
		repoFilter.Status = *filter.Status
	}

	// Students can only list their own submissions.
	if role != models.RoleTeacher {
		repoFilter.StudentID = &userID
	}

	submissions, err := s.submissions.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	hideResults := role != models.RoleTeacher
	if hideResults {
		return s.withPerAssessmentVisibility(ctx, submissions)
	}

	return dto.NewSubmissionResponseSlice(submissions, false), nil
}

func (s *submissionService) Get(ctx context.Context, id uint, role string, userID uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if role == models.RoleTeacher {
		return dto.NewSubmissionResponse(submission, false), nil
	}

	if submission.StudentID != userID {
		return dto.SubmissionResponse{}, ErrNotSubmissionOwner
	}

	assessment, err := s.assessments.GetByID(ctx, submission.AssessmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission, !assessment.ResultsPublished), nil
}

func (s *submissionService) withPerAssessmentVisibility(ctx context.Context, submissions []models.Submission) ([]dto.SubmissionResponse, error) {
	published := make(map[uint]bool)

	responses := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		visible, seen := published[submission.AssessmentID]
		if !seen {
			assessment, err := s.assessments.GetByID(ctx, submission.AssessmentID)
			if err != nil {
				return nil, err
			}
			visible = assessment.ResultsPublished
			published[submission.AssessmentID] = visible
		}
		responses = append(responses, dto.NewSubmissionResponse(submission, !visible))
	}

	return responses, nil
}

func (s *submissionService) checkOpen(assessment models.Assessment) error {
	if assessment.Status != models.AssessmentStatusPublished {
		return ErrAssessmentNotOpen
	}
	if assessment.DueDate != nil && s.now().After(*assessment.DueDate) {
		return ErrAssessmentNotOpen
	}
	return nil
}
