package dto

import (
	"encoding/json"
	"time"

	"github.com/edugrove/examgen-api/internal/models"
)

// AssessmentCreateRequest describes the payload for creating an assessment.
// Questions may be supplied directly or produced through quiz generation.
type AssessmentCreateRequest struct {
	Title           string            `json:"title" validate:"required,min=3"`
	Description     string            `json:"description" validate:"omitempty,min=10"`
	Topic           string            `json:"topic" validate:"required,min=2"`
	MaterialIDs     []uint            `json:"material_ids" validate:"omitempty,dive,gt=0"`
	Questions       []models.Question `json:"questions" validate:"omitempty,min=1,dive"`
	DurationMinutes int               `json:"duration_minutes" validate:"omitempty,gt=0"`
	DueDate         *string           `json:"due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// AssessmentUpdateRequest describes the payload for updating an assessment.
type AssessmentUpdateRequest struct {
	Title           *string            `json:"title" validate:"omitempty,min=3"`
	Description     *string            `json:"description" validate:"omitempty,min=10"`
	Topic           *string            `json:"topic" validate:"omitempty,min=2"`
	Questions       *[]models.Question `json:"questions" validate:"omitempty,min=1,dive"`
	Status          *string            `json:"status" validate:"omitempty,oneof=draft published closed"`
	DurationMinutes *int               `json:"duration_minutes" validate:"omitempty,gt=0"`
	DueDate         *string            `json:"due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// PublishResultsRequest toggles whether graded scores are visible to students.
type PublishResultsRequest struct {
	Published bool `json:"published"`
}

// AssessmentResponse is the serialized assessment returned to API clients.
// Answer keys are stripped when the caller is a student.
type AssessmentResponse struct {
	ID               uint              `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Topic            string            `json:"topic"`
	TeacherID        uint              `json:"teacher_id"`
	MaterialIDs      []uint            `json:"material_ids"`
	Questions        []models.Question `json:"questions"`
	Status           string            `json:"status"`
	ResultsPublished bool              `json:"results_published"`
	DurationMinutes  int               `json:"duration_minutes"`
	DueDate          *time.Time        `json:"due_date"`
	Grounded         bool              `json:"grounded"`
	MaxScore         float64           `json:"max_score"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// NewAssessmentResponse converts a model into a DTO. When redact is true
// the correct option index and expected answer are removed from each
// question so students cannot read the answer key.
func NewAssessmentResponse(model models.Assessment, redact bool) AssessmentResponse {
	questions, _ := model.DecodeQuestions()
	materialIDs, _ := model.DecodeMaterialIDs()

	response := AssessmentResponse{
		ID:               model.ID,
		Title:            model.Title,
		Description:      model.Description,
		Topic:            model.Topic,
		TeacherID:        model.TeacherID,
		MaterialIDs:      materialIDs,
		Questions:        questions,
		Status:           model.Status,
		ResultsPublished: model.ResultsPublished,
		DurationMinutes:  model.DurationMinutes,
		DueDate:          model.DueDate,
		Grounded:         model.Grounded,
		MaxScore:         models.MaxScore(questions),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}

	if redact {
		for i := range response.Questions {
			response.Questions[i].CorrectOptionIndex = -1
			response.Questions[i].ExpectedAnswer = ""
		}
	}

	return response
}

// NewAssessmentResponseSlice converts models into DTOs with shared redaction.
func NewAssessmentResponseSlice(assessments []models.Assessment, redact bool) []AssessmentResponse {
	responses := make([]AssessmentResponse, 0, len(assessments))
	for _, assessment := range assessments {
		responses = append(responses, NewAssessmentResponse(assessment, redact))
	}

	return responses
}

// EncodeQuestions marshals questions for JSON column storage.
func EncodeQuestions(questions []models.Question) ([]byte, error) {
	return json.Marshal(questions)
}

// EncodeMaterialIDs marshals material identifiers for JSON column storage.
func EncodeMaterialIDs(ids []uint) ([]byte, error) {
	if ids == nil {
		ids = []uint{}
	}

	return json.Marshal(ids)
}
