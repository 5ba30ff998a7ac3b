package dto

import (
	"encoding/json"
	"time"

	"github.com/edugrove/examgen-api/internal/models"
)

// SubmissionStartRequest opens a submission for an assessment.
type SubmissionStartRequest struct {
	AssessmentID uint `json:"assessment_id" validate:"required,gt=0"`
}

// SubmissionSubmitRequest carries the student's final answers.
type SubmissionSubmitRequest struct {
	Answers []models.Answer `json:"answers" validate:"required,min=1,dive"`
}

// SubmissionOverrideRequest lets a teacher replace the machine score.
type SubmissionOverrideRequest struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback" validate:"omitempty,min=3"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssessmentID *uint   `query:"assessment_id"`
	StudentID    *uint   `query:"student_id"`
	Status       *string `query:"status" validate:"omitempty,oneof=in_progress submitted graded"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
// Score fields are withheld for students until results are published.
type SubmissionResponse struct {
	ID            uint                              `json:"id"`
	AssessmentID  uint                              `json:"assessment_id"`
	StudentID     uint                              `json:"student_id"`
	Status        string                            `json:"status"`
	Answers       []models.Answer                   `json:"answers,omitempty"`
	Score         *float64                          `json:"score,omitempty"`
	MaxScore      float64                           `json:"max_score"`
	Grade         string                            `json:"grade,omitempty"`
	Feedback      string                            `json:"feedback,omitempty"`
	Breakdown     []models.BreakdownItem            `json:"breakdown,omitempty"`
	TopicAnalysis map[string]models.TopicStat       `json:"topic_analysis,omitempty"`
	OverrideScore *float64                          `json:"override_score,omitempty"`
	StartedAt     time.Time                         `json:"started_at"`
	SubmittedAt   *time.Time                        `json:"submitted_at"`
	GradedAt      *time.Time                        `json:"graded_at"`
}

// NewSubmissionResponse converts a model into a DTO. When hideResults is
// true the grading outcome is stripped so unpublished scores stay private.
func NewSubmissionResponse(model models.Submission, hideResults bool) SubmissionResponse {
	response := SubmissionResponse{
		ID:           model.ID,
		AssessmentID: model.AssessmentID,
		StudentID:    model.StudentID,
		Status:       model.Status,
		MaxScore:     model.MaxScore,
		StartedAt:    model.StartedAt,
		SubmittedAt:  model.SubmittedAt,
	}

	answers, _ := model.DecodeAnswers()
	response.Answers = answers

	if hideResults {
		return response
	}

	response.Score = model.EffectiveScore()
	response.Grade = model.Grade
	response.Feedback = model.Feedback
	response.OverrideScore = model.OverrideScore
	response.GradedAt = model.GradedAt

	if len(model.Breakdown) > 0 {
		_ = json.Unmarshal(model.Breakdown, &response.Breakdown)
	}
	if len(model.TopicAnalysis) > 0 {
		_ = json.Unmarshal(model.TopicAnalysis, &response.TopicAnalysis)
	}

	return response
}

// NewSubmissionResponseSlice converts models into DTOs with shared visibility.
func NewSubmissionResponseSlice(submissions []models.Submission, hideResults bool) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission, hideResults))
	}

	return responses
}
