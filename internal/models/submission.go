package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Submission tracks one student's attempt at an assessment. A student
// can hold at most one submission per assessment, enforced by the
// composite unique index.
type Submission struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	AssessmentID  uint           `gorm:"not null;uniqueIndex:idx_assessment_student" json:"assessment_id"`
	StudentID     uint           `gorm:"not null;uniqueIndex:idx_assessment_student" json:"student_id"`
	Status        string         `gorm:"size:32;not null;default:in_progress" json:"status"`
	Answers       datatypes.JSON `json:"answers"`
	Score         *float64       `json:"score"`
	MaxScore      float64        `json:"max_score"`
	Grade         string         `gorm:"size:8" json:"grade"`
	Feedback      string         `gorm:"type:text" json:"feedback"`
	Breakdown     datatypes.JSON `json:"breakdown"`
	TopicAnalysis datatypes.JSON `json:"topic_analysis"`
	OverrideScore *float64       `json:"override_score"`
	StartedAt     time.Time      `json:"started_at"`
	SubmittedAt   *time.Time     `json:"submitted_at"`
	GradedAt      *time.Time     `json:"graded_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Assessment    Assessment     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// Submission lifecycle states. Transitions only move forward:
// in_progress -> submitted -> graded.
const (
	SubmissionStatusInProgress = "in_progress"
	SubmissionStatusSubmitted  = "submitted"
	SubmissionStatusGraded     = "graded"
)

// Answer is a student's response to a single question, matched by
// question identifier.
type Answer struct {
	QuestionID          string `json:"questionId"`
	SelectedOptionIndex *int   `json:"selectedOptionIndex,omitempty"`
	Text                string `json:"text,omitempty"`
}

// BreakdownItem reports the outcome for one question after grading.
// Missed concepts and the model answer come from the judge for open
// questions; for a wrong MCQ the model answer is the correct option.
type BreakdownItem struct {
	QuestionIndex  int      `json:"questionIndex"`
	PointsAwarded  float64  `json:"pointsAwarded"`
	MaxPoints      float64  `json:"maxPoints"`
	Correct        bool     `json:"correct"`
	Feedback       string   `json:"feedback,omitempty"`
	MissedConcepts []string `json:"missedConcepts,omitempty"`
	ModelAnswer    string   `json:"modelAnswer,omitempty"`
	Topic          string   `json:"topic,omitempty"`
}

// TopicStat aggregates per-topic performance across a submission.
type TopicStat struct {
	Earned  float64 `json:"earned"`
	Maximum float64 `json:"maximum"`
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
}

// IsGraded reports whether the submission carries a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// EffectiveScore returns the teacher override when present, otherwise
// the machine-assigned score.
func (s Submission) EffectiveScore() *float64 {
	if s.OverrideScore != nil {
		return s.OverrideScore
	}

	return s.Score
}

// DecodeAnswers unmarshals the stored answer list.
func (s Submission) DecodeAnswers() ([]Answer, error) {
	if len(s.Answers) == 0 {
		return nil, nil
	}

	var answers []Answer
	if err := json.Unmarshal(s.Answers, &answers); err != nil {
		return nil, err
	}

	return answers, nil
}

// ComputeGrade maps a score ratio onto a letter grade. A non-positive
// maximum yields "N/A" because the percentage is undefined.
func ComputeGrade(score, maxScore float64) string {
	if maxScore <= 0 {
		return "N/A"
	}

	percentage := score / maxScore * 100

	switch {
	case percentage >= 90:
		return "A+"
	case percentage >= 80:
		return "A"
	case percentage >= 70:
		return "B"
	case percentage >= 60:
		return "C"
	case percentage >= 50:
		return "D"
	default:
		return "F"
	}
}
