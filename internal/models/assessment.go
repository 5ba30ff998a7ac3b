package models

import (
	"encoding/json"
	"math"
	"time"

	"gorm.io/datatypes"
)

// Assessment is a quiz built from indexed materials. Its questions are
// stored as a JSON column because their shape is produced and consumed
// whole; individual questions are never queried relationally.
type Assessment struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Title            string         `gorm:"size:255;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	Topic            string         `gorm:"size:255;not null" json:"topic"`
	TeacherID        uint           `gorm:"not null;index" json:"teacher_id"`
	MaterialIDs      datatypes.JSON `json:"material_ids"`
	Questions        datatypes.JSON `json:"questions"`
	Status           string         `gorm:"size:32;not null;default:draft" json:"status"`
	ResultsPublished bool           `gorm:"not null;default:false" json:"results_published"`
	DurationMinutes  int            `json:"duration_minutes"`
	DueDate          *time.Time     `json:"due_date"`
	Grounded         bool           `gorm:"not null;default:false" json:"grounded"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

const (
	// AssessmentStatusDraft means the quiz is editable and hidden from students.
	AssessmentStatusDraft = "draft"
	// AssessmentStatusPublished means students may start submissions.
	AssessmentStatusPublished = "published"
	// AssessmentStatusClosed means no new submissions are accepted.
	AssessmentStatusClosed = "closed"
)

// Question types. Multiple choice questions are graded deterministically;
// open questions go through the LLM judge.
const (
	QuestionTypeMCQ  = "MCQ"
	QuestionTypeOpen = "DESCRIPTIVE"
)

// Default point weights per question type.
const (
	PointsMCQ  = 5.0
	PointsOpen = 10.0
)

// Question difficulty tiers.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Question is a single quiz item. MCQ questions carry exactly four
// options and a zero-based correct index; open questions carry the key
// concepts an answer is expected to cover.
type Question struct {
	ID                 string   `json:"id"`
	Type               string   `json:"type"`
	Prompt             string   `json:"question"`
	Options            []string `json:"options,omitempty"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	ExpectedAnswer     string   `json:"expectedAnswer,omitempty"`
	Topic              string   `json:"topic,omitempty"`
	Difficulty         string   `json:"difficulty,omitempty"`
	MaxPoints          float64  `json:"maxPoints"`
}

// IsOpen reports whether the question needs semantic grading.
func (q Question) IsOpen() bool {
	return q.Type == QuestionTypeOpen
}

// DecodeQuestions unmarshals the stored question list.
func (a Assessment) DecodeQuestions() ([]Question, error) {
	if len(a.Questions) == 0 {
		return nil, nil
	}

	var questions []Question
	if err := json.Unmarshal(a.Questions, &questions); err != nil {
		return nil, err
	}

	return questions, nil
}

// DecodeMaterialIDs unmarshals the referenced material identifiers.
func (a Assessment) DecodeMaterialIDs() ([]uint, error) {
	if len(a.MaterialIDs) == 0 {
		return nil, nil
	}

	var ids []uint
	if err := json.Unmarshal(a.MaterialIDs, &ids); err != nil {
		return nil, err
	}

	return ids, nil
}

// MaxScore sums the point weights of all questions.
func MaxScore(questions []Question) float64 {
	var total float64
	for _, q := range questions {
		total += q.MaxPoints
	}

	return total
}

// SplitCounts returns how many MCQ and open questions a quiz of the
// given size should contain. The MCQ share is rounded to nearest so a
// five question quiz yields three MCQ and two open questions.
func SplitCounts(total int) (mcq, open int) {
	if total <= 0 {
		return 0, 0
	}

	mcq = int(math.Round(float64(total) * 0.6))
	if mcq > total {
		mcq = total
	}

	return mcq, total - mcq
}
