package dto

import "github.com/edugrove/examgen-api/internal/models"

// QuizGenerateRequest asks the generator for a new question set.
type QuizGenerateRequest struct {
	Topic         string   `json:"topic" validate:"required,min=2"`
	QuestionCount int      `json:"question_count" validate:"required,gt=0,lte=50"`
	Difficulty    string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	MaterialIDs   []uint   `json:"material_ids" validate:"omitempty,dive,gt=0"`
	AvoidPrompts  []string `json:"avoid_prompts" validate:"omitempty,dive,min=1"`
}

// QuizGenerateResponse returns the generated questions. Grounded
// confirms they were backed by material context; generation refuses to
// run without it.
type QuizGenerateResponse struct {
	Questions []models.Question `json:"questions"`
	Grounded  bool              `json:"grounded"`
	MaxScore  float64           `json:"max_score"`
}

// ChatRequest is a question for the study assistant.
type ChatRequest struct {
	Question string `json:"question" validate:"required,min=2,max=2000"`
}

// ChatResponse carries the assistant's answer.
type ChatResponse struct {
	Answer   string `json:"answer"`
	Grounded bool   `json:"grounded"`
}
