package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/edugrove/examgen-api/pkg/ai"
)

// ErrJudgeUnavailable indicates the semantic grader could not produce
// a verdict. Submissions stay in the submitted state when it fires.
var ErrJudgeUnavailable = errors.New("answer judge unavailable")

// JudgeItem is one open answer awaiting semantic evaluation.
type JudgeItem struct {
	QuestionIndex  int
	Question       string
	ExpectedAnswer string
	StudentAnswer  string
	MaxPoints      float64
}

// JudgeVerdict is the evaluation of one open answer. Points are
// proportional to how many expected key concepts the answer covers;
// the missed concepts and a model answer accompany the score.
type JudgeVerdict struct {
	QuestionIndex  int
	PointsAwarded  float64
	Correct        bool
	Feedback       string
	MissedConcepts []string
	ModelAnswer    string
}

// Judge evaluates open answers. The LLM implementation is the only
// production one; tests plug in deterministic doubles.
type Judge interface {
	Evaluate(ctx context.Context, items []JudgeItem) ([]JudgeVerdict, error)
}

const judgeSchema = `{
	"type": "object",
	"required": ["results"],
	"properties": {
		"results": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["questionIndex", "pointsAwarded"],
				"properties": {
					"questionIndex": {"type": "integer", "minimum": 0},
					"pointsAwarded": {"type": "number", "minimum": 0},
					"correct": {"type": "boolean"},
					"feedback": {"type": "string"},
					"missedConcepts": {"type": "array", "items": {"type": "string"}},
					"modelAnswer": {"type": "string"}
				}
			}
		}
	}
}`

type llmJudge struct {
	generator ai.Generator
	schema    *jsonschema.Schema
	logger    zerolog.Logger
}

// NewLLMJudge builds the production judge on top of a text generator.
func NewLLMJudge(generator ai.Generator, logger zerolog.Logger) (Judge, error) {
	schema, err := jsonschema.CompileString("judge.json", judgeSchema)
	if err != nil {
		return nil, fmt.Errorf("compile judge schema: %w", err)
	}

	return &llmJudge{
		generator: generator,
		schema:    schema,
		logger:    logger.With().Str("component", "judge").Logger(),
	}, nil
}

func (j *llmJudge) Evaluate(ctx context.Context, items []JudgeItem) ([]JudgeVerdict, error) {
	if len(items) == 0 {
		return nil, nil
	}

	content, err := j.generator.Complete(ctx, ai.CompletionRequest{
		System:   judgeSystemPrompt,
		Prompt:   buildJudgePrompt(items),
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJudgeUnavailable, err)
	}

	var payload any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed verdict: %v", ErrJudgeUnavailable, err)
	}
	if err := j.schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: invalid verdict: %v", ErrJudgeUnavailable, err)
	}

	var parsed struct {
		Results []struct {
			QuestionIndex  int      `json:"questionIndex"`
			PointsAwarded  float64  `json:"pointsAwarded"`
			Correct        bool     `json:"correct"`
			Feedback       string   `json:"feedback"`
			MissedConcepts []string `json:"missedConcepts"`
			ModelAnswer    string   `json:"modelAnswer"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJudgeUnavailable, err)
	}

	maxByIndex := make(map[int]float64, len(items))
	for _, item := range items {
		maxByIndex[item.QuestionIndex] = item.MaxPoints
	}

	verdicts := make([]JudgeVerdict, 0, len(parsed.Results))
	for _, result := range parsed.Results {
		max, known := maxByIndex[result.QuestionIndex]
		if !known {
			j.logger.Warn().Int("question_index", result.QuestionIndex).Msg("verdict for unknown question discarded")
			continue
		}

		points := result.PointsAwarded
		if points < 0 {
			points = 0
		}
		if points > max {
			points = max
		}

		verdicts = append(verdicts, JudgeVerdict{
			QuestionIndex:  result.QuestionIndex,
			PointsAwarded:  points,
			Correct:        result.Correct,
			Feedback:       result.Feedback,
			MissedConcepts: result.MissedConcepts,
			ModelAnswer:    result.ModelAnswer,
		})
	}

	return verdicts, nil
}

const judgeSystemPrompt = "You are a strict but fair grader. Award points for each answer in proportion " +
	"to how many of the expected key concepts it covers. List the expected concepts the answer missed " +
	"and write a short model answer for the student. Respond with a single JSON object."

func buildJudgePrompt(items []JudgeItem) string {
	var builder strings.Builder
	builder.WriteString("Grade the following answers.\n")

	for _, item := range items {
		fmt.Fprintf(&builder, "\n[%d] Question: %s\n", item.QuestionIndex, item.Question)
		fmt.Fprintf(&builder, "Expected key concepts: %s\n", item.ExpectedAnswer)
		fmt.Fprintf(&builder, "Maximum points: %.0f\n", item.MaxPoints)
		fmt.Fprintf(&builder, "Student answer: %s\n", item.StudentAnswer)
	}

	builder.WriteString("\nReturn JSON: {\"results\": [{\"questionIndex\", \"pointsAwarded\", \"correct\", \"feedback\", \"missedConcepts\", \"modelAnswer\"}]}")

	return builder.String()
}
