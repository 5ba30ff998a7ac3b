package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edugrove/examgen-api/internal/models"
)

// GradeOutcome is the complete result of grading one submission.
type GradeOutcome struct {
	Score         float64
	MaxScore      float64
	Grade         string
	Feedback      string
	Breakdown     []models.BreakdownItem
	TopicAnalysis map[string]models.TopicStat
}

// GradingEngine scores a set of answers against the quiz questions.
// The topic is the assessment's overall subject; questions without a
// topic label of their own are grouped under it in the analysis.
type GradingEngine interface {
	Grade(ctx context.Context, topic string, questions []models.Question, answers []models.Answer) (GradeOutcome, error)
}

type gradingEngine struct {
	judge  Judge
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGradingEngine builds the engine. Multiple choice answers are
// scored locally; open answers are delegated to the judge.
func NewGradingEngine(judge Judge, logger zerolog.Logger) GradingEngine {
	return &gradingEngine{
		judge:  judge,
		tracer: otel.Tracer("github.com/edugrove/examgen-api/internal/service/grading"),
		logger: logger.With().Str("component", "grading_engine").Logger(),
	}
}

func (g *gradingEngine) Grade(parent context.Context, topic string, questions []models.Question, answers []models.Answer) (GradeOutcome, error) {
	ctx, span := g.tracer.Start(parent, "grading.grade", trace.WithAttributes(
		attribute.Int("questions", len(questions)),
	))
	defer span.End()

	answerByID := make(map[string]models.Answer, len(answers))
	for _, answer := range answers {
		answerByID[answer.QuestionID] = answer
	}

	breakdown := make([]models.BreakdownItem, len(questions))
	var judgeItems []JudgeItem

	for i, question := range questions {
		item := models.BreakdownItem{
			QuestionIndex: i,
			MaxPoints:     question.MaxPoints,
			Topic:         question.Topic,
		}

		answer, answered := answerByID[question.ID]

		switch {
		case !question.IsOpen():
			if answered && answer.SelectedOptionIndex != nil && *answer.SelectedOptionIndex == question.CorrectOptionIndex {
				item.PointsAwarded = question.MaxPoints
				item.Correct = true
			} else {
				item.Feedback = fmt.Sprintf("Correct answer: option %d", question.CorrectOptionIndex+1)
				if question.CorrectOptionIndex >= 0 && question.CorrectOptionIndex < len(question.Options) {
					item.ModelAnswer = question.Options[question.CorrectOptionIndex]
				}
			}

		case !answered || strings.TrimSpace(answer.Text) == "":
			// A blank open answer never reaches the judge.
			item.Feedback = "No answer provided"

		default:
			judgeItems = append(judgeItems, JudgeItem{
				QuestionIndex:  i,
				Question:       question.Prompt,
				ExpectedAnswer: question.ExpectedAnswer,
				StudentAnswer:  answer.Text,
				MaxPoints:      question.MaxPoints,
			})
		}

		breakdown[i] = item
	}

	// The judge is only consulted when there is something to judge; an
	// all-MCQ submission grades without any model call.
	if len(judgeItems) > 0 {
		verdicts, err := g.judge.Evaluate(ctx, judgeItems)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return GradeOutcome{}, err
		}

		for _, verdict := range verdicts {
			if verdict.QuestionIndex < 0 || verdict.QuestionIndex >= len(breakdown) {
				continue
			}
			breakdown[verdict.QuestionIndex].PointsAwarded = verdict.PointsAwarded
			breakdown[verdict.QuestionIndex].Correct = verdict.Correct
			breakdown[verdict.QuestionIndex].Feedback = verdict.Feedback
			breakdown[verdict.QuestionIndex].MissedConcepts = verdict.MissedConcepts
			breakdown[verdict.QuestionIndex].ModelAnswer = verdict.ModelAnswer
		}
	}

	outcome := GradeOutcome{
		MaxScore:      models.MaxScore(questions),
		Breakdown:     breakdown,
		TopicAnalysis: buildTopicAnalysis(breakdown, topic),
	}
	for _, item := range breakdown {
		outcome.Score += item.PointsAwarded
	}
	outcome.Grade = models.ComputeGrade(outcome.Score, outcome.MaxScore)
	outcome.Feedback = fmt.Sprintf("Scored %.1f of %.1f points (%s)", outcome.Score, outcome.MaxScore, outcome.Grade)

	span.SetAttributes(attribute.Float64("score", outcome.Score))
	g.logger.Info().Float64("score", outcome.Score).Float64("max_score", outcome.MaxScore).Str("grade", outcome.Grade).Msg("submission graded")

	return outcome, nil
}

// buildTopicAnalysis groups results by question topic. Untagged
// questions fall back to the assessment topic, then to "general".
func buildTopicAnalysis(breakdown []models.BreakdownItem, fallback string) map[string]models.TopicStat {
	analysis := make(map[string]models.TopicStat)
	for _, item := range breakdown {
		topic := item.Topic
		if topic == "" {
			topic = fallback
		}
		if topic == "" {
			topic = "general"
		}

		stat := analysis[topic]
		stat.Earned += item.PointsAwarded
		stat.Maximum += item.MaxPoints
		stat.Total++
		if item.Correct {
			stat.Correct++
		}
		analysis[topic] = stat
	}

	return analysis
}
