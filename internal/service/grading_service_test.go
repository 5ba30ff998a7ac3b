package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edugrove/examgen-api/internal/models"
)

type stubJudge struct {
	verdicts []JudgeVerdict
	err      error
	items    []JudgeItem
	calls    int
}

func (s *stubJudge) Evaluate(ctx context.Context, items []JudgeItem) ([]JudgeVerdict, error) {
	s.calls++
	s.items = items
	if s.err != nil {
		return nil, s.err
	}
	return s.verdicts, nil
}

func intPtr(v int) *int { return &v }

func mixedQuestions() []models.Question {
	return []models.Question{
		{ID: "q_1_0", Type: models.QuestionTypeMCQ, Prompt: "What pigment drives photosynthesis?", Options: []string{"Chlorophyll", "Keratin", "Melanin", "Hemoglobin"}, CorrectOptionIndex: 0, Topic: "photosynthesis", MaxPoints: models.PointsMCQ},
		{ID: "q_1_1", Type: models.QuestionTypeMCQ, Prompt: "Where does the Calvin cycle run?", Options: []string{"Nucleus", "Stroma", "Ribosome", "Vacuole"}, CorrectOptionIndex: 1, Topic: "photosynthesis", MaxPoints: models.PointsMCQ},
		{ID: "q_1_2", Type: models.QuestionTypeOpen, Prompt: "Explain the light-dependent reactions.", ExpectedAnswer: "Water is split, ATP and NADPH are produced", CorrectOptionIndex: -1, Topic: "light reactions", MaxPoints: models.PointsOpen},
	}
}

func TestGradeMCQDeterministic(t *testing.T) {
	judge := &stubJudge{}
	engine := NewGradingEngine(judge, zerolog.Nop())

	questions := []models.Question{
		{ID: "q_1_0", Type: models.QuestionTypeMCQ, Prompt: "2+2?", Options: []string{"3", "4", "5", "6"}, CorrectOptionIndex: 1, MaxPoints: models.PointsMCQ},
		{ID: "q_1_1", Type: models.QuestionTypeMCQ, Prompt: "3+3?", Options: []string{"5", "6", "7", "8"}, CorrectOptionIndex: 1, MaxPoints: models.PointsMCQ},
	}
	answers := []models.Answer{
		{QuestionID: "q_1_0", SelectedOptionIndex: intPtr(1)},
		{QuestionID: "q_1_1", SelectedOptionIndex: intPtr(3)},
	}

	outcome, err := engine.Grade(context.Background(), "arithmetic", questions, answers)
	require.NoError(t, err)
	require.Zero(t, judge.calls, "all-MCQ grading must not call the judge")

	require.Equal(t, 5.0, outcome.Score)
	require.Equal(t, 10.0, outcome.MaxScore)
	require.True(t, outcome.Breakdown[0].Correct)
	require.False(t, outcome.Breakdown[1].Correct)
	require.Equal(t, 0.0, outcome.Breakdown[1].PointsAwarded)
	require.Equal(t, "Correct answer: option 2", outcome.Breakdown[1].Feedback)
	require.Equal(t, "6", outcome.Breakdown[1].ModelAnswer)
	require.Equal(t, "D", outcome.Grade)
}

func TestGradeBlankOpenAnswerSkipsJudge(t *testing.T) {
	judge := &stubJudge{verdicts: []JudgeVerdict{}}
	engine := NewGradingEngine(judge, zerolog.Nop())

	answers := []models.Answer{
		{QuestionID: "q_1_0", SelectedOptionIndex: intPtr(0)},
		{QuestionID: "q_1_1", SelectedOptionIndex: intPtr(1)},
		{QuestionID: "q_1_2", Text: "   "},
	}

	outcome, err := engine.Grade(context.Background(), "photosynthesis", mixedQuestions(), answers)
	require.NoError(t, err)
	require.Zero(t, judge.calls)

	require.Equal(t, 10.0, outcome.Score)
	require.Equal(t, 20.0, outcome.MaxScore)
	require.Equal(t, "No answer provided", outcome.Breakdown[2].Feedback)
	require.Equal(t, 0.0, outcome.Breakdown[2].PointsAwarded)
}

func TestGradeOpenAnswersUseJudgeVerdicts(t *testing.T) {
	judge := &stubJudge{verdicts: []JudgeVerdict{
		{
			QuestionIndex:  2,
			PointsAwarded:  7.5,
			Correct:        true,
			Feedback:       "Covers water splitting and ATP, misses NADPH",
			MissedConcepts: []string{"NADPH production"},
			ModelAnswer:    "Water is split, producing ATP and NADPH.",
		},
	}}
	engine := NewGradingEngine(judge, zerolog.Nop())

	answers := []models.Answer{
		{QuestionID: "q_1_0", SelectedOptionIndex: intPtr(0)},
		{QuestionID: "q_1_1", SelectedOptionIndex: intPtr(1)},
		{QuestionID: "q_1_2", Text: "Water is split and ATP is made."},
	}

	outcome, err := engine.Grade(context.Background(), "photosynthesis", mixedQuestions(), answers)
	require.NoError(t, err)
	require.Equal(t, 1, judge.calls)
	require.Len(t, judge.items, 1)
	require.Equal(t, 2, judge.items[0].QuestionIndex)
	require.Equal(t, 10.0, judge.items[0].MaxPoints)

	require.Equal(t, 17.5, outcome.Score)
	require.Equal(t, 7.5, outcome.Breakdown[2].PointsAwarded)
	require.True(t, outcome.Breakdown[2].Correct)
	require.Equal(t, []string{"NADPH production"}, outcome.Breakdown[2].MissedConcepts)
	require.Equal(t, "Water is split, producing ATP and NADPH.", outcome.Breakdown[2].ModelAnswer)
	require.Equal(t, "A", outcome.Grade)
	require.Equal(t, "Scored 17.5 of 20.0 points (A)", outcome.Feedback)
}

func TestGradeJudgeFailurePropagates(t *testing.T) {
	judge := &stubJudge{err: ErrJudgeUnavailable}
	engine := NewGradingEngine(judge, zerolog.Nop())

	answers := []models.Answer{
		{QuestionID: "q_1_2", Text: "Some attempt at an answer."},
	}

	_, err := engine.Grade(context.Background(), "photosynthesis", mixedQuestions(), answers)
	require.ErrorIs(t, err, ErrJudgeUnavailable)
}

func TestGradeVerdictsOutOfRangeIgnored(t *testing.T) {
	judge := &stubJudge{verdicts: []JudgeVerdict{
		{QuestionIndex: 99, PointsAwarded: 10},
		{QuestionIndex: -1, PointsAwarded: 10},
		{QuestionIndex: 2, PointsAwarded: 4},
	}}
	engine := NewGradingEngine(judge, zerolog.Nop())

	answers := []models.Answer{{QuestionID: "q_1_2", Text: "partial answer"}}

	outcome, err := engine.Grade(context.Background(), "photosynthesis", mixedQuestions(), answers)
	require.NoError(t, err)
	require.Equal(t, 4.0, outcome.Score)
}

func TestGradeTopicAnalysis(t *testing.T) {
	judge := &stubJudge{verdicts: []JudgeVerdict{
		{QuestionIndex: 2, PointsAwarded: 10, Correct: true},
	}}
	engine := NewGradingEngine(judge, zerolog.Nop())

	answers := []models.Answer{
		{QuestionID: "q_1_0", SelectedOptionIndex: intPtr(0)},
		{QuestionID: "q_1_1", SelectedOptionIndex: intPtr(2)},
		{QuestionID: "q_1_2", Text: "Water is split, ATP and NADPH are produced."},
	}

	outcome, err := engine.Grade(context.Background(), "biology", mixedQuestions(), answers)
	require.NoError(t, err)

	photo := outcome.TopicAnalysis["photosynthesis"]
	require.Equal(t, 5.0, photo.Earned)
	require.Equal(t, 10.0, photo.Maximum)
	require.Equal(t, 1, photo.Correct)
	require.Equal(t, 2, photo.Total)

	light := outcome.TopicAnalysis["light reactions"]
	require.Equal(t, 10.0, light.Earned)
	require.Equal(t, 10.0, light.Maximum)
	require.Equal(t, 1, light.Correct)
	require.Equal(t, 1, light.Total)
}

func TestGradeMissingTopicFallsBackToAssessmentTopic(t *testing.T) {
	engine := NewGradingEngine(&stubJudge{}, zerolog.Nop())

	questions := []models.Question{
		{ID: "q_1_0", Type: models.QuestionTypeMCQ, Prompt: "?", Options: []string{"a", "b", "c", "d"}, CorrectOptionIndex: 0, MaxPoints: models.PointsMCQ},
	}
	answers := []models.Answer{{QuestionID: "q_1_0", SelectedOptionIndex: intPtr(0)}}

	outcome, err := engine.Grade(context.Background(), "cell biology", questions, answers)
	require.NoError(t, err)
	require.Contains(t, outcome.TopicAnalysis, "cell biology")
	require.NotContains(t, outcome.TopicAnalysis, "general")

	// Only with no assessment topic either does the generic bucket appear.
	outcome, err = engine.Grade(context.Background(), "", questions, answers)
	require.NoError(t, err)
	require.Contains(t, outcome.TopicAnalysis, "general")
}
