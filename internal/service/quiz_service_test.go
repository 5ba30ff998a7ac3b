package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edugrove/examgen-api/internal/dto"
	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/pkg/ai"
)

type stubContext struct {
	text    string
	queries []string
	filters [][]uint
}

func (s *stubContext) Context(ctx context.Context, query string, materialIDs []uint) string {
	s.queries = append(s.queries, query)
	s.filters = append(s.filters, materialIDs)
	return s.text
}

type stubGenerator struct {
	response string
	err      error
	requests []ai.CompletionRequest
}

func (s *stubGenerator) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func quizPayload(t *testing.T, questions []map[string]any) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{"questions": questions})
	require.NoError(t, err)
	return string(data)
}

func validQuizJSON(t *testing.T) string {
	return quizPayload(t, []map[string]any{
		{"type": "MCQ", "question": "What organelle runs photosynthesis?", "options": []string{"Chloroplast", "Nucleus", "Ribosome", "Vacuole"}, "correctOptionIndex": 0, "topic": "organelles"},
		{"type": "MCQ", "question": "What gas do plants absorb?", "options": []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"}, "correctOptionIndex": 2},
		{"type": "DESCRIPTIVE", "question": "Explain the Calvin cycle.", "expectedAnswer": "Carbon fixation, reduction, regeneration of RuBP", "topic": "calvin cycle"},
	})
}

func newQuizServiceForTest(t *testing.T, retriever ContextProvider, generator ai.Generator, repo *memoryMaterialRepo, docs *memoryDocStore, history PromptHistory) QuizService {
	t.Helper()
	if history == nil {
		history = newMemoryAssessmentRepo()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc, err := NewQuizService(retriever, generator, repo, docs, history, validate, 15000, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

// groundedContext returns a retriever stub with enough text to pass the
// usability threshold.
func groundedContext() *stubContext {
	return &stubContext{text: strings.Repeat("Cells divide through mitosis and meiosis. ", 4)}
}

func TestQuizGenerateGrounded(t *testing.T) {
	retriever := &stubContext{text: strings.Repeat("Photosynthesis happens in the chloroplast. ", 5)}
	generator := &stubGenerator{response: validQuizJSON(t)}
	svc := newQuizServiceForTest(t, retriever, generator, newMemoryMaterialRepo(), newMemoryDocStore(), nil)

	response, err := svc.Generate(context.Background(), dto.QuizGenerateRequest{
		Topic:         "photosynthesis",
		QuestionCount: 3,
		MaterialIDs:   []uint{4},
	})
	require.NoError(t, err)
	require.True(t, response.Grounded)
	require.Len(t, response.Questions, 3)
	require.Equal(t, 20.0, response.MaxScore)

	require.Equal(t, []string{"photosynthesis"}, retriever.queries)
	require.Equal(t, []uint{4}, retriever.filters[0])

	require.Len(t, generator.requests, 1)
	require.True(t, generator.requests[0].JSONMode)
	require.Contains(t, generator.requests[0].Prompt, "2 of type MCQ and 1 of type DESCRIPTIVE")
	require.Contains(t, generator.requests[0].Prompt, "chloroplast")
	// Difficulty defaults to medium when the request leaves it out.
	require.Contains(t, generator.requests[0].Prompt, "medium difficulty")

	first := response.Questions[0]
	require.Equal(t, models.QuestionTypeMCQ, first.Type)
	require.Equal(t, models.PointsMCQ, first.MaxPoints)
	require.Equal(t, "organelles", first.Topic)
	require.Equal(t, models.DifficultyMedium, first.Difficulty)
	require.True(t, strings.HasPrefix(first.ID, "q_"))
	require.True(t, strings.HasSuffix(first.ID, "_0"))

	// Missing topic defaults to the requested one.
	require.Equal(t, "photosynthesis", response.Questions[1].Topic)

	open := response.Questions[2]
	require.Equal(t, models.QuestionTypeOpen, open.Type)
	require.Equal(t, models.PointsOpen, open.MaxPoints)
	require.Nil(t, open.Options)
	require.Equal(t, -1, open.CorrectOptionIndex)
	require.NotEmpty(t, open.ExpectedAnswer)
}

func TestQuizGenerateFallsBackToDocuments(t *testing.T) {
	repo := newMemoryMaterialRepo()
	docs := newMemoryDocStore()

	path, err := docs.Save("notes.txt", strings.NewReader(strings.Repeat("The mitochondrion produces ATP through respiration. ", 5)))
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &models.Material{
		Title:       "Respiration",
		Kind:        models.MaterialKindDocument,
		Visibility:  models.VisibilityGlobal,
		StoragePath: path,
	}))

	generator := &stubGenerator{response: validQuizJSON(t)}
	svc := newQuizServiceForTest(t, &stubContext{text: ""}, generator, repo, docs, nil)

	response, err := svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "respiration", QuestionCount: 3})
	require.NoError(t, err)
	require.True(t, response.Grounded, "fallback extraction still counts as grounded")
	require.Contains(t, generator.requests[0].Prompt, "mitochondrion")
}

func TestQuizGenerateInsufficientContext(t *testing.T) {
	generator := &stubGenerator{response: validQuizJSON(t)}
	svc := newQuizServiceForTest(t, &stubContext{text: "too short"}, generator, newMemoryMaterialRepo(), newMemoryDocStore(), nil)

	_, err := svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "genetics", QuestionCount: 3})
	require.ErrorIs(t, err, ErrInsufficientContext)
	require.Empty(t, generator.requests, "the model must not be asked for an ungrounded quiz")
}

func TestQuizGenerateAvoidPromptsInPrompt(t *testing.T) {
	generator := &stubGenerator{response: validQuizJSON(t)}
	svc := newQuizServiceForTest(t, groundedContext(), generator, newMemoryMaterialRepo(), newMemoryDocStore(), nil)

	_, err := svc.Generate(context.Background(), dto.QuizGenerateRequest{
		Topic:         "genetics",
		QuestionCount: 3,
		AvoidPrompts:  []string{"What is a gene?"},
	})
	require.NoError(t, err)
	require.Contains(t, generator.requests[0].Prompt, "What is a gene?")
}

func TestQuizGenerateCollectsPromptsFromExistingAssessments(t *testing.T) {
	history := newMemoryAssessmentRepo()
	questions, err := dto.EncodeQuestions([]models.Question{
		{ID: "q_1_0", Type: models.QuestionTypeOpen, Prompt: "Describe transcription.", ExpectedAnswer: "RNA polymerase", MaxPoints: models.PointsOpen},
	})
	require.NoError(t, err)
	materialIDs, err := dto.EncodeMaterialIDs([]uint{4})
	require.NoError(t, err)
	require.NoError(t, history.Create(context.Background(), &models.Assessment{
		Title:       "Earlier quiz",
		Topic:       "genetics",
		TeacherID:   1,
		MaterialIDs: materialIDs,
		Questions:   questions,
		Status:      models.AssessmentStatusPublished,
	}))

	generator := &stubGenerator{response: validQuizJSON(t)}
	svc := newQuizServiceForTest(t, groundedContext(), generator, newMemoryMaterialRepo(), newMemoryDocStore(), history)

	_, err = svc.Generate(context.Background(), dto.QuizGenerateRequest{
		Topic:         "genetics",
		QuestionCount: 3,
		MaterialIDs:   []uint{4},
	})
	require.NoError(t, err)
	require.Contains(t, generator.requests[0].Prompt, "Describe transcription.")
}

func TestQuizGenerateRejectsWrongCount(t *testing.T) {
	generator := &stubGenerator{response: validQuizJSON(t)}
	svc := newQuizServiceForTest(t, groundedContext(), generator, newMemoryMaterialRepo(), newMemoryDocStore(), nil)

	_, err := svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "genetics", QuestionCount: 5})
	require.ErrorIs(t, err, ErrQuizMalformed)
}

func TestQuizGenerateRejectsSplitDrift(t *testing.T) {
	// Three questions means two MCQs and one descriptive; a payload with
	// the right total but the wrong mix is rejected.
	allMCQ := quizPayload(t, []map[string]any{
		{"type": "MCQ", "question": "?", "options": []string{"a", "b", "c", "d"}, "correctOptionIndex": 0},
		{"type": "MCQ", "question": "?", "options": []string{"a", "b", "c", "d"}, "correctOptionIndex": 1},
		{"type": "MCQ", "question": "?", "options": []string{"a", "b", "c", "d"}, "correctOptionIndex": 2},
	})
	svc := newQuizServiceForTest(t, groundedContext(), &stubGenerator{response: allMCQ}, newMemoryMaterialRepo(), newMemoryDocStore(), nil)

	_, err := svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "genetics", QuestionCount: 3})
	require.ErrorIs(t, err, ErrQuizMalformed)
}

func TestQuizFallbackTruncatesOnRuneBoundary(t *testing.T) {
	repo := newMemoryMaterialRepo()
	docs := newMemoryDocStore()

	// Two-byte runes with an odd character limit would split a rune if
	// the cut were made on bytes.
	path, err := docs.Save("notes.txt", strings.NewReader(strings.Repeat("ü", 300)))
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &models.Material{
		Title:       "Umlauts",
		Kind:        models.MaterialKindDocument,
		Visibility:  models.VisibilityGlobal,
		StoragePath: path,
	}))

	generator := &stubGenerator{response: validQuizJSON(t)}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc, err := NewQuizService(&stubContext{text: ""}, generator, repo, docs, newMemoryAssessmentRepo(), validate, 101, zerolog.Nop())
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "umlauts", QuestionCount: 3})
	require.NoError(t, err)
	require.Len(t, generator.requests, 1)
	require.True(t, utf8.ValidString(generator.requests[0].Prompt))
}

func TestQuizGenerateRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"not json": "nope",
		"mcq with three options": quizPayload(t, []map[string]any{
			{"type": "MCQ", "question": "?", "options": []string{"a", "b", "c"}, "correctOptionIndex": 0},
		}),
		"mcq index out of range": quizPayload(t, []map[string]any{
			{"type": "MCQ", "question": "?", "options": []string{"a", "b", "c", "d"}, "correctOptionIndex": 4},
		}),
		"descriptive without expected answer": quizPayload(t, []map[string]any{
			{"type": "DESCRIPTIVE", "question": "?"},
		}),
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			svc := newQuizServiceForTest(t, groundedContext(), &stubGenerator{response: payload}, newMemoryMaterialRepo(), newMemoryDocStore(), nil)
			_, err := svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "genetics", QuestionCount: 1})
			require.ErrorIs(t, err, ErrQuizMalformed)
		})
	}
}

func TestQuizGenerateProviderFailure(t *testing.T) {
	svc := newQuizServiceForTest(t, groundedContext(), &stubGenerator{err: errors.New("rate limited")}, newMemoryMaterialRepo(), newMemoryDocStore(), nil)

	_, err := svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "genetics", QuestionCount: 3})
	require.ErrorIs(t, err, ErrQuizGeneration)
}

func TestQuizGenerateValidatesRequest(t *testing.T) {
	svc := newQuizServiceForTest(t, groundedContext(), &stubGenerator{response: validQuizJSON(t)}, newMemoryMaterialRepo(), newMemoryDocStore(), nil)

	_, err := svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "", QuestionCount: 3})
	require.Error(t, err)

	_, err = svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "genetics", QuestionCount: 0})
	require.Error(t, err)

	_, err = svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "genetics", QuestionCount: 51})
	require.Error(t, err)

	_, err = svc.Generate(context.Background(), dto.QuizGenerateRequest{Topic: "genetics", QuestionCount: 3, Difficulty: "impossible"})
	require.Error(t, err)
}
