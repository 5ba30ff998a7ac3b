package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edugrove/examgen-api/internal/dto"
	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/internal/rag"
	"github.com/edugrove/examgen-api/internal/repository"
	"github.com/edugrove/examgen-api/pkg/ai"
	"github.com/edugrove/examgen-api/pkg/extract"
)

// Quiz service errors.
var (
	ErrQuizGeneration      = errors.New("quiz generation failed")
	ErrQuizMalformed       = errors.New("generated quiz payload is malformed")
	ErrInsufficientContext = errors.New("not enough material context to ground a quiz")
)

// maxAvoidPrompts bounds the exclusion list so the prompt does not grow
// without limit as quizzes accumulate for a material.
const maxAvoidPrompts = 40

// quizSchema constrains the model output before it is trusted. MCQ
// items must carry exactly four options and an in-range answer index;
// descriptive items must carry the expected key concepts.
const quizSchema = `{
	"type": "object",
	"required": ["questions"],
	"properties": {
		"questions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["type", "question"],
				"properties": {
					"type": {"enum": ["MCQ", "DESCRIPTIVE"]},
					"question": {"type": "string", "minLength": 1},
					"options": {
						"type": "array",
						"items": {"type": "string", "minLength": 1},
						"minItems": 4,
						"maxItems": 4
					},
					"correctOptionIndex": {"type": "integer", "minimum": 0, "maximum": 3},
					"expectedAnswer": {"type": "string"},
					"topic": {"type": "string"}
				},
				"allOf": [
					{
						"if": {"properties": {"type": {"const": "MCQ"}}},
						"then": {"required": ["options", "correctOptionIndex"]}
					},
					{
						"if": {"properties": {"type": {"const": "DESCRIPTIVE"}}},
						"then": {"required": ["expectedAnswer"]}
					}
				]
			}
		}
	}
}`

// ContextProvider retrieves grounding text for a query. *rag.Retriever
// satisfies it; tests substitute a stub.
type ContextProvider interface {
	Context(ctx context.Context, query string, materialIDs []uint) string
}

// PromptHistory lists the assessments already built on a material, so
// their question prompts can feed the anti-repetition exclusion list.
// repository.AssessmentRepository satisfies it.
type PromptHistory interface {
	ListByMaterial(ctx context.Context, materialID uint) ([]models.Assessment, error)
}

// QuizService turns indexed materials into question sets.
type QuizService interface {
	Generate(ctx context.Context, req dto.QuizGenerateRequest) (dto.QuizGenerateResponse, error)
}

type quizService struct {
	retriever ContextProvider
	generator ai.Generator
	materials repository.MaterialRepository
	documents DocumentStore
	history   PromptHistory
	validator *validator.Validate
	schema    *jsonschema.Schema
	maxChars  int
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewQuizService constructs a QuizService instance.
func NewQuizService(retriever ContextProvider, generator ai.Generator, materials repository.MaterialRepository, documents DocumentStore, history PromptHistory, validate *validator.Validate, fallbackMaxChars int, logger zerolog.Logger) (QuizService, error) {
	schema, err := jsonschema.CompileString("quiz.json", quizSchema)
	if err != nil {
		return nil, fmt.Errorf("compile quiz schema: %w", err)
	}

	if fallbackMaxChars <= 0 {
		fallbackMaxChars = 15000
	}

	return &quizService{
		retriever: retriever,
		generator: generator,
		materials: materials,
		documents: documents,
		history:   history,
		validator: validate,
		schema:    schema,
		maxChars:  fallbackMaxChars,
		tracer:    otel.Tracer("github.com/edugrove/examgen-api/internal/service/quiz"),
		logger:    logger.With().Str("component", "quiz_service").Logger(),
		now:       time.Now,
	}, nil
}

func (s *quizService) Generate(parent context.Context, req dto.QuizGenerateRequest) (dto.QuizGenerateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.QuizGenerateResponse{}, err
	}

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}

	ctx, span := s.tracer.Start(parent, "quiz.generate", trace.WithAttributes(
		attribute.String("topic", req.Topic),
		attribute.String("difficulty", difficulty),
		attribute.Int("question_count", req.QuestionCount),
	))
	defer span.End()

	grounding := s.retriever.Context(ctx, req.Topic, req.MaterialIDs)

	// When retrieval comes back empty the stored documents are read and
	// extracted directly, so a cold or broken index still yields a quiz.
	if !rag.Usable(grounding) {
		grounding = s.fallbackContext(ctx, req.MaterialIDs)
	}

	// Questions must be traceable to uploaded material. With no usable
	// retrieval result and no extractable document there is nothing to
	// ground them in, so the request fails instead of producing a quiz
	// from open-ended model knowledge.
	if !rag.Usable(grounding) {
		err := fmt.Errorf("%w: retrieval and direct extraction produced no usable text", ErrInsufficientContext)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.QuizGenerateResponse{}, err
	}

	avoid := s.collectAvoidPrompts(ctx, req)
	prompt := buildQuizPrompt(req.Topic, req.QuestionCount, difficulty, avoid, grounding)

	content, err := s.generator.Complete(ctx, ai.CompletionRequest{
		System:   quizSystemPrompt,
		Prompt:   prompt,
		JSONMode: true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.QuizGenerateResponse{}, fmt.Errorf("%w: %v", ErrQuizGeneration, err)
	}

	questions, err := s.parseQuestions(content, req, difficulty)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.QuizGenerateResponse{}, err
	}

	s.logger.Info().
		Str("topic", req.Topic).
		Str("difficulty", difficulty).
		Int("questions", len(questions)).
		Int("avoided_prompts", len(avoid)).
		Msg("quiz generated")

	return dto.QuizGenerateResponse{
		Questions: questions,
		Grounded:  true,
		MaxScore:  models.MaxScore(questions),
	}, nil
}

// collectAvoidPrompts merges the caller's exclusion list with the
// prompts of every stored assessment that references the requested
// materials, deduplicated and capped at maxAvoidPrompts.
func (s *quizService) collectAvoidPrompts(ctx context.Context, req dto.QuizGenerateRequest) []string {
	seen := make(map[string]struct{})
	var prompts []string
	add := func(prompt string) {
		prompt = strings.TrimSpace(prompt)
		if prompt == "" {
			return
		}
		if _, ok := seen[prompt]; ok {
			return
		}
		seen[prompt] = struct{}{}
		prompts = append(prompts, prompt)
	}

	for _, prompt := range req.AvoidPrompts {
		add(prompt)
	}

	for _, materialID := range req.MaterialIDs {
		assessments, err := s.history.ListByMaterial(ctx, materialID)
		if err != nil {
			s.logger.Warn().Err(err).Uint("material_id", materialID).Msg("prompt history lookup failed")
			continue
		}
		for _, assessment := range assessments {
			questions, err := assessment.DecodeQuestions()
			if err != nil {
				continue
			}
			for _, question := range questions {
				add(question.Prompt)
			}
		}
	}

	if len(prompts) > maxAvoidPrompts {
		prompts = prompts[:maxAvoidPrompts]
	}

	return prompts
}

func (s *quizService) fallbackContext(ctx context.Context, materialIDs []uint) string {
	var materials []models.Material
	var err error

	if len(materialIDs) > 0 {
		materials, err = s.materials.GetByIDs(ctx, materialIDs)
	} else {
		materials, err = s.materials.ListGlobalDocuments(ctx)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("fallback material lookup failed")
		return ""
	}

	var builder strings.Builder
	for _, material := range materials {
		if !material.IsDocument() || material.StoragePath == "" {
			continue
		}

		data, err := s.documents.Read(material.StoragePath)
		if err != nil {
			s.logger.Warn().Err(err).Uint("material_id", material.ID).Msg("fallback read failed")
			continue
		}

		text, err := extract.Text(data)
		if err != nil {
			s.logger.Warn().Err(err).Uint("material_id", material.ID).Msg("fallback extraction failed")
			continue
		}

		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(text)

		if builder.Len() >= s.maxChars {
			break
		}
	}

	text := builder.String()
	// Truncate on a rune boundary, like the chunker, so the prompt
	// never carries a split multi-byte character.
	if runes := []rune(text); len(runes) > s.maxChars {
		text = string(runes[:s.maxChars])
	}

	return text
}

func (s *quizService) parseQuestions(content string, req dto.QuizGenerateRequest, difficulty string) ([]models.Question, error) {
	var payload any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuizMalformed, err)
	}

	if err := s.schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuizMalformed, err)
	}

	var quiz struct {
		Questions []models.Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &quiz); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuizMalformed, err)
	}

	if len(quiz.Questions) != req.QuestionCount {
		return nil, fmt.Errorf("%w: asked for %d questions, got %d", ErrQuizMalformed, req.QuestionCount, len(quiz.Questions))
	}

	stamp := s.now().UnixMilli()
	mcqWanted, openWanted := models.SplitCounts(req.QuestionCount)
	mcqGot := 0

	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		q.ID = fmt.Sprintf("q_%d_%d", stamp, i)
		q.Difficulty = difficulty
		if q.Topic == "" {
			q.Topic = req.Topic
		}

		switch q.Type {
		case models.QuestionTypeMCQ:
			mcqGot++
			q.MaxPoints = models.PointsMCQ
			q.ExpectedAnswer = ""
		case models.QuestionTypeOpen:
			q.MaxPoints = models.PointsOpen
			q.Options = nil
			q.CorrectOptionIndex = -1
		}
	}

	if mcqGot != mcqWanted {
		return nil, fmt.Errorf("%w: asked for %d MCQ and %d DESCRIPTIVE questions, got %d MCQ", ErrQuizMalformed, mcqWanted, openWanted, mcqGot)
	}

	return quiz.Questions, nil
}

const quizSystemPrompt = "You are an exam author. You write clear, unambiguous quiz questions " +
	"strictly based on the provided study material. Respond with a single JSON object."

func buildQuizPrompt(topic string, count int, difficulty string, avoid []string, grounding string) string {
	mcq, open := models.SplitCounts(count)

	var builder strings.Builder
	fmt.Fprintf(&builder, "Create a %s difficulty quiz about %q with exactly %d questions: %d of type MCQ and %d of type DESCRIPTIVE.\n", difficulty, topic, count, mcq, open)
	builder.WriteString("Every MCQ must have exactly 4 options and a zero-based correctOptionIndex.\n")
	builder.WriteString("Every DESCRIPTIVE question must include expectedAnswer listing the key concepts a correct answer covers.\n")
	builder.WriteString("Include a short topic label on each question.\n")

	if len(avoid) > 0 {
		builder.WriteString("\nDo not repeat or closely paraphrase any of these previously used questions:\n")
		for _, prompt := range avoid {
			builder.WriteString("- ")
			builder.WriteString(prompt)
			builder.WriteString("\n")
		}
	}

	builder.WriteString("\nBase all questions on this study material:\n\n")
	builder.WriteString(grounding)

	builder.WriteString("\n\nReturn JSON: {\"questions\": [{\"type\", \"question\", \"options\", \"correctOptionIndex\", \"expectedAnswer\", \"topic\"}]}")

	return builder.String()
}
