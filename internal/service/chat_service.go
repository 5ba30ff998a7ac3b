package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/edugrove/examgen-api/internal/dto"
	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/internal/rag"
	"github.com/edugrove/examgen-api/internal/repository"
	"github.com/edugrove/examgen-api/pkg/ai"
)

// Chat service errors.
var (
	// ErrEmptyQuestion indicates the question had no content after sanitization.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrChatBlocked indicates the student has an assessment attempt in
	// progress and may not use the assistant until it is submitted.
	ErrChatBlocked = errors.New("chat is unavailable during an active assessment attempt")
)

// ChatService answers study questions grounded in uploaded materials.
type ChatService interface {
	Ask(ctx context.Context, payload dto.ChatRequest, userID uint, role string) (dto.ChatResponse, error)
	History(ctx context.Context, userID uint, limit int) ([]models.ChatMessage, error)
}

type chatService struct {
	retriever   ContextProvider
	generator   ai.Generator
	messages    repository.ChatRepository
	materials   repository.MaterialRepository
	submissions repository.SubmissionRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
}

// NewChatService constructs a ChatService instance.
func NewChatService(retriever ContextProvider, generator ai.Generator, messages repository.ChatRepository, materials repository.MaterialRepository, submissions repository.SubmissionRepository, validate *validator.Validate, logger zerolog.Logger) ChatService {
	return &chatService{
		retriever:   retriever,
		generator:   generator,
		messages:    messages,
		materials:   materials,
		submissions: submissions,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "chat_service").Logger(),
	}
}

func (s *chatService) Ask(ctx context.Context, payload dto.ChatRequest, userID uint, role string) (dto.ChatResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatResponse{}, err
	}

	// Students cannot consult the assistant while they have an open
	// attempt; the assistant would otherwise answer quiz questions live.
	if role == models.RoleStudent {
		active, err := s.submissions.List(ctx, repository.SubmissionFilter{
			StudentID: &userID,
			Status:    models.SubmissionStatusInProgress,
		})
		if err != nil {
			return dto.ChatResponse{}, fmt.Errorf("active attempt check: %w", err)
		}
		if len(active) > 0 {
			return dto.ChatResponse{}, ErrChatBlocked
		}
	}

	question := strings.TrimSpace(s.sanitizer.Sanitize(payload.Question))
	if question == "" {
		return dto.ChatResponse{}, ErrEmptyQuestion
	}

	grounding := s.retriever.Context(ctx, question, s.scopedMaterials(ctx, question, role))
	grounded := rag.Usable(grounding)

	answer, err := s.generator.Complete(ctx, ai.CompletionRequest{
		System: chatSystemPrompt,
		Prompt: buildChatPrompt(question, grounding, grounded),
	})
	if err != nil {
		return dto.ChatResponse{}, fmt.Errorf("chat completion: %w", err)
	}

	message := models.ChatMessage{
		UserID:   userID,
		Question: question,
		Answer:   answer,
		Grounded: grounded,
	}
	if err := s.messages.Create(ctx, &message); err != nil {
		s.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to persist chat message")
	}

	return dto.ChatResponse{Answer: answer, Grounded: grounded}, nil
}

func (s *chatService) History(ctx context.Context, userID uint, limit int) ([]models.ChatMessage, error) {
	return s.messages.ListByUser(ctx, userID, limit)
}

// scopedMaterials narrows retrieval to materials whose title appears in
// the question. Students only match globally visible documents. An
// empty result leaves retrieval unscoped, and lookup failures degrade
// the same way.
func (s *chatService) scopedMaterials(ctx context.Context, question, role string) []uint {
	var materials []models.Material
	var err error

	if role == models.RoleTeacher {
		materials, err = s.materials.List(ctx, repository.MaterialFilter{})
	} else {
		materials, err = s.materials.ListGlobalDocuments(ctx)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("material lookup for chat scoping failed")
		return nil
	}

	lowered := strings.ToLower(question)

	var ids []uint
	for _, material := range materials {
		title := strings.ToLower(strings.TrimSpace(material.Title))
		// Very short titles match almost anything.
		if len(title) < 4 {
			continue
		}
		if strings.Contains(lowered, title) {
			ids = append(ids, material.ID)
		}
	}

	return ids
}

// The assistant explains concepts but never hands out answer keys, so
// it stays usable while assessments are running.
const chatSystemPrompt = "You are a study assistant. Explain concepts from the provided study material clearly. " +
	"Never reveal answers to quiz or exam questions, never provide answer keys, and decline requests to do someone's assessment for them. " +
	"If the material does not cover the question, say so before answering from general knowledge."

func buildChatPrompt(question, grounding string, grounded bool) string {
	var builder strings.Builder

	if grounded {
		builder.WriteString("Study material:\n\n")
		builder.WriteString(grounding)
		builder.WriteString("\n\n")
	}

	builder.WriteString("Question: ")
	builder.WriteString(question)

	return builder.String()
}
