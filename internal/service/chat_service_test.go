package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edugrove/examgen-api/internal/dto"
	"github.com/edugrove/examgen-api/internal/models"
)

type memoryChatRepo struct {
	messages  []models.ChatMessage
	createErr error
}

func (m *memoryChatRepo) Create(ctx context.Context, message *models.ChatMessage) error {
	if m.createErr != nil {
		return m.createErr
	}
	message.ID = uint(len(m.messages) + 1)
	m.messages = append(m.messages, *message)
	return nil
}

func (m *memoryChatRepo) ListByUser(ctx context.Context, userID uint, limit int) ([]models.ChatMessage, error) {
	var results []models.ChatMessage
	for _, message := range m.messages {
		if message.UserID == userID {
			results = append(results, message)
		}
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

func newChatServiceForTest(retriever ContextProvider, generator *stubGenerator, messages *memoryChatRepo, materials *memoryMaterialRepo, submissions *memorySubmissionRepo) ChatService {
	if materials == nil {
		materials = newMemoryMaterialRepo()
	}
	if submissions == nil {
		submissions = newMemorySubmissionRepo()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewChatService(retriever, generator, messages, materials, submissions, validate, zerolog.Nop())
}

func TestChatAskGrounded(t *testing.T) {
	retriever := &stubContext{text: strings.Repeat("The chloroplast is the site of photosynthesis. ", 3)}
	generator := &stubGenerator{response: "Photosynthesis happens in the chloroplast."}
	messages := &memoryChatRepo{}
	svc := newChatServiceForTest(retriever, generator, messages, nil, nil)

	response, err := svc.Ask(context.Background(), dto.ChatRequest{Question: "Where does photosynthesis happen?"}, 4, models.RoleStudent)
	require.NoError(t, err)
	require.True(t, response.Grounded)
	require.Equal(t, "Photosynthesis happens in the chloroplast.", response.Answer)

	require.Contains(t, generator.requests[0].Prompt, "chloroplast")
	require.Contains(t, generator.requests[0].Prompt, "Where does photosynthesis happen?")

	require.Len(t, messages.messages, 1)
	require.Equal(t, uint(4), messages.messages[0].UserID)
	require.True(t, messages.messages[0].Grounded)
}

func TestChatAskUngrounded(t *testing.T) {
	generator := &stubGenerator{response: "From general knowledge: ..."}
	svc := newChatServiceForTest(&stubContext{text: ""}, generator, &memoryChatRepo{}, nil, nil)

	response, err := svc.Ask(context.Background(), dto.ChatRequest{Question: "What is osmosis?"}, 4, models.RoleStudent)
	require.NoError(t, err)
	require.False(t, response.Grounded)
	require.NotContains(t, generator.requests[0].Prompt, "Study material")
}

func TestChatAskScopesToMentionedMaterial(t *testing.T) {
	materials := newMemoryMaterialRepo()
	require.NoError(t, materials.Create(context.Background(), &models.Material{
		Title:      "Cell Biology Notes",
		Kind:       models.MaterialKindDocument,
		Visibility: models.VisibilityGlobal,
	}))
	require.NoError(t, materials.Create(context.Background(), &models.Material{
		Title:      "Organic Chemistry Notes",
		Kind:       models.MaterialKindDocument,
		Visibility: models.VisibilityGlobal,
	}))

	retriever := &stubContext{text: strings.Repeat("Mitochondria supply energy. ", 3)}
	svc := newChatServiceForTest(retriever, &stubGenerator{response: "answer"}, &memoryChatRepo{}, materials, nil)

	_, err := svc.Ask(context.Background(), dto.ChatRequest{Question: "In the cell biology notes, what do mitochondria do?"}, 4, models.RoleStudent)
	require.NoError(t, err)
	require.Equal(t, []uint{1}, retriever.filters[0])

	// No title mentioned leaves retrieval unscoped.
	_, err = svc.Ask(context.Background(), dto.ChatRequest{Question: "What do mitochondria do?"}, 4, models.RoleStudent)
	require.NoError(t, err)
	require.Nil(t, retriever.filters[1])
}

func TestChatAskBlockedDuringActiveAttempt(t *testing.T) {
	submissions := newMemorySubmissionRepo()
	require.NoError(t, submissions.Create(context.Background(), &models.Submission{
		AssessmentID: 1,
		StudentID:    4,
		Status:       models.SubmissionStatusInProgress,
	}))

	generator := &stubGenerator{response: "answer"}
	svc := newChatServiceForTest(&stubContext{}, generator, &memoryChatRepo{}, nil, submissions)

	_, err := svc.Ask(context.Background(), dto.ChatRequest{Question: "What is the answer to question 2?"}, 4, models.RoleStudent)
	require.ErrorIs(t, err, ErrChatBlocked)
	require.Empty(t, generator.requests)

	// Another student is unaffected.
	_, err = svc.Ask(context.Background(), dto.ChatRequest{Question: "What is a cell?"}, 5, models.RoleStudent)
	require.NoError(t, err)

	// Teachers are never blocked.
	_, err = svc.Ask(context.Background(), dto.ChatRequest{Question: "What is a cell?"}, 4, models.RoleTeacher)
	require.NoError(t, err)
}

func TestChatAskStripsMarkup(t *testing.T) {
	generator := &stubGenerator{response: "answer"}
	svc := newChatServiceForTest(&stubContext{}, generator, &memoryChatRepo{}, nil, nil)

	_, err := svc.Ask(context.Background(), dto.ChatRequest{Question: "<b>What is</b> <script>alert(1)</script>a cell?"}, 4, models.RoleStudent)
	require.NoError(t, err)
	require.NotContains(t, generator.requests[0].Prompt, "<script>")
	require.NotContains(t, generator.requests[0].Prompt, "<b>")
	require.Contains(t, generator.requests[0].Prompt, "a cell?")
}

func TestChatAskEmptyAfterSanitization(t *testing.T) {
	svc := newChatServiceForTest(&stubContext{}, &stubGenerator{response: "x"}, &memoryChatRepo{}, nil, nil)

	_, err := svc.Ask(context.Background(), dto.ChatRequest{Question: "<script>alert(1)</script>"}, 4, models.RoleStudent)
	require.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestChatAskPersistFailureIsNotFatal(t *testing.T) {
	generator := &stubGenerator{response: "answer"}
	svc := newChatServiceForTest(&stubContext{}, generator, &memoryChatRepo{createErr: errors.New("db down")}, nil, nil)

	response, err := svc.Ask(context.Background(), dto.ChatRequest{Question: "What is a cell?"}, 4, models.RoleStudent)
	require.NoError(t, err)
	require.Equal(t, "answer", response.Answer)
}

func TestChatHistoryScopedToUser(t *testing.T) {
	messages := &memoryChatRepo{}
	svc := newChatServiceForTest(&stubContext{}, &stubGenerator{response: "a"}, messages, nil, nil)

	_, err := svc.Ask(context.Background(), dto.ChatRequest{Question: "first question"}, 4, models.RoleStudent)
	require.NoError(t, err)
	_, err = svc.Ask(context.Background(), dto.ChatRequest{Question: "second question"}, 5, models.RoleStudent)
	require.NoError(t, err)

	history, err := svc.History(context.Background(), 4, 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "first question", history[0].Question)
}
