package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edugrove/examgen-api/internal/dto"
	"github.com/edugrove/examgen-api/internal/service"
	"github.com/edugrove/examgen-api/internal/utils"
)

// QuizHandler exposes quiz generation to teachers.
type QuizHandler struct {
	service service.QuizService
	logger  zerolog.Logger
}

// NewQuizHandler builds a quiz handler instance.
func NewQuizHandler(service service.QuizService, logger zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		service: service,
		logger:  logger.With().Str("component", "quiz_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *QuizHandler) Register(router fiber.Router, teacherOnly fiber.Handler) {
	router.Post("/generate", teacherOnly, h.generate)
}

func (h *QuizHandler) generate(c *fiber.Ctx) error {
	var payload dto.QuizGenerateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	quiz, err := h.service.Generate(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "quiz generated", quiz)
}

func (h *QuizHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInsufficientContext):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "not enough indexed material to generate a grounded quiz yet")
	case errors.Is(err, service.ErrQuizMalformed):
		h.logger.Warn().Err(err).Msg("generator returned malformed quiz")
		return utils.SendError(c, fiber.StatusBadGateway, "quiz generation produced an invalid result")
	case errors.Is(err, service.ErrQuizGeneration):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "quiz generation is temporarily unavailable")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
