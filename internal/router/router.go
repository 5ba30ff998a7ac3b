package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/edugrove/examgen-api/internal/config"
	"github.com/edugrove/examgen-api/internal/handler"
	"github.com/edugrove/examgen-api/internal/middleware"
	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	MaterialHandler   *handler.MaterialHandler
	AssessmentHandler *handler.AssessmentHandler
	SubmissionHandler *handler.SubmissionHandler
	QuizHandler       *handler.QuizHandler
	ChatHandler       *handler.ChatHandler
	AnalyticsHandler  *handler.AnalyticsHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	teacherOnly := middleware.RequireRole(models.RoleTeacher)

	if deps.MaterialHandler != nil {
		materials := app.Group("/api/v1/materials", jwtMiddleware)
		deps.MaterialHandler.Register(materials, teacherOnly)
	}

	if deps.AssessmentHandler != nil {
		assessments := app.Group("/api/v1/assessments", jwtMiddleware)
		deps.AssessmentHandler.Register(assessments, teacherOnly)
	}

	if deps.SubmissionHandler != nil {
		submissions := app.Group("/api/v1/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissions, teacherOnly)
	}

	// Generation and chat hit the model provider, so both are rate limited.
	if deps.QuizHandler != nil {
		quiz := app.Group("/api/v1/quiz", jwtMiddleware, middleware.RateLimit("quiz", 10, time.Minute))
		deps.QuizHandler.Register(quiz, teacherOnly)
	}

	if deps.ChatHandler != nil {
		chat := app.Group("/api/v1/chat", jwtMiddleware, middleware.RateLimit("chat", 20, time.Minute))
		deps.ChatHandler.Register(chat)
	}

	if deps.AnalyticsHandler != nil {
		analytics := app.Group("/api/v1/analytics", jwtMiddleware)
		deps.AnalyticsHandler.Register(analytics, teacherOnly)
	}
}
