package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/edugrove/examgen-api/internal/config"
	"github.com/edugrove/examgen-api/internal/database"
	"github.com/edugrove/examgen-api/internal/handler"
	"github.com/edugrove/examgen-api/internal/middleware"
	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/internal/rag"
	"github.com/edugrove/examgen-api/internal/repository"
	"github.com/edugrove/examgen-api/internal/router"
	"github.com/edugrove/examgen-api/internal/service"
	"github.com/edugrove/examgen-api/pkg/ai"
	cloud "github.com/edugrove/examgen-api/pkg/cloudinary"
	"github.com/edugrove/examgen-api/pkg/pinecone"
	"github.com/edugrove/examgen-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Material{}, &models.Assessment{}, &models.Submission{}, &models.ChatMessage{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	defer natsConn.Close()

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	documents, err := storage.NewLocal(cfg.UploadDir, logger)
	if err != nil {
		log.Fatalf("failed to prepare upload storage: %v", err)
	}

	aiClient, err := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:             cfg.OpenAIAPIKey,
		CompletionModel:    cfg.CompletionModel,
		EmbeddingModel:     cfg.EmbeddingModel,
		EmbeddingDimension: cfg.EmbeddingDimension,
		Logger:             logger,
	})
	if err != nil {
		log.Fatalf("failed to create ai client: %v", err)
	}

	pineconeClient, err := pinecone.New(pinecone.Config{
		APIKey:    cfg.PineconeAPIKey,
		IndexName: cfg.PineconeIndexName,
		IndexHost: cfg.PineconeIndexHost,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("failed to create pinecone client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	materialRepo := repository.NewMaterialRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	chatRepo := repository.NewChatRepository(db)

	vectorIndex, err := rag.NewPineconeIndex(context.Background(), pineconeClient, cfg.EmbeddingDimension)
	if err != nil {
		log.Fatalf("failed to verify pinecone index: %v", err)
	}
	retriever := rag.NewRetriever(aiClient, vectorIndex, cfg.RetrievalTopK, logger)

	indexer := rag.NewIndexer(documents, aiClient, vectorIndex, materialRepo, natsConn, cfg.ChunkSize, cfg.IndexQueueSize, logger)
	indexerCtx, stopIndexer := context.WithCancel(context.Background())
	indexer.Start(indexerCtx)
	defer stopIndexer()
	defer indexer.Close()

	judge, err := service.NewLLMJudge(aiClient, logger)
	if err != nil {
		log.Fatalf("failed to create judge: %v", err)
	}

	materialService := service.NewMaterialService(materialRepo, documents, uploader, indexer, vectorIndex, validate, cfg.UploadMaxMB, logger)
	quizService, err := service.NewQuizService(retriever, aiClient, materialRepo, documents, assessmentRepo, validate, cfg.FallbackMaxChars, logger)
	if err != nil {
		log.Fatalf("failed to create quiz service: %v", err)
	}
	gradingEngine := service.NewGradingEngine(judge, logger)
	assessmentService := service.NewAssessmentService(assessmentRepo, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assessmentRepo, gradingEngine, validate, logger)
	chatService := service.NewChatService(retriever, aiClient, chatRepo, materialRepo, submissionRepo, validate, logger)
	analyticsService := service.NewAnalyticsService(assessmentRepo, submissionRepo, redisClient, cfg.AnalyticsCacheTTL, logger)

	materialHandler := handler.NewMaterialHandler(materialService, logger)
	assessmentHandler := handler.NewAssessmentHandler(assessmentService, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)
	quizHandler := handler.NewQuizHandler(quizService, logger)
	chatHandler := handler.NewChatHandler(chatService, logger)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		MaterialHandler:   materialHandler,
		AssessmentHandler: assessmentHandler,
		SubmissionHandler: submissionHandler,
		QuizHandler:       quizHandler,
		ChatHandler:       chatHandler,
		AnalyticsHandler:  analyticsHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
