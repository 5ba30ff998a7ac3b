package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	UploadDir              string
	UploadMaxMB            int
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	OpenAIAPIKey           string
	CompletionModel        string
	EmbeddingModel         string
	EmbeddingDimension     int
	PineconeAPIKey         string
	PineconeIndexName      string
	PineconeIndexHost      string
	ChunkSize              int
	RetrievalTopK          int
	FallbackMaxChars       int
	AnalyticsCacheTTL      time.Duration
	IndexQueueSize         int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EXAMGEN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "ExamGen API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_mb", 25)
	v.SetDefault("cloudinary.folder", "examgen/materials")
	v.SetDefault("completion.model", "gpt-4o-mini")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("chunk.size", 1000)
	v.SetDefault("retrieval.top_k", 20)
	v.SetDefault("fallback.max_chars", 15000)
	v.SetDefault("analytics.cache_ttl", "5m")
	v.SetDefault("index.queue_size", 64)

	ttlString := v.GetString("analytics.cache_ttl")
	if ttlString == "" {
		ttlString = "5m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid analytics cache ttl: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		UploadDir:              v.GetString("upload.dir"),
		UploadMaxMB:            v.GetInt("upload.max_mb"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		CompletionModel:        v.GetString("completion.model"),
		EmbeddingModel:         v.GetString("embedding.model"),
		EmbeddingDimension:     v.GetInt("embedding.dimension"),
		PineconeAPIKey:         v.GetString("pinecone.api_key"),
		PineconeIndexName:      v.GetString("pinecone.index_name"),
		PineconeIndexHost:      v.GetString("pinecone.index_host"),
		ChunkSize:              v.GetInt("chunk.size"),
		RetrievalTopK:          v.GetInt("retrieval.top_k"),
		FallbackMaxChars:       v.GetInt("fallback.max_chars"),
		AnalyticsCacheTTL:      ttl,
		IndexQueueSize:         v.GetInt("index.queue_size"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.EmbeddingDimension <= 0 {
		return Config{}, fmt.Errorf("embedding dimension must be positive")
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}

	if cfg.RetrievalTopK <= 0 {
		cfg.RetrievalTopK = 20
	}

	if cfg.FallbackMaxChars <= 0 {
		cfg.FallbackMaxChars = 15000
	}

	if cfg.IndexQueueSize <= 0 {
		cfg.IndexQueueSize = 64
	}

	return cfg, nil
}
