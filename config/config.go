package config

import (
	"os"
	"strconv"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	ListenAddr  string
	PostgresDSN string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Model      ModelConfig
	Embeddings EmbeddingsConfig
	Guideline  GuidelineConfig
	Rubric     RubricConfig
	RAG        RAGConfig
	Generation GenerationConfig
	Ledger     LedgerConfig
}

type ModelConfig struct {
	Provider    string
	Model       string
	VisionModel string
}

type EmbeddingsConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type GuidelineConfig struct {
	Path    string
	DocID   string
	Version string
}

type RubricConfig struct {
	Path string
}

type RAGConfig struct {
	ExpertURL     string
	EvaluationURL string
	FetchTimeout  time.Duration
	Backend       string
	TopK          int
}

type GenerationConfig struct {
	Retries int
	Delay   time.Duration
}

type LedgerConfig struct {
	Backend string
}

func Load() Config {
	return Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/design-eval?sslmode=disable"),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		Model: ModelConfig{
			Provider:    getEnv("MODEL_PROVIDER", ProviderOllama),
			Model:       getEnv("MODEL_NAME", "llama3.1:8b"),
			VisionModel: getEnv("VISION_MODEL_NAME", "llava:7b"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderOllama),
			Model:     getEnv("EMBEDDINGS_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 768),
		},
		Guideline: GuidelineConfig{
			Path:    getEnv("GUIDELINE_FILE", "seeds/guidelines/kda_2025_guideline.md"),
			DocID:   getEnv("GUIDELINE_DOC_ID", "kda_2025_guideline_v1"),
			Version: getEnv("GUIDELINE_VERSION", "1.0.0"),
		},
		Rubric: RubricConfig{
			Path: getEnv("RUBRIC_FILE", "seeds/rubrics/kda_2025_v1.json"),
		},
		RAG: RAGConfig{
			ExpertURL:     getEnv("RAG_EXPERT_URL", ""),
			EvaluationURL: getEnv("RAG_EVALUATION_URL", ""),
			FetchTimeout:  getEnvDuration("RAG_FETCH_TIMEOUT", 30*time.Second),
			Backend:       getEnv("RAG_BACKEND", BackendMemory),
			TopK:          getEnvInt("RAG_TOP_K", 3),
		},
		Generation: GenerationConfig{
			Retries: getEnvInt("GENERATION_RETRIES", 3),
			Delay:   getEnvDuration("GENERATION_RETRY_DELAY", time.Second),
		},
		Ledger: LedgerConfig{
			Backend: getEnv("LEDGER_BACKEND", BackendPostgres),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
