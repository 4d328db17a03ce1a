package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Keys      APIKeys
	Ai        AIConfig
	Knowledge KnowledgeConfig
	Memory    MemoryConfig
	Events    EventsConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	Version            string
	LogFilePath        string
	CorsAllowedOrigins string
}

type APIKeys struct {
	OpenAI string
	Claude string
}

type AIConfig struct {
	OllamaBaseURL      string
	OllamaModel        string // designated default primary model
	OllamaEnabled      bool
	OllamaModels       []string
	OllamaVisionModels []string
	OpenAIBaseURL      string
	OpenAIModel        string
	ClaudeBaseURL      string
	ClaudeModel        string
	ProviderTimeout    time.Duration
	ProbeTimeout       time.Duration
}

type KnowledgeConfig struct {
	Path      string
	MaxChunks int
}

type MemoryConfig struct {
	TTL       time.Duration
	SweepCron string
}

type EventsConfig struct {
	NatsURL     string
	NatsEnabled bool
	Topic       string
}

type TelemetryConfig struct {
	OtelEnabled  bool
	OtelEndpoint string
}

// Default model catalogue for the primary (Ollama) provider.
var (
	DefaultOllamaModels = []string{
		"llava", "llava:34b", "bakllava",
		"qwen2.5", "qwen:7b", "qwen:7b-vision",
		"qwen2.5vl:7b", "qwen2.5-vl", "qwen-vl", "qwen-vl-chat",
	}
	DefaultOllamaVisionModels = []string{
		"llava", "llava:34b", "bakllava",
		"qwen:7b-vision", "qwen2.5vl:7b", "qwen2.5-vl", "qwen-vl", "qwen-vl-chat",
	}
)

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "5000"),
			Environment:        getEnv("GO_ENV", "development"),
			Version:            getEnv("APP_VERSION", "1.0.0"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Keys: APIKeys{
			OpenAI: getEnv("OPENAI_API_KEY", ""),
			Claude: getEnv("CLAUDE_API_KEY", ""),
		},
		Ai: AIConfig{
			OllamaBaseURL:      strings.TrimRight(getEnv("OLLAMA_URL", "http://localhost:11434"), "/"),
			OllamaModel:        getEnv("OLLAMA_MODEL", "llava"),
			OllamaEnabled:      getEnvAsBool("OLLAMA_ENABLED", true),
			OllamaModels:       getEnvAsList("OLLAMA_MODELS", DefaultOllamaModels),
			OllamaVisionModels: getEnvAsList("OLLAMA_VISION_MODELS", DefaultOllamaVisionModels),
			OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o"),
			ClaudeBaseURL:      getEnv("CLAUDE_BASE_URL", "https://api.anthropic.com/v1"),
			ClaudeModel:        getEnv("CLAUDE_MODEL", "claude-3-5-sonnet-20241022"),
			ProviderTimeout:    time.Duration(getEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 120)) * time.Second,
			ProbeTimeout:       time.Duration(getEnvAsInt("PROBE_TIMEOUT_SECONDS", 2)) * time.Second,
		},
		Knowledge: KnowledgeConfig{
			Path:      getEnv("KNOWLEDGE_BASE_PATH", "knowledge/knowledge_base.json"),
			MaxChunks: getEnvAsInt("RETRIEVER_MAX_CHUNKS", 2),
		},
		Memory: MemoryConfig{
			TTL:       time.Duration(getEnvAsInt("MEMORY_TTL_SECONDS", 3600)) * time.Second,
			SweepCron: getEnv("MEMORY_SWEEP_CRON", "*/5 * * * *"),
		},
		Events: EventsConfig{
			NatsURL:     getEnv("NATS_URL", "nats://localhost:4222"),
			NatsEnabled: getEnvAsBool("NATS_ENABLED", false),
			Topic:       getEnv("EVENTS_TOPIC", "QUESTION_ANSWERED"),
		},
		Telemetry: TelemetryConfig{
			OtelEnabled:  getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList reads a comma separated list, dropping blank items.
func getEnvAsList(key string, fallback []string) []string {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, item := range strings.Split(strValue, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
