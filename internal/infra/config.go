package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv              string
	Port                string
	StoragePath         string
	StoreDriver         string
	DatabaseURL         string
	DBMaxConns          int
	DBMinConns          int
	DBMaxConnLifetime   time.Duration
	DBMaxConnIdleTime   time.Duration
	RedisURL            string
	PromptProvider      string
	ImageProvider       string
	OpenAIAPIKey        string
	OpenAIModel         string
	OpenAIBaseURL       string
	GeminiAPIKey        string
	GeminiBaseURL       string
	GeminiTextModel     string
	GeminiImageModel    string
	GeminiVisionModel   string
	OllamaHost          string
	OllamaModel         string
	UploadAnalysis      bool
	CORSAllowedOrigins  []string
	DefaultLocale       string
	GeoIPDBPath         string
	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPIdleTimeout     time.Duration
	CollaboratorTimeout time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "5000"),
		StoragePath:         getEnv("STORAGE_PATH", "./uploads"),
		StoreDriver:         strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMemory)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DBMaxConns:          getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:          getEnvInt("DB_MIN_CONNS", 1),
		DBMaxConnLifetime:   time.Minute * time.Duration(getEnvInt("DB_MAX_CONN_LIFETIME_MINUTES", 60)),
		DBMaxConnIdleTime:   time.Minute * time.Duration(getEnvInt("DB_MAX_CONN_IDLE_MINUTES", 30)),
		RedisURL:            os.Getenv("REDIS_URL"),
		PromptProvider:      strings.ToLower(getEnv("PROMPT_PROVIDER", "openai")),
		ImageProvider:       strings.ToLower(getEnv("IMAGE_PROVIDER", "gemini")),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiTextModel:     getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiImageModel:    getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image-preview"),
		GeminiVisionModel:   getEnv("GEMINI_VISION_MODEL", "gemini-2.5-pro"),
		OllamaHost:          getEnv("OLLAMA_HOST", "http://127.0.0.1:11434"),
		OllamaModel:         getEnv("OLLAMA_MODEL", "llama3.2"),
		UploadAnalysis:      getEnvBool("UPLOAD_ANALYSIS", false),
		CORSAllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS"),
		DefaultLocale:       getEnv("DEFAULT_LOCALE", "en"),
		GeoIPDBPath:         os.Getenv("GEOIP_DB_PATH"),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		CollaboratorTimeout: time.Second * time.Duration(getEnvInt("COLLABORATOR_TIMEOUT_SECONDS", 120)),
	}

	switch cfg.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
		if cfg.DBMaxConns < 1 || cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
			return nil, fmt.Errorf("invalid DB pool size: min %d, max %d", cfg.DBMinConns, cfg.DBMaxConns)
		}
	case StoreDriverRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when STORE_DRIVER=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.PromptProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when PROMPT_PROVIDER=openai")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when PROMPT_PROVIDER=gemini")
		}
	case "ollama", "static":
	default:
		return nil, fmt.Errorf("unsupported PROMPT_PROVIDER %q", cfg.PromptProvider)
	}

	switch cfg.ImageProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when IMAGE_PROVIDER=gemini")
		}
	case "synthetic":
	default:
		return nil, fmt.Errorf("unsupported IMAGE_PROVIDER %q", cfg.ImageProvider)
	}

	if cfg.UploadAnalysis && cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required when UPLOAD_ANALYSIS is enabled")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
