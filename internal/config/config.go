package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port         string
	DataDir      string // Root directory for generated slide/style image files
	DatabasePath string // SQLite database file path
	RedisURL     string // Optional: enables cross-instance event fan-out when set

	// Image generation engines
	GeminiAPIKey      string
	GeminiBaseURL     string
	GeminiModel       string
	VolcengineAPIKey  string
	VolcengineBaseURL string
	VolcengineModel   string
	DefaultEngine     string

	GenerationTimeout time.Duration // Hard cap for a single provider call

	// Realtime channel
	HeartbeatInterval time.Duration // Client-initiated ping cadence; read deadline is 3x this

	// Style candidates
	StyleCandidateCount int
	StyleCandidateTTL   time.Duration

	// Cost accounting (USD per generated image)
	CostPerStyleImage float64
	CostPerSlideImage float64
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "3001"),
		DataDir:      getEnv("DATA_DIR", "./data/slides"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/genslides.db"),
		RedisURL:     getEnv("REDIS_URL", ""),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash-exp"),
		VolcengineAPIKey:  getEnv("VOLCENGINE_API_KEY", ""),
		VolcengineBaseURL: getEnv("VOLCENGINE_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		VolcengineModel:   getEnv("VOLCENGINE_MODEL", "doubao-seedream-3-0-t2i"),
		DefaultEngine:     getEnv("DEFAULT_ENGINE", "volcengine"),

		GenerationTimeout: getDurationEnv("GENERATION_TIMEOUT", 3*time.Minute),

		HeartbeatInterval: getDurationEnv("HEARTBEAT_INTERVAL", 30*time.Second),

		StyleCandidateCount: getIntEnv("STYLE_CANDIDATE_COUNT", 2),
		StyleCandidateTTL:   getDurationEnv("STYLE_CANDIDATE_TTL", 30*time.Minute),

		CostPerStyleImage: getFloatEnv("COST_PER_STYLE_IMAGE", 0.02),
		CostPerSlideImage: getFloatEnv("COST_PER_SLIDE_IMAGE", 0.02),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
