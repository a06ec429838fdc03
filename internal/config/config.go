package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Parser provider constants
const (
	ParserProviderGemini   = "gemini"
	ParserProviderOllama   = "ollama"
	ParserProviderDisabled = "disabled"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort string
	ServerHost string

	// Database configuration
	DBPath string

	// Gmail OAuth2 credentials
	GmailClientID     string
	GmailClientSecret string
	GmailRefreshToken string
	GmailAccessToken  string

	// Parser configuration
	ParserProvider string
	GeminiAPIKey   string
	GeminiModel    string
	OllamaURL      string
	OllamaModel    string
	ParserTimeout  time.Duration

	// Pipeline tuning
	ProcessDays    int
	MaxResults     int
	WorkerCount    int
	RunTimeout     time.Duration
	StoreRawPDF    bool
	SkipExisting   bool

	// Cache configuration
	CacheTTL time.Duration

	// Logging
	LogLevel string

	// Development/testing flags
	DisableRateLimit bool
	DisableCache     bool
}

// Load loads configuration from environment variables with defaults
// If a .env file exists, it will be loaded first
func Load() (*Config, error) {
	// Try to load .env file if it exists
	loadEnvFile(".env")
	config := &Config{
		// Server defaults
		ServerPort: getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost: getEnvOrDefault("SERVER_HOST", "localhost"),

		// Database defaults
		DBPath: getEnvOrDefault("DB_PATH", "./invoices.db"),

		// Gmail credentials (optional until a scan is requested)
		GmailClientID:     os.Getenv("GMAIL_CLIENT_ID"),
		GmailClientSecret: os.Getenv("GMAIL_CLIENT_SECRET"),
		GmailRefreshToken: os.Getenv("GMAIL_REFRESH_TOKEN"),
		GmailAccessToken:  os.Getenv("GMAIL_ACCESS_TOKEN"),

		// Parser defaults
		ParserProvider: getEnvOrDefault("PARSER_PROVIDER", ParserProviderDisabled),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		OllamaURL:      getEnvOrDefault("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:    getEnvOrDefault("OLLAMA_MODEL", "llama3.2"),
		ParserTimeout:  getEnvDurationOrDefault("PARSER_TIMEOUT", "120s"),

		// Pipeline defaults
		ProcessDays:  getEnvIntOrDefault("PROCESS_DAYS", 30),
		MaxResults:   getEnvIntOrDefault("MAX_RESULTS", 50),
		WorkerCount:  getEnvIntOrDefault("WORKER_COUNT", 4),
		RunTimeout:   getEnvDurationOrDefault("RUN_TIMEOUT", "5m"),
		StoreRawPDF:  getEnvBoolOrDefault("STORE_RAW_PDF", false),
		SkipExisting: getEnvBoolOrDefault("SKIP_EXISTING", true),

		// Cache default
		CacheTTL: getEnvDurationOrDefault("CACHE_TTL", "120s"),

		// Logging
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		// Development/testing flags
		DisableRateLimit: getEnvBoolOrDefault("DISABLE_RATE_LIMIT", false),
		DisableCache:     getEnvBoolOrDefault("DISABLE_CACHE", false),
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	// Validate server port
	if c.ServerPort == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	// Check if port is a valid number
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid server port: %s", c.ServerPort)
	}

	// Validate database path
	if c.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	// Validate parser provider
	switch c.ParserProvider {
	case ParserProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when parser provider is gemini")
		}
	case ParserProviderOllama, ParserProviderDisabled:
	default:
		return fmt.Errorf("invalid parser provider: %s (must be one of: gemini, ollama, disabled)", c.ParserProvider)
	}

	// Validate pipeline tuning
	if c.ProcessDays < 1 {
		return fmt.Errorf("process days must be positive")
	}
	if c.MaxResults < 1 {
		return fmt.Errorf("max results must be positive")
	}
	if c.WorkerCount < 1 || c.WorkerCount > 32 {
		return fmt.Errorf("worker count must be between 1 and 32")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run timeout must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	isValidLogLevel := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValidLogLevel = true
			break
		}
	}
	if !isValidLogLevel {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

// HasGmailCredentials reports whether OAuth2 credentials are configured
func (c *Config) HasGmailCredentials() bool {
	return c.GmailClientID != "" && c.GmailClientSecret != "" && c.GmailRefreshToken != ""
}

// GetDisableRateLimit returns the rate limit disable flag
func (c *Config) GetDisableRateLimit() bool {
	return c.DisableRateLimit
}

// GetDisableCache returns the cache disable flag
func (c *Config) GetDisableCache() bool {
	return c.DisableCache
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDurationOrDefault returns environment variable as duration or default
func getEnvDurationOrDefault(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}

	// Parse default value
	duration, err := time.ParseDuration(defaultValue)
	if err != nil {
		return time.Hour // Fallback to 1 hour
	}
	return duration
}

// getEnvBoolOrDefault returns environment variable as boolean or default
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvIntOrDefault returns environment variable as integer or default
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// loadEnvFile loads environment variables from a .env file if it exists
func loadEnvFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		// .env file doesn't exist or can't be opened, which is fine
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Split on first '=' character
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if (strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
			(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
			value = value[1 : len(value)-1]
		}

		// Only set if not already set in environment
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
