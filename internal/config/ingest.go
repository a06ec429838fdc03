package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// IngestConfig holds configuration for the periodic ingest daemon
type IngestConfig struct {
	Gmail      IngestGmailConfig      `json:"gmail"`
	Search     IngestSearchConfig     `json:"search"`
	Processing IngestProcessingConfig `json:"processing"`
	API        IngestAPIConfig        `json:"api"`
}

// IngestGmailConfig holds Gmail-specific daemon configuration
type IngestGmailConfig struct {
	ClientID       string        `json:"client_id"`
	ClientSecret   string        `json:"client_secret"`
	RefreshToken   string        `json:"refresh_token"`
	AccessToken    string        `json:"access_token"`
	MaxResults     int64         `json:"max_results"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RateLimitDelay time.Duration `json:"rate_limit_delay"`
}

// IngestSearchConfig holds mailbox search configuration
type IngestSearchConfig struct {
	Query           string   `json:"query"`
	AfterDays       int      `json:"after_days"`
	MaxResults      int      `json:"max_results"`
	SubjectKeywords []string `json:"subject_keywords"`
	VendorDomains   []string `json:"vendor_domains"`
}

// IngestProcessingConfig holds pipeline run configuration
type IngestProcessingConfig struct {
	CheckInterval     time.Duration `json:"check_interval"`
	ProcessingTimeout time.Duration `json:"processing_timeout"`
	Workers           int           `json:"workers"`
	SkipExisting      bool          `json:"skip_existing"`
	StoreRawPDF       bool          `json:"store_raw_pdf"`
	RetryFailed       bool          `json:"retry_failed"`
	UserID            string        `json:"user_id"`
	DryRun            bool          `json:"dry_run"`
}

// IngestAPIConfig holds API client configuration for the daemon
type IngestAPIConfig struct {
	URL           string        `json:"url"`
	Timeout       time.Duration `json:"timeout"`
	RetryCount    int           `json:"retry_count"`
	RetryDelay    time.Duration `json:"retry_delay"`
	UserAgent     string        `json:"user_agent"`
	BackoffFactor float64       `json:"backoff_factor"`
}

// LoadIngestConfig loads ingest configuration using a fresh Viper instance
func LoadIngestConfig() (*IngestConfig, error) {
	return LoadIngestConfigWithViper(viper.New())
}

// LoadIngestConfigWithViper loads ingest configuration using the given Viper instance
func LoadIngestConfigWithViper(v *viper.Viper) (*IngestConfig, error) {
	setIngestDefaults(v)
	setupIngestEnvBinding(v)

	if err := loadIngestConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &IngestConfig{}
	if err := unmarshalIngestConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setIngestDefaults sets default values for ingest configuration
func setIngestDefaults(v *viper.Viper) {
	// Gmail defaults
	v.SetDefault("gmail.max_results", 100)
	v.SetDefault("gmail.request_timeout", "30s")
	v.SetDefault("gmail.rate_limit_delay", "100ms")

	// Search defaults
	v.SetDefault("search.query", "")
	v.SetDefault("search.after_days", 30)
	v.SetDefault("search.max_results", 50)
	v.SetDefault("search.subject_keywords", "")
	v.SetDefault("search.vendor_domains", "")

	// Processing defaults
	v.SetDefault("processing.check_interval", "1h")
	v.SetDefault("processing.processing_timeout", "5m")
	v.SetDefault("processing.workers", 4)
	v.SetDefault("processing.skip_existing", true)
	v.SetDefault("processing.store_raw_pdf", false)
	v.SetDefault("processing.retry_failed", true)
	v.SetDefault("processing.user_id", "default")
	v.SetDefault("processing.dry_run", false)

	// API defaults
	v.SetDefault("api.url", "http://localhost:8080")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.retry_count", 3)
	v.SetDefault("api.retry_delay", "1s")
	v.SetDefault("api.user_agent", "invoice-ingest/1.0")
	v.SetDefault("api.backoff_factor", 2.0)
}

// setupIngestEnvBinding sets up environment variable binding for ingest configuration
func setupIngestEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix("INVOICE_TRACKER")
	v.AutomaticEnv()

	envBindings := map[string]string{
		// Gmail
		"gmail.client_id":        "GMAIL_CLIENT_ID",
		"gmail.client_secret":    "GMAIL_CLIENT_SECRET",
		"gmail.refresh_token":    "GMAIL_REFRESH_TOKEN",
		"gmail.access_token":     "GMAIL_ACCESS_TOKEN",
		"gmail.max_results":      "GMAIL_MAX_RESULTS",
		"gmail.request_timeout":  "GMAIL_REQUEST_TIMEOUT",
		"gmail.rate_limit_delay": "GMAIL_RATE_LIMIT_DELAY",

		// Search
		"search.query":            "SEARCH_QUERY",
		"search.after_days":       "SEARCH_AFTER_DAYS",
		"search.max_results":      "SEARCH_MAX_RESULTS",
		"search.subject_keywords": "SEARCH_SUBJECT_KEYWORDS",
		"search.vendor_domains":   "SEARCH_VENDOR_DOMAINS",

		// Processing
		"processing.check_interval":     "CHECK_INTERVAL",
		"processing.processing_timeout": "PROCESSING_TIMEOUT",
		"processing.workers":            "WORKERS",
		"processing.skip_existing":      "SKIP_EXISTING",
		"processing.store_raw_pdf":      "STORE_RAW_PDF",
		"processing.retry_failed":       "RETRY_FAILED",
		"processing.user_id":            "USER_ID",
		"processing.dry_run":            "DRY_RUN",

		// API
		"api.url":            "API_URL",
		"api.timeout":        "API_TIMEOUT",
		"api.retry_count":    "API_RETRY_COUNT",
		"api.retry_delay":    "API_RETRY_DELAY",
		"api.user_agent":     "API_USER_AGENT",
		"api.backoff_factor": "API_BACKOFF_FACTOR",
	}

	for configKey, envSuffix := range envBindings {
		v.BindEnv(configKey, "INVOICE_TRACKER_"+envSuffix)
	}

	// Bind bare environment variables shared with the server config
	bareBindings := map[string]string{
		"gmail.client_id":     "GMAIL_CLIENT_ID",
		"gmail.client_secret": "GMAIL_CLIENT_SECRET",
		"gmail.refresh_token": "GMAIL_REFRESH_TOKEN",
		"gmail.access_token":  "GMAIL_ACCESS_TOKEN",
	}

	for configKey, envVar := range bareBindings {
		v.BindEnv(configKey, envVar)
	}
}

// loadIngestConfigFile loads configuration file if it exists
func loadIngestConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.invoice-tracker")
		v.SetConfigName("invoice-ingest")
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, only return error if it's not a "not found" error
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return err
		}
	}

	return nil
}

// unmarshalIngestConfig unmarshals Viper configuration into IngestConfig struct
func unmarshalIngestConfig(v *viper.Viper, config *IngestConfig) error {
	config.Gmail.ClientID = v.GetString("gmail.client_id")
	config.Gmail.ClientSecret = v.GetString("gmail.client_secret")
	config.Gmail.RefreshToken = v.GetString("gmail.refresh_token")
	config.Gmail.AccessToken = v.GetString("gmail.access_token")
	config.Gmail.MaxResults = v.GetInt64("gmail.max_results")

	var err error
	config.Gmail.RequestTimeout, err = time.ParseDuration(v.GetString("gmail.request_timeout"))
	if err != nil {
		return fmt.Errorf("invalid gmail request timeout: %w", err)
	}

	config.Gmail.RateLimitDelay, err = time.ParseDuration(v.GetString("gmail.rate_limit_delay"))
	if err != nil {
		return fmt.Errorf("invalid gmail rate limit delay: %w", err)
	}

	config.Search.Query = v.GetString("search.query")
	config.Search.AfterDays = v.GetInt("search.after_days")
	config.Search.MaxResults = v.GetInt("search.max_results")
	config.Search.SubjectKeywords = parseStringSlice(v.GetString("search.subject_keywords"))
	config.Search.VendorDomains = parseStringSlice(v.GetString("search.vendor_domains"))

	config.Processing.CheckInterval, err = time.ParseDuration(v.GetString("processing.check_interval"))
	if err != nil {
		return fmt.Errorf("invalid processing check interval: %w", err)
	}

	config.Processing.ProcessingTimeout, err = time.ParseDuration(v.GetString("processing.processing_timeout"))
	if err != nil {
		return fmt.Errorf("invalid processing timeout: %w", err)
	}

	config.Processing.Workers = v.GetInt("processing.workers")
	config.Processing.SkipExisting = v.GetBool("processing.skip_existing")
	config.Processing.StoreRawPDF = v.GetBool("processing.store_raw_pdf")
	config.Processing.RetryFailed = v.GetBool("processing.retry_failed")
	config.Processing.UserID = v.GetString("processing.user_id")
	config.Processing.DryRun = v.GetBool("processing.dry_run")

	config.API.URL = v.GetString("api.url")
	config.API.Timeout, err = time.ParseDuration(v.GetString("api.timeout"))
	if err != nil {
		return fmt.Errorf("invalid API timeout: %w", err)
	}

	config.API.RetryCount = v.GetInt("api.retry_count")
	config.API.RetryDelay, err = time.ParseDuration(v.GetString("api.retry_delay"))
	if err != nil {
		return fmt.Errorf("invalid API retry delay: %w", err)
	}

	config.API.UserAgent = v.GetString("api.user_agent")
	config.API.BackoffFactor = v.GetFloat64("api.backoff_factor")

	return nil
}

// validate checks if the ingest configuration is valid
func (c *IngestConfig) validate() error {
	if c.Processing.CheckInterval < time.Minute {
		return fmt.Errorf("check interval must be at least 1 minute")
	}
	if c.Processing.ProcessingTimeout <= 0 {
		return fmt.Errorf("processing timeout must be positive")
	}
	if c.Processing.Workers < 1 || c.Processing.Workers > 32 {
		return fmt.Errorf("workers must be between 1 and 32")
	}
	if c.Processing.UserID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if c.Search.AfterDays < 1 {
		return fmt.Errorf("search after days must be positive")
	}
	if c.API.URL == "" {
		return fmt.Errorf("API URL cannot be empty")
	}
	if !strings.HasPrefix(c.API.URL, "http://") && !strings.HasPrefix(c.API.URL, "https://") {
		return fmt.Errorf("API URL must start with http:// or https://")
	}
	return nil
}

// parseStringSlice parses comma-separated string into slice
func parseStringSlice(s string) []string {
	if s == "" {
		return nil
	}

	var parts []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
