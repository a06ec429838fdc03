package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"invoice-tracking/internal/database"
	"invoice-tracking/internal/handlers"
	"invoice-tracking/internal/pipeline"
)

// Client handles HTTP requests to the invoice tracking API
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	config     *ClientConfig
}

// ClientConfig configures the API client behavior
type ClientConfig struct {
	BaseURL       string
	UserID        string
	Timeout       time.Duration
	RetryCount    int
	RetryDelay    time.Duration
	UserAgent     string
	BackoffFactor float64
}

// RetryableError represents an error that should be retried
type RetryableError struct {
	Message    string
	StatusCode int
	Retryable  bool
}

func (e *RetryableError) Error() string {
	return e.Message
}

// NewClient creates a new API client
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = &ClientConfig{}
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.UserID == "" {
		config.UserID = "default"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "invoice-tracker/1.0"
	}
	if config.RetryCount == 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 1 * time.Second
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = 2.0
	}

	return &Client{
		baseURL:    config.BaseURL,
		userID:     config.UserID,
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}
}

// ProcessInvoices triggers a mailbox processing run
func (c *Client) ProcessInvoices(req *handlers.ProcessRequest) (*pipeline.Run, error) {
	var run pipeline.Run
	if err := c.doWithRetry("POST", "/api/process", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RetryFailed triggers a retry run over the failure backlog
func (c *Client) RetryFailed(req *handlers.ProcessRequest) (*pipeline.Run, error) {
	var run pipeline.Run
	if err := c.doWithRetry("POST", "/api/retry", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetInvoices lists stored invoices with pagination
func (c *Client) GetInvoices(limit, offset int) (*handlers.InvoiceListResponse, error) {
	path := fmt.Sprintf("/api/invoices?limit=%d&offset=%d", limit, offset)
	var response handlers.InvoiceListResponse
	if err := c.doWithRetry("GET", path, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetInvoice retrieves a single invoice by ID
func (c *Client) GetInvoice(id string) (*database.Invoice, error) {
	var invoice database.Invoice
	if err := c.doWithRetry("GET", "/api/invoices/"+url.PathEscape(id), nil, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// DeleteInvoice removes a stored invoice
func (c *Client) DeleteInvoice(id string) error {
	return c.doWithRetry("DELETE", "/api/invoices/"+url.PathEscape(id), nil, nil)
}

// GetStats retrieves spend aggregates and warranty alerts
func (c *Client) GetStats(forceRefresh bool) (*handlers.StatsResponse, error) {
	path := "/api/stats"
	if forceRefresh {
		path += "?refresh=true"
	}
	var response handlers.StatsResponse
	if err := c.doWithRetry("GET", path, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetFailures lists candidates awaiting retry
func (c *Client) GetFailures() (*handlers.FailuresResponse, error) {
	var response handlers.FailuresResponse
	if err := c.doWithRetry("GET", "/api/failures", nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// HealthCheck verifies the API is accessible
func (c *Client) HealthCheck() (*handlers.HealthResponse, error) {
	var response handlers.HealthResponse
	if err := c.doWithRetry("GET", "/api/health", nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// doWithRetry executes a request, retrying server errors with backoff
func (c *Client) doWithRetry(method, path string, body interface{}, out interface{}) error {
	var requestBody []byte
	if body != nil {
		var err error
		requestBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		err := c.execute(method, path, requestBody, out)
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt < c.config.RetryCount {
			time.Sleep(c.backoffDelay(attempt))
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.config.RetryCount+1, lastErr)
}

// execute issues a single HTTP request and decodes the response
func (c *Client) execute(method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(handlers.UserIDHeader, c.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("HTTP request failed: %v", err), Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
		}
		return nil

	case resp.StatusCode >= 500:
		return &RetryableError{
			Message:    fmt.Sprintf("server error (%d): %s", resp.StatusCode, string(respBody)),
			StatusCode: resp.StatusCode,
			Retryable:  true,
		}

	default:
		return &RetryableError{
			Message:    fmt.Sprintf("API error (%d): %s", resp.StatusCode, string(respBody)),
			StatusCode: resp.StatusCode,
			Retryable:  false,
		}
	}
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if retryableErr, ok := err.(*RetryableError); ok {
		return retryableErr.Retryable
	}
	return false
}

// backoffDelay calculates the delay for exponential backoff
func (c *Client) backoffDelay(attempt int) time.Duration {
	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.config.BackoffFactor
	}

	delay := time.Duration(float64(c.config.RetryDelay) * multiplier)

	// Cap the maximum delay at 30 seconds
	maxDelay := 30 * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// GetBaseURL returns the configured base URL
func (c *Client) GetBaseURL() string {
	return c.baseURL
}
