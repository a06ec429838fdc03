package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"invoice-tracking/internal/email"
)

// LineItem is one purchased product on a parsed document
type LineItem struct {
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

// ParsedRecord contains the structured fields extracted from a candidate
// document. PurchaseDate is ISO 8601 (YYYY-MM-DD).
type ParsedRecord struct {
	DocumentType       string     `json:"document_type"`
	Vendor             string     `json:"vendor"`
	PurchaseDate       string     `json:"purchase_date"`
	Amount             float64    `json:"amount"`
	Currency           string     `json:"currency"`
	InvoiceNumber      string     `json:"invoice_number,omitempty"`
	Category           string     `json:"category,omitempty"`
	WarrantyPeriodDays int        `json:"warranty_period_days,omitempty"`
	Items              []LineItem `json:"items,omitempty"`
	Confidence         float64    `json:"confidence"`
}

// Parser defines the interface for structured document parsing
type Parser interface {
	// Parse extracts structured fields from a candidate document
	Parse(ctx context.Context, candidate *email.CandidateDocument) (*ParsedRecord, error)

	// HealthCheck verifies the parsing backend is reachable
	HealthCheck(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Config selects and configures a parsing backend
type Config struct {
	Provider string // "gemini", "ollama", or "disabled"
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

// NewParser creates a parser for the configured provider
func NewParser(ctx context.Context, cfg Config) (Parser, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return NewGeminiParser(ctx, cfg.APIKey, cfg.Model)
	case "ollama":
		return NewOllamaParser(cfg.Endpoint, cfg.Model, cfg.Timeout)
	case "", "disabled":
		return NewNoOpParser(), nil
	default:
		return nil, fmt.Errorf("unknown parser provider: %s", cfg.Provider)
	}
}

// NoOpParser rejects every candidate. Used when no backend is configured.
type NoOpParser struct{}

// NewNoOpParser creates a no-op parser
func NewNoOpParser() *NoOpParser {
	return &NoOpParser{}
}

func (n *NoOpParser) Parse(ctx context.Context, candidate *email.CandidateDocument) (*ParsedRecord, error) {
	return nil, fmt.Errorf("no parsing backend configured")
}

func (n *NoOpParser) HealthCheck(ctx context.Context) error { return nil }
func (n *NoOpParser) Close() error                          { return nil }

// DefaultConfidence returns the baseline confidence for a candidate based
// on where its text came from. Attachment text is trusted most; body text
// standing in for failed attachments least.
func DefaultConfidence(candidate *email.CandidateDocument) float64 {
	switch {
	case candidate.AfterAttachmentFailure:
		return 0.2
	case candidate.BodyOnly():
		return 0.3
	default:
		return 0.8
	}
}

// invoiceParsePrompt is the shared prompt used by all LLM providers
const invoiceParsePrompt = `You are analyzing the text of an invoice, receipt, bill, or order confirmation. Extract the following information:

1. **document_type**: one of "invoice", "receipt", "warranty", "refund", or "document" if unclear.
2. **vendor**: the merchant or business name that issued the document.
3. **purchase_date**: the transaction or invoice date in ISO 8601 format (YYYY-MM-DD).
4. **amount**: the final total or grand total as a number (e.g. 1499.00).
5. **currency**: the ISO currency code (e.g. "INR", "USD").
6. **invoice_number**: the invoice or order number if present.
7. **category**: a short spending category such as "electronics", "food", "travel", "utilities".
8. **warranty_period_days**: warranty duration in days if the document mentions one, otherwise omit.
9. **items**: an array of {"name", "quantity", "unit_price", "total_price"} for each line item, if itemized.
10. **confidence**: your confidence in the extraction from 0.0 to 1.0.

Return ONLY valid JSON in this exact format:
{
  "document_type": "invoice",
  "vendor": "Store Name",
  "purchase_date": "YYYY-MM-DD",
  "amount": 0.00,
  "currency": "INR",
  "invoice_number": "INV-123",
  "category": "electronics",
  "warranty_period_days": 365,
  "items": [{"name": "Product", "quantity": 1, "unit_price": 0.00, "total_price": 0.00}],
  "confidence": 0.9
}

Important:
- The amount must be a number, not a string
- Omit fields you cannot find rather than guessing
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// parseRecordJSON parses and validates an LLM JSON response
func parseRecordJSON(text string) (*ParsedRecord, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	if err := ValidateRecordJSON([]byte(text)); err != nil {
		return nil, err
	}

	var record ParsedRecord
	if err := json.Unmarshal([]byte(text), &record); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}

	normalizeRecord(&record)

	return &record, nil
}

// dateFormats are tried in order when the backend returns a non-ISO date
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

func normalizeRecord(record *ParsedRecord) {
	record.Vendor = strings.TrimSpace(record.Vendor)
	if record.Vendor == "" {
		record.Vendor = "Unknown Vendor"
	}

	if record.DocumentType == "" {
		record.DocumentType = "document"
	}

	if record.Currency == "" {
		record.Currency = "INR"
	}

	if record.PurchaseDate != "" {
		for _, format := range dateFormats {
			if d, err := time.Parse(format, record.PurchaseDate); err == nil {
				record.PurchaseDate = d.Format("2006-01-02")
				break
			}
		}
	}

	if record.Confidence < 0 {
		record.Confidence = 0
	}
	if record.Confidence > 1 {
		record.Confidence = 1
	}
}
