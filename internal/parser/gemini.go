package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"invoice-tracking/internal/email"
)

// GeminiParser implements Parser using Google Gemini
type GeminiParser struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiParser creates a Gemini-backed parser
func NewGeminiParser(ctx context.Context, apiKey string, modelName string) (*GeminiParser, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	return &GeminiParser{
		client: client,
		model:  model,
	}, nil
}

// Parse sends the candidate text to Gemini and decodes the JSON response
func (g *GeminiParser) Parse(ctx context.Context, candidate *email.CandidateDocument) (*ParsedRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	parts := []genai.Part{
		genai.Text(invoiceParsePrompt),
		genai.Text(buildDocumentContext(candidate)),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	record, err := parseRecordJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing gemini response: %w", err)
	}

	applyConfidenceFloor(record, candidate)

	return record, nil
}

// HealthCheck issues a minimal generation to verify the API key works
func (g *GeminiParser) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := g.model.GenerateContent(ctx, genai.Text("ping")); err != nil {
		return fmt.Errorf("gemini health check failed: %w", err)
	}
	return nil
}

// Close closes the Gemini client
func (g *GeminiParser) Close() error {
	return g.client.Close()
}

// buildDocumentContext prepends email metadata to the raw text so the
// backend can fall back on the subject line when the body is sparse.
func buildDocumentContext(candidate *email.CandidateDocument) string {
	var b strings.Builder
	b.WriteString("Email subject: ")
	b.WriteString(candidate.EmailSubject)
	b.WriteString("\nEmail from: ")
	b.WriteString(candidate.EmailFrom)
	if !candidate.EmailDate.IsZero() {
		b.WriteString("\nEmail date: ")
		b.WriteString(candidate.EmailDate.Format("2006-01-02"))
	}
	if candidate.Filename != "" {
		b.WriteString("\nAttachment: ")
		b.WriteString(candidate.Filename)
	}
	b.WriteString("\n\nDocument text:\n")
	b.WriteString(candidate.RawText)
	return b.String()
}

// applyConfidenceFloor replaces a missing backend confidence with the
// source-based default and caps body-derived records at that default.
func applyConfidenceFloor(record *ParsedRecord, candidate *email.CandidateDocument) {
	fallback := DefaultConfidence(candidate)
	if record.Confidence == 0 {
		record.Confidence = fallback
	}
	if candidate.BodyOnly() && record.Confidence > fallback {
		record.Confidence = fallback
	}
}
