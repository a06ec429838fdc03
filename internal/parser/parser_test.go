package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-tracking/internal/email"
)

func TestParseRecordJSON(t *testing.T) {
	raw := `{
		"document_type": "invoice",
		"vendor": "Atomberg",
		"purchase_date": "2025-05-20",
		"amount": 3499.00,
		"currency": "INR",
		"invoice_number": "INV-2025-0042",
		"category": "electronics",
		"warranty_period_days": 730,
		"items": [{"name": "Ceiling Fan", "quantity": 1, "unit_price": 3499.00, "total_price": 3499.00}],
		"confidence": 0.92
	}`

	record, err := parseRecordJSON(raw)
	require.NoError(t, err)

	assert.Equal(t, "invoice", record.DocumentType)
	assert.Equal(t, "Atomberg", record.Vendor)
	assert.Equal(t, "2025-05-20", record.PurchaseDate)
	assert.Equal(t, 3499.00, record.Amount)
	assert.Equal(t, "INR", record.Currency)
	assert.Equal(t, "INV-2025-0042", record.InvoiceNumber)
	assert.Equal(t, 730, record.WarrantyPeriodDays)
	require.Len(t, record.Items, 1)
	assert.Equal(t, "Ceiling Fan", record.Items[0].Name)
	assert.Equal(t, 3499.00, record.Items[0].UnitPrice)
	assert.Equal(t, 3499.00, record.Items[0].TotalPrice)
	assert.InDelta(t, 0.92, record.Confidence, 0.001)
}

func TestParseRecordJSONStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"vendor\": \"Amazon\", \"amount\": 999.0}\n```"

	record, err := parseRecordJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "Amazon", record.Vendor)
	assert.Equal(t, 999.0, record.Amount)
}

func TestParseRecordJSONExtractsEmbeddedObject(t *testing.T) {
	raw := `Here is the extracted data: {"vendor": "Myntra", "amount": 2100.5} Hope this helps!`

	record, err := parseRecordJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "Myntra", record.Vendor)
}

func TestParseRecordJSONRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no JSON", "sorry, I could not read the document"},
		{"vendor and amount both missing", `{"document_type": "invoice"}`},
		{"amount as string", `{"vendor": "Amazon", "amount": "999"}`},
		{"negative amount", `{"vendor": "Amazon", "amount": -5}`},
		{"malformed", `{"vendor": "Amazon",`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRecordJSON(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestParseRecordJSONNormalizesDefaults(t *testing.T) {
	record, err := parseRecordJSON(`{"vendor": "  ", "amount": 100, "purchase_date": "05/20/2025"}`)
	require.NoError(t, err)

	assert.Equal(t, "Unknown Vendor", record.Vendor)
	assert.Equal(t, "document", record.DocumentType)
	assert.Equal(t, "INR", record.Currency)
	assert.Equal(t, "2025-05-20", record.PurchaseDate)
}

func TestDefaultConfidence(t *testing.T) {
	attachment := &email.CandidateDocument{AttachmentID: "att-1"}
	bodyOnly := &email.CandidateDocument{}
	fallback := &email.CandidateDocument{AfterAttachmentFailure: true}

	assert.Equal(t, 0.8, DefaultConfidence(attachment))
	assert.Equal(t, 0.3, DefaultConfidence(bodyOnly))
	assert.Equal(t, 0.2, DefaultConfidence(fallback))
}

func TestApplyConfidenceFloor(t *testing.T) {
	t.Run("missing confidence gets source default", func(t *testing.T) {
		record := &ParsedRecord{}
		applyConfidenceFloor(record, &email.CandidateDocument{AttachmentID: "att-1"})
		assert.Equal(t, 0.8, record.Confidence)
	})

	t.Run("body-only confidence is capped", func(t *testing.T) {
		record := &ParsedRecord{Confidence: 0.95}
		applyConfidenceFloor(record, &email.CandidateDocument{})
		assert.Equal(t, 0.3, record.Confidence)
	})

	t.Run("attachment confidence is kept", func(t *testing.T) {
		record := &ParsedRecord{Confidence: 0.95}
		applyConfidenceFloor(record, &email.CandidateDocument{AttachmentID: "att-1"})
		assert.Equal(t, 0.95, record.Confidence)
	})
}

func TestNoOpParserRejectsEverything(t *testing.T) {
	p := NewNoOpParser()

	_, err := p.Parse(context.Background(), &email.CandidateDocument{RawText: "total 100"})
	assert.Error(t, err)
	assert.NoError(t, p.HealthCheck(context.Background()))
	assert.NoError(t, p.Close())
}
