package parser

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchemaJSON constrains LLM output before it is unmarshaled. The
// backend is untrusted; a well-formed JSON blob with the wrong shape must
// fail here, not surface as a zero-valued record.
const recordSchemaJSON = `{
  "type": "object",
  "anyOf": [
    {"required": ["vendor"]},
    {"required": ["amount"]}
  ],
  "properties": {
    "document_type": {"type": "string"},
    "vendor": {"type": "string"},
    "purchase_date": {"type": "string"},
    "amount": {"type": "number", "minimum": 0},
    "currency": {"type": "string"},
    "invoice_number": {"type": "string"},
    "category": {"type": "string"},
    "warranty_period_days": {"type": "integer", "minimum": 0},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "quantity": {"type": "integer", "minimum": 0},
          "unit_price": {"type": "number", "minimum": 0},
          "total_price": {"type": "number", "minimum": 0}
        }
      }
    },
    "confidence": {"type": "number"}
  }
}`

var recordSchema = jsonschema.MustCompileString("record.json", recordSchemaJSON)

// ValidateRecordJSON validates raw backend output against the record schema
func ValidateRecordJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := recordSchema.Validate(v); err != nil {
		return fmt.Errorf("response does not match record schema: %w", err)
	}
	return nil
}
