package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LineItem is one purchased product stored on an invoice
type LineItem struct {
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

type Invoice struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	SourceMessageID    string     `json:"source_message_id"`
	AttachmentID       string     `json:"attachment_id"`
	Filename           string     `json:"filename"`
	DocumentType       string     `json:"document_type"`
	Vendor             string     `json:"vendor"`
	PurchaseDate       *time.Time `json:"purchase_date,omitempty"`
	Amount             float64    `json:"amount"`
	Currency           string     `json:"currency"`
	InvoiceNumber      string     `json:"invoice_number,omitempty"`
	Category           string     `json:"category,omitempty"`
	WarrantyPeriodDays int        `json:"warranty_period_days"`
	Items              []LineItem `json:"items,omitempty"`
	Confidence         float64    `json:"confidence"`
	EmailSubject       string     `json:"email_subject"`
	EmailFrom          string     `json:"email_from"`
	EmailDate          *time.Time `json:"email_date,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// BodyOnly reports whether the invoice was parsed from a message body
// rather than an attachment.
func (i *Invoice) BodyOnly() bool {
	return i.AttachmentID == ""
}

// InvoiceStore handles database operations for invoices
type InvoiceStore struct {
	db *sql.DB
}

func NewInvoiceStore(db *sql.DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

const invoiceColumns = `id, user_id, source_message_id, attachment_id, filename,
		  document_type, vendor, purchase_date, amount, currency,
		  invoice_number, category, warranty_period_days, items_json,
		  confidence, email_subject, email_from, email_date,
		  created_at, updated_at`

func scanInvoice(scanner interface{ Scan(...any) error }) (*Invoice, error) {
	var invoice Invoice
	var itemsJSON string
	err := scanner.Scan(&invoice.ID, &invoice.UserID, &invoice.SourceMessageID,
		&invoice.AttachmentID, &invoice.Filename, &invoice.DocumentType,
		&invoice.Vendor, &invoice.PurchaseDate, &invoice.Amount,
		&invoice.Currency, &invoice.InvoiceNumber, &invoice.Category,
		&invoice.WarrantyPeriodDays, &itemsJSON, &invoice.Confidence,
		&invoice.EmailSubject, &invoice.EmailFrom, &invoice.EmailDate,
		&invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if itemsJSON != "" && itemsJSON != "[]" {
		if err := json.Unmarshal([]byte(itemsJSON), &invoice.Items); err != nil {
			return nil, fmt.Errorf("failed to decode items for invoice %s: %w", invoice.ID, err)
		}
	}

	return &invoice, nil
}

func encodeItems(items []LineItem) (string, error) {
	if len(items) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode items: %w", err)
	}
	return string(data), nil
}

// GetAll returns all invoices for a user, newest purchase first.
// Invoices without a purchase date sort last by creation time.
func (s *InvoiceStore) GetAll(userID string) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
			  FROM invoices WHERE user_id = ?
			  ORDER BY purchase_date DESC, created_at DESC`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}

	return invoices, rows.Err()
}

// GetByID returns an invoice by ID scoped to a user
func (s *InvoiceStore) GetByID(userID, id string) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
			  FROM invoices WHERE user_id = ? AND id = ?`

	invoice, err := scanInvoice(s.db.QueryRow(query, userID, id))
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// GetBySourceKey looks up an invoice by its dedup key. Returns (nil, nil)
// when no invoice exists for the key.
func (s *InvoiceStore) GetBySourceKey(userID, sourceMessageID, attachmentID string) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
			  FROM invoices
			  WHERE user_id = ? AND source_message_id = ? AND attachment_id = ?`

	invoice, err := scanInvoice(s.db.QueryRow(query, userID, sourceMessageID, attachmentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// Create inserts a new invoice, assigning an ID if none is set
func (s *InvoiceStore) Create(invoice *Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}

	itemsJSON, err := encodeItems(invoice.Items)
	if err != nil {
		return err
	}

	query := `INSERT INTO invoices (id, user_id, source_message_id, attachment_id,
			  filename, document_type, vendor, purchase_date, amount, currency,
			  invoice_number, category, warranty_period_days, items_json,
			  confidence, email_subject, email_from, email_date)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query, invoice.ID, invoice.UserID, invoice.SourceMessageID,
		invoice.AttachmentID, invoice.Filename, invoice.DocumentType,
		invoice.Vendor, invoice.PurchaseDate, invoice.Amount, invoice.Currency,
		invoice.InvoiceNumber, invoice.Category, invoice.WarrantyPeriodDays,
		itemsJSON, invoice.Confidence, invoice.EmailSubject, invoice.EmailFrom,
		invoice.EmailDate)
	if err != nil {
		return err
	}

	// Read back server-assigned timestamps
	return s.db.QueryRow("SELECT created_at, updated_at FROM invoices WHERE id = ?",
		invoice.ID).Scan(&invoice.CreatedAt, &invoice.UpdatedAt)
}

// Update replaces the parsed fields of an existing invoice. The invoice
// identity (id, user, source key, created_at) is preserved.
func (s *InvoiceStore) Update(invoice *Invoice) error {
	itemsJSON, err := encodeItems(invoice.Items)
	if err != nil {
		return err
	}

	query := `UPDATE invoices SET filename = ?, document_type = ?, vendor = ?,
			  purchase_date = ?, amount = ?, currency = ?, invoice_number = ?,
			  category = ?, warranty_period_days = ?, items_json = ?,
			  confidence = ?, email_subject = ?, email_from = ?, email_date = ?,
			  updated_at = CURRENT_TIMESTAMP
			  WHERE id = ? AND user_id = ?`

	result, err := s.db.Exec(query, invoice.Filename, invoice.DocumentType,
		invoice.Vendor, invoice.PurchaseDate, invoice.Amount, invoice.Currency,
		invoice.InvoiceNumber, invoice.Category, invoice.WarrantyPeriodDays,
		itemsJSON, invoice.Confidence, invoice.EmailSubject, invoice.EmailFrom,
		invoice.EmailDate, invoice.ID, invoice.UserID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return s.db.QueryRow("SELECT updated_at FROM invoices WHERE id = ?",
		invoice.ID).Scan(&invoice.UpdatedAt)
}

// Delete removes an invoice by ID scoped to a user
func (s *InvoiceStore) Delete(userID, id string) error {
	result, err := s.db.Exec("DELETE FROM invoices WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetRawPDF stores the raw document bytes for an invoice. Kept out of the
// regular column set so list queries never load blobs.
func (s *InvoiceStore) SetRawPDF(userID, id string, data []byte) error {
	result, err := s.db.Exec("UPDATE invoices SET raw_pdf = ? WHERE user_id = ? AND id = ?",
		data, userID, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetRawPDF returns the stored raw document bytes, or nil when none were kept
func (s *InvoiceStore) GetRawPDF(userID, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT raw_pdf FROM invoices WHERE user_id = ? AND id = ?",
		userID, id).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// CountByUser returns the number of stored invoices for a user
func (s *InvoiceStore) CountByUser(userID string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM invoices WHERE user_id = ?", userID).Scan(&count)
	return count, err
}
