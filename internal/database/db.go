package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sql.DB connection and provides access to stores
type DB struct {
	*sql.DB
	Invoices         *InvoiceStore
	FailedCandidates *FailedCandidateStore
}

// Open opens a database connection and initializes stores
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable foreign key constraints in SQLite
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	database := &DB{
		DB:               db,
		Invoices:         NewInvoiceStore(db),
		FailedCandidates: NewFailedCandidateStore(db),
	}

	// Run migrations
	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		source_message_id TEXT NOT NULL,
		attachment_id TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL DEFAULT '',
		document_type TEXT NOT NULL DEFAULT 'document',
		vendor TEXT NOT NULL,
		purchase_date DATETIME,
		amount REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'INR',
		invoice_number TEXT NOT NULL DEFAULT '',
		items_json TEXT NOT NULL DEFAULT '[]',
		confidence REAL NOT NULL DEFAULT 0,
		email_subject TEXT NOT NULL DEFAULT '',
		email_from TEXT NOT NULL DEFAULT '',
		email_date DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, source_message_id, attachment_id)
	);

	CREATE TABLE IF NOT EXISTS failed_candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		source_message_id TEXT NOT NULL,
		attachment_id TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL DEFAULT '',
		email_subject TEXT NOT NULL DEFAULT '',
		email_from TEXT NOT NULL DEFAULT '',
		email_date DATETIME,
		stage TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 1,
		permanent BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, source_message_id, attachment_id)
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_user ON invoices(user_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_user_date ON invoices(user_id, purchase_date);
	CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices(user_id, vendor);
	CREATE INDEX IF NOT EXISTS idx_failed_candidates_user ON failed_candidates(user_id, permanent);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Run warranty field migrations for existing databases
	if err := db.migrateWarrantyFields(); err != nil {
		return err
	}

	// Run raw document storage migration
	return db.migrateRawPdfField()
}

// migrateWarrantyFields adds warranty-related fields to existing databases
func (db *DB) migrateWarrantyFields() error {
	// Check if columns already exist
	var columnExists int
	err := db.QueryRow(`
		SELECT COUNT(*)
		FROM pragma_table_info('invoices')
		WHERE name = 'warranty_period_days'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check column existence: %w", err)
	}

	// If columns don't exist, add them
	if columnExists == 0 {
		alterQueries := []string{
			"ALTER TABLE invoices ADD COLUMN warranty_period_days INTEGER NOT NULL DEFAULT 0",
			"ALTER TABLE invoices ADD COLUMN category TEXT NOT NULL DEFAULT ''",
		}

		for _, query := range alterQueries {
			if _, err := db.Exec(query); err != nil {
				return fmt.Errorf("failed to execute migration query '%s': %w", query, err)
			}
		}
	}

	return nil
}

// migrateRawPdfField adds optional raw document storage to existing databases
func (db *DB) migrateRawPdfField() error {
	var columnExists int
	err := db.QueryRow(`
		SELECT COUNT(*)
		FROM pragma_table_info('invoices')
		WHERE name = 'raw_pdf'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check raw_pdf column existence: %w", err)
	}

	if columnExists == 0 {
		if _, err := db.Exec("ALTER TABLE invoices ADD COLUMN raw_pdf BLOB"); err != nil {
			return fmt.Errorf("failed to add raw_pdf column: %w", err)
		}
	}

	return nil
}

// IsHealthy checks if the database connection is healthy
func (db *DB) IsHealthy() error {
	return db.Ping()
}
