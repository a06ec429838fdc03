package email

import (
	"context"
	"time"
)

// MailboxClient defines the interface for mailbox providers
type MailboxClient interface {
	// Search performs a mailbox search query and returns matching message metadata
	Search(ctx context.Context, query string, maxResults int64) ([]Message, error)

	// GetMessage retrieves the full content of a specific message
	GetMessage(ctx context.Context, id string) (*Message, error)

	// GetAttachment retrieves the raw bytes of a message attachment
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)

	// HealthCheck verifies the client connection is working
	HealthCheck(ctx context.Context) error

	// Close cleans up resources
	Close() error
}

// Message represents a mailbox message with parsed content
type Message struct {
	ID       string            `json:"id"`
	ThreadID string            `json:"thread_id"`
	From     string            `json:"from"`
	Subject  string            `json:"subject"`
	Date     time.Time         `json:"date"`
	Headers  map[string]string `json:"headers"`

	// Body content in different formats
	PlainText string `json:"plain_text"`
	HTMLText  string `json:"html_text"`

	// Attachment metadata; bytes are fetched separately via GetAttachment
	Attachments []AttachmentInfo `json:"attachments,omitempty"`
}

// AttachmentInfo describes one attachment of a message
type AttachmentInfo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// CandidateDocument is one unit of extracted email content awaiting parsing.
// Body-only candidates have an empty AttachmentID.
type CandidateDocument struct {
	SourceMessageID string    `json:"source_message_id"`
	AttachmentID    string    `json:"attachment_id,omitempty"`
	Filename        string    `json:"filename"`
	RawText         string    `json:"raw_text,omitempty"`
	RawBytes        []byte    `json:"-"`
	EmailSubject    string    `json:"email_subject"`
	EmailFrom       string    `json:"email_from"`
	EmailDate       time.Time `json:"email_date"`
	SizeBytes       int64     `json:"size_bytes"`

	// AfterAttachmentFailure marks a body-only candidate produced because
	// every attachment of the message failed extraction.
	AfterAttachmentFailure bool `json:"after_attachment_failure,omitempty"`
}

// BodyOnly reports whether the candidate was built from the message body
// rather than an attachment.
func (c *CandidateDocument) BodyOnly() bool {
	return c.AttachmentID == ""
}
