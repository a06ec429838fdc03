package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"invoice-tracking/internal/email"
)

// DefaultMaxAttachmentBytes is the largest attachment that will be fetched.
const DefaultMaxAttachmentBytes = 10 * 1024 * 1024

// minBodyTextLength is the shortest body text worth parsing
const minBodyTextLength = 40

// Failure records one attachment that could not be turned into a candidate
type Failure struct {
	Candidate email.CandidateDocument
	Err       error
}

// Result holds the candidates extracted from a single message alongside
// per-attachment failures. Failures never abort the message.
type Result struct {
	Candidates []email.CandidateDocument
	Failures   []Failure
}

// Extractor turns mailbox messages into candidate documents
type Extractor struct {
	client             email.MailboxClient
	maxAttachmentBytes int64
	logger             *slog.Logger
}

// New creates an extractor backed by the given mailbox client
func New(client email.MailboxClient, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:             client,
		maxAttachmentBytes: DefaultMaxAttachmentBytes,
		logger:             logger,
	}
}

// CandidatesFromMessage extracts candidate documents from one message.
// Each PDF attachment becomes its own candidate. When a message has no
// usable attachments, its body text becomes a single body-only candidate
// so the message is still represented downstream.
func (e *Extractor) CandidatesFromMessage(ctx context.Context, msg *email.Message) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{}

	pdfAttachments := 0
	for _, att := range msg.Attachments {
		if !IsPDF(att.Filename, att.MimeType) {
			continue
		}
		pdfAttachments++

		candidate := email.CandidateDocument{
			SourceMessageID: msg.ID,
			AttachmentID:    att.ID,
			Filename:        att.Filename,
			EmailSubject:    msg.Subject,
			EmailFrom:       msg.From,
			EmailDate:       msg.Date,
			SizeBytes:       att.Size,
		}

		if e.maxAttachmentBytes > 0 && att.Size > e.maxAttachmentBytes {
			result.Failures = append(result.Failures, Failure{
				Candidate: candidate,
				Err:       fmt.Errorf("attachment %s exceeds size limit (%d > %d bytes)", att.Filename, att.Size, e.maxAttachmentBytes),
			})
			continue
		}

		data, err := e.client.GetAttachment(ctx, msg.ID, att.ID)
		if err != nil {
			e.logger.Warn("attachment fetch failed",
				"message_id", msg.ID,
				"filename", att.Filename,
				"error", err)
			result.Failures = append(result.Failures, Failure{Candidate: candidate, Err: err})
			continue
		}

		text, err := PDFText(data)
		if err != nil {
			e.logger.Warn("attachment text extraction failed",
				"message_id", msg.ID,
				"filename", att.Filename,
				"error", err)
			result.Failures = append(result.Failures, Failure{Candidate: candidate, Err: err})
			continue
		}

		candidate.RawText = text
		candidate.RawBytes = data
		result.Candidates = append(result.Candidates, candidate)
	}

	if len(result.Candidates) > 0 {
		return result, nil
	}

	// No attachment yielded text; fall back to the message body.
	body := msg.PlainText
	if body == "" && msg.HTMLText != "" {
		body = email.HTMLToText(msg.HTMLText)
	}
	if len(body) < minBodyTextLength {
		if pdfAttachments == 0 {
			e.logger.Debug("message has no usable content", "message_id", msg.ID)
		}
		return result, nil
	}

	result.Candidates = append(result.Candidates, email.CandidateDocument{
		SourceMessageID:        msg.ID,
		Filename:               "",
		RawText:                body,
		EmailSubject:           msg.Subject,
		EmailFrom:              msg.From,
		EmailDate:              msg.Date,
		SizeBytes:              int64(len(body)),
		AfterAttachmentFailure: pdfAttachments > 0,
	})

	return result, nil
}
