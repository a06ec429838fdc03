package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"invoice-tracking/internal/email"
	"invoice-tracking/internal/extractor"
)

// processRetries re-drives previously failed candidates through the
// pipeline. The mailbox scan is skipped; each candidate's content is
// re-fetched directly from its recorded message and attachment IDs.
// Candidates already marked permanent are not loaded at all.
func (o *Orchestrator) processRetries(ctx context.Context, userID string, opts Options, run *Run) error {
	failures, err := o.failures.GetRetryable(userID)
	if err != nil {
		return fmt.Errorf("failed to load retryable candidates: %w", err)
	}

	o.logger.Info("retrying failed candidates",
		"user_id", userID,
		"count", len(failures))

	if len(failures) == 0 {
		return nil
	}

	o.setState(StateProcessing)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i := range failures {
		failure := failures[i]
		g.Go(func() error {
			candidate := &email.CandidateDocument{
				SourceMessageID: failure.SourceMessageID,
				AttachmentID:    failure.AttachmentID,
				Filename:        failure.Filename,
				EmailSubject:    failure.EmailSubject,
				EmailFrom:       failure.EmailFrom,
			}
			if failure.EmailDate != nil {
				candidate.EmailDate = *failure.EmailDate
			}

			if gctx.Err() != nil {
				o.recordFailure(run, &mu, candidate, StageTimeout, gctx.Err())
				return nil
			}

			if err := o.refetchCandidate(gctx, candidate); err != nil {
				if isRunFatal(err) {
					return err
				}
				o.recordFailure(run, &mu, candidate, classifyFailureStage(err), err)
				return nil
			}

			mu.Lock()
			run.CandidatesSeen++
			mu.Unlock()
			o.metrics.CandidatesSeen.Add(1)

			if err := o.processCandidate(gctx, userID, candidate, opts, run, &mu); err != nil {
				if isRunFatal(err) {
					return err
				}
				o.recordFailure(run, &mu, candidate, classifyFailureStage(err), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if isRunFatal(err) {
			return &AuthError{Err: err}
		}
		return err
	}

	return nil
}

// refetchCandidate reloads the candidate's content from the mailbox.
// Attachment candidates get their bytes and text back; body-only
// candidates get the message body.
func (o *Orchestrator) refetchCandidate(ctx context.Context, candidate *email.CandidateDocument) error {
	if candidate.AttachmentID != "" {
		data, err := o.mailbox.GetAttachment(ctx, candidate.SourceMessageID, candidate.AttachmentID)
		if err != nil {
			return &CandidateFetchError{
				SourceMessageID: candidate.SourceMessageID,
				AttachmentID:    candidate.AttachmentID,
				Err:             err,
			}
		}

		text, err := extractor.PDFText(data)
		if err != nil {
			return &CandidateFetchError{
				SourceMessageID: candidate.SourceMessageID,
				AttachmentID:    candidate.AttachmentID,
				Err:             err,
			}
		}

		candidate.RawBytes = data
		candidate.RawText = text
		candidate.SizeBytes = int64(len(data))
		return nil
	}

	msg, err := o.mailbox.GetMessage(ctx, candidate.SourceMessageID)
	if err != nil {
		return &CandidateFetchError{
			SourceMessageID: candidate.SourceMessageID,
			Err:             err,
		}
	}

	body := msg.PlainText
	if body == "" && msg.HTMLText != "" {
		body = email.HTMLToText(msg.HTMLText)
	}
	if body == "" {
		return &CandidateFetchError{
			SourceMessageID: candidate.SourceMessageID,
			Err:             fmt.Errorf("message has no body text"),
		}
	}

	candidate.RawText = body
	candidate.SizeBytes = int64(len(body))
	candidate.EmailSubject = msg.Subject
	candidate.EmailFrom = msg.From
	candidate.EmailDate = msg.Date
	return nil
}
