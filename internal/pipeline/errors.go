package pipeline

import (
	"context"
	"errors"
	"fmt"

	"invoice-tracking/internal/email"
)

// Stage names where a candidate can fail. Stored on failure records so
// retries know where processing stopped.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageParse   = "parse"
	StagePersist = "persist"
	StageTimeout = "timeout"
)

// errNoMailbox aborts runs on deployments without mailbox credentials
var errNoMailbox = errors.New("no mailbox client configured")

// AuthError is run-fatal: the mailbox credentials are invalid or were
// revoked mid-scan. There is no silent re-auth; the caller must fix
// credentials and start a new run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("mailbox authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// QueryFatalError is run-fatal: the initial mailbox query could not be
// built or executed, so there is no candidate set to work through.
type QueryFatalError struct {
	Query string
	Err   error
}

func (e *QueryFatalError) Error() string {
	return fmt.Sprintf("mailbox query failed: %v", e.Err)
}

func (e *QueryFatalError) Unwrap() error { return e.Err }

// CandidateFetchError scopes a fetch failure to one candidate
type CandidateFetchError struct {
	SourceMessageID string
	AttachmentID    string
	Err             error
}

func (e *CandidateFetchError) Error() string {
	return fmt.Sprintf("fetch failed for message %s: %v", e.SourceMessageID, e.Err)
}

func (e *CandidateFetchError) Unwrap() error { return e.Err }

// ParseError scopes a parsing failure to one candidate
type ParseError struct {
	SourceMessageID string
	AttachmentID    string
	Err             error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for message %s: %v", e.SourceMessageID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError scopes a store write failure to one candidate
type PersistenceError struct {
	SourceMessageID string
	AttachmentID    string
	Err             error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist failed for message %s: %v", e.SourceMessageID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// classifyFailureStage maps a candidate error to the stage recorded on its
// failure entry. Deadline expiry always wins so the candidate stays
// retry-eligible.
func classifyFailureStage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StageTimeout
	}

	var fetchErr *CandidateFetchError
	var parseErr *ParseError
	var persistErr *PersistenceError
	switch {
	case errors.As(err, &fetchErr):
		return StageFetch
	case errors.As(err, &parseErr):
		return StageParse
	case errors.As(err, &persistErr):
		return StagePersist
	default:
		return StageExtract
	}
}

// isRunFatal reports whether the error must abort the whole run rather
// than fail a single candidate.
func isRunFatal(err error) bool {
	var authErr *AuthError
	var queryErr *QueryFatalError
	return errors.As(err, &authErr) || errors.As(err, &queryErr) || errors.Is(err, email.ErrAuthExpired)
}
