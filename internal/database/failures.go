package database

import (
	"database/sql"
	"time"
)

// MaxFailureAttempts is the attempt count at which a failed candidate
// becomes permanent and stops being retried.
const MaxFailureAttempts = 2

// FailedCandidate records a candidate document that could not be processed
type FailedCandidate struct {
	ID              int        `json:"id"`
	UserID          string     `json:"user_id"`
	SourceMessageID string     `json:"source_message_id"`
	AttachmentID    string     `json:"attachment_id"`
	Filename        string     `json:"filename"`
	EmailSubject    string     `json:"email_subject"`
	EmailFrom       string     `json:"email_from"`
	EmailDate       *time.Time `json:"email_date,omitempty"`
	Stage           string     `json:"stage"`
	Reason          string     `json:"reason"`
	Attempts        int        `json:"attempts"`
	Permanent       bool       `json:"permanent"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FailedCandidateStore handles database operations for failed candidates
type FailedCandidateStore struct {
	db *sql.DB
}

func NewFailedCandidateStore(db *sql.DB) *FailedCandidateStore {
	return &FailedCandidateStore{db: db}
}

const failedCandidateColumns = `id, user_id, source_message_id, attachment_id,
		  filename, email_subject, email_from, email_date, stage, reason,
		  attempts, permanent, created_at, updated_at`

func scanFailedCandidate(scanner interface{ Scan(...any) error }) (*FailedCandidate, error) {
	var fc FailedCandidate
	err := scanner.Scan(&fc.ID, &fc.UserID, &fc.SourceMessageID, &fc.AttachmentID,
		&fc.Filename, &fc.EmailSubject, &fc.EmailFrom, &fc.EmailDate,
		&fc.Stage, &fc.Reason, &fc.Attempts, &fc.Permanent,
		&fc.CreatedAt, &fc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &fc, nil
}

// RecordFailure upserts a failure for the candidate's dedup key. A repeat
// failure increments the attempt count; at MaxFailureAttempts the record
// is marked permanent. Returns the stored record.
func (s *FailedCandidateStore) RecordFailure(fc *FailedCandidate) (*FailedCandidate, error) {
	query := `INSERT INTO failed_candidates (user_id, source_message_id,
			  attachment_id, filename, email_subject, email_from, email_date,
			  stage, reason, attempts, permanent)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
			  ON CONFLICT(user_id, source_message_id, attachment_id) DO UPDATE SET
			  stage = excluded.stage,
			  reason = excluded.reason,
			  attempts = failed_candidates.attempts + 1,
			  permanent = failed_candidates.attempts + 1 >= ?,
			  updated_at = CURRENT_TIMESTAMP`

	firstPermanent := MaxFailureAttempts <= 1
	_, err := s.db.Exec(query, fc.UserID, fc.SourceMessageID, fc.AttachmentID,
		fc.Filename, fc.EmailSubject, fc.EmailFrom, fc.EmailDate,
		fc.Stage, fc.Reason, firstPermanent, MaxFailureAttempts)
	if err != nil {
		return nil, err
	}

	return s.GetBySourceKey(fc.UserID, fc.SourceMessageID, fc.AttachmentID)
}

// RecordAbandonment upserts a failure without counting it as an attempt.
// Used for candidates that a run deadline cut off before they could fail
// on their own: they stay retry-eligible no matter how often a run times
// out around them.
func (s *FailedCandidateStore) RecordAbandonment(fc *FailedCandidate) (*FailedCandidate, error) {
	query := `INSERT INTO failed_candidates (user_id, source_message_id,
			  attachment_id, filename, email_subject, email_from, email_date,
			  stage, reason, attempts, permanent)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, FALSE)
			  ON CONFLICT(user_id, source_message_id, attachment_id) DO UPDATE SET
			  stage = excluded.stage,
			  reason = excluded.reason,
			  updated_at = CURRENT_TIMESTAMP`

	_, err := s.db.Exec(query, fc.UserID, fc.SourceMessageID, fc.AttachmentID,
		fc.Filename, fc.EmailSubject, fc.EmailFrom, fc.EmailDate,
		fc.Stage, fc.Reason)
	if err != nil {
		return nil, err
	}

	return s.GetBySourceKey(fc.UserID, fc.SourceMessageID, fc.AttachmentID)
}

// GetBySourceKey looks up a failure record by dedup key. Returns (nil, nil)
// when no record exists.
func (s *FailedCandidateStore) GetBySourceKey(userID, sourceMessageID, attachmentID string) (*FailedCandidate, error) {
	query := `SELECT ` + failedCandidateColumns + `
			  FROM failed_candidates
			  WHERE user_id = ? AND source_message_id = ? AND attachment_id = ?`

	fc, err := scanFailedCandidate(s.db.QueryRow(query, userID, sourceMessageID, attachmentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// GetRetryable returns all non-permanent failures for a user, oldest first
func (s *FailedCandidateStore) GetRetryable(userID string) ([]FailedCandidate, error) {
	query := `SELECT ` + failedCandidateColumns + `
			  FROM failed_candidates
			  WHERE user_id = ? AND permanent = FALSE
			  ORDER BY created_at ASC`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []FailedCandidate
	for rows.Next() {
		fc, err := scanFailedCandidate(rows)
		if err != nil {
			return nil, err
		}
		failures = append(failures, *fc)
	}

	return failures, rows.Err()
}

// Resolve removes the failure record for a candidate that has since been
// processed successfully.
func (s *FailedCandidateStore) Resolve(userID, sourceMessageID, attachmentID string) error {
	_, err := s.db.Exec(`DELETE FROM failed_candidates
		WHERE user_id = ? AND source_message_id = ? AND attachment_id = ?`,
		userID, sourceMessageID, attachmentID)
	return err
}

// CountByUser returns retryable and permanent failure counts for a user
func (s *FailedCandidateStore) CountByUser(userID string) (retryable, permanent int, err error) {
	err = s.db.QueryRow(`SELECT
		COUNT(CASE WHEN permanent = FALSE THEN 1 END),
		COUNT(CASE WHEN permanent = TRUE THEN 1 END)
		FROM failed_candidates WHERE user_id = ?`, userID).Scan(&retryable, &permanent)
	return retryable, permanent, err
}
