package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"invoice-tracking/internal/cache"
	"invoice-tracking/internal/database"
	"invoice-tracking/internal/dedup"
	"invoice-tracking/internal/email"
	"invoice-tracking/internal/extractor"
	"invoice-tracking/internal/parser"
)

// State names the orchestrator's position in a processing run. Candidates
// are processed concurrently, so the run holds a single processing state
// for that whole phase; per-candidate stages live on failure records.
type State string

const (
	StateIdle        State = "idle"
	StateQueryBuilt  State = "query_built"
	StateScanning    State = "scanning"
	StateProcessing  State = "processing"
	StateSummarizing State = "summarizing"
	StateDone        State = "done"
)

// Options configures one processing run
type Options struct {
	Days         int
	MaxResults   int64
	SkipExisting *bool // nil means true
	StoreRawPDF  bool
	RetryFailed  bool
	RunTimeout   time.Duration
	Workers      int
}

// defaults applied to zero-valued options
const (
	DefaultDays       = 30
	DefaultMaxResults = 50
	DefaultRunTimeout = 5 * time.Minute
	DefaultWorkers    = 4
)

func (o *Options) normalize() {
	if o.Days <= 0 {
		o.Days = DefaultDays
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = DefaultRunTimeout
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
}

func (o *Options) skipExisting() bool {
	if o.SkipExisting == nil {
		return true
	}
	return *o.SkipExisting
}

// FailureRecord is one candidate that did not make it to the store
type FailureRecord struct {
	SourceMessageID string `json:"source_message_id"`
	AttachmentID    string `json:"attachment_id"`
	Filename        string `json:"filename"`
	Stage           string `json:"stage"`
	Reason          string `json:"reason"`
	Attempts        int    `json:"attempts"`
	Permanent       bool   `json:"permanent"`
}

// Run is the summary of one orchestration call
type Run struct {
	UserID              string              `json:"user_id"`
	Retry               bool                `json:"retry"`
	Query               string              `json:"query,omitempty"`
	Strategy            email.QueryStrategy `json:"strategy,omitempty"`
	StartedAt           time.Time           `json:"started_at"`
	CompletedAt         time.Time           `json:"completed_at"`
	MessagesScanned     int                 `json:"messages_scanned"`
	SkippedIrrelevant   int                 `json:"skipped_irrelevant"`
	CandidatesSeen      int                 `json:"candidates_seen"`
	Inserted            int                 `json:"inserted"`
	Skipped             int                 `json:"skipped"`
	Updated             int                 `json:"updated"`
	Failed              []FailureRecord     `json:"failed"`
	TotalAmountInserted float64             `json:"total_amount_inserted"`
	TimedOut            bool                `json:"timed_out"`
}

// Metrics tracks processing statistics across runs
type Metrics struct {
	TotalRuns      atomic.Int64
	TotalMessages  atomic.Int64
	CandidatesSeen atomic.Int64
	Inserted       atomic.Int64
	Skipped        atomic.Int64
	Updated        atomic.Int64
	Failures       atomic.Int64
	LastRun        atomic.Value // time.Time
	LastError      atomic.Value // string
}

// Orchestrator sequences one processing run: query, scan, extract, parse,
// dedup, persist, summarize. Errors are per-candidate; only auth failures
// and a failed initial query abort a run.
type Orchestrator struct {
	mailbox      email.MailboxClient
	queryBuilder *email.QueryBuilder
	extractor    *extractor.Extractor
	classifier   *parser.Classifier
	parser       parser.Parser
	gate         *dedup.Gate
	failures     *database.FailedCandidateStore
	cache        *cache.Manager
	logger       *slog.Logger
	metrics      *Metrics

	state atomic.Value // State
}

// NewOrchestrator wires the pipeline components together
func NewOrchestrator(
	mailbox email.MailboxClient,
	queryBuilder *email.QueryBuilder,
	ext *extractor.Extractor,
	classifier *parser.Classifier,
	p parser.Parser,
	gate *dedup.Gate,
	failures *database.FailedCandidateStore,
	cacheManager *cache.Manager,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		mailbox:      mailbox,
		queryBuilder: queryBuilder,
		extractor:    ext,
		classifier:   classifier,
		parser:       p,
		gate:         gate,
		failures:     failures,
		cache:        cacheManager,
		logger:       logger,
		metrics:      &Metrics{},
	}
	o.state.Store(StateIdle)
	return o
}

// State returns the orchestrator's current position
func (o *Orchestrator) State() State {
	return o.state.Load().(State)
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(s)
	o.logger.Debug("pipeline state changed", "state", string(s))
}

// GetMetrics returns cumulative processing metrics
func (o *Orchestrator) GetMetrics() *Metrics {
	return o.metrics
}

// Process executes one run for a user. With RetryFailed set, the candidate
// source switches from a fresh mailbox scan to the recorded failure set.
func (o *Orchestrator) Process(ctx context.Context, userID string, opts Options) (*Run, error) {
	opts.normalize()

	if o.mailbox == nil {
		return nil, &QueryFatalError{Err: errNoMailbox}
	}

	run := &Run{
		UserID:    userID,
		Retry:     opts.RetryFailed,
		StartedAt: time.Now(),
		Failed:    []FailureRecord{},
	}
	o.metrics.TotalRuns.Add(1)

	ctx, cancel := context.WithTimeout(ctx, opts.RunTimeout)
	defer cancel()

	var err error
	if opts.RetryFailed {
		err = o.processRetries(ctx, userID, opts, run)
	} else {
		err = o.processScan(ctx, userID, opts, run)
	}
	if err != nil {
		o.metrics.LastError.Store(err.Error())
		o.setState(StateIdle)
		return nil, err
	}

	o.setState(StateSummarizing)
	run.CompletedAt = time.Now()
	run.TimedOut = ctx.Err() != nil

	o.metrics.LastRun.Store(run.CompletedAt)
	o.metrics.Failures.Add(int64(len(run.Failed)))

	// Drop the user's snapshot so the next stats read sees this run
	if o.cache != nil {
		o.cache.Invalidate(userID)
	}

	o.logger.Info("processing run completed",
		"user_id", userID,
		"retry", run.Retry,
		"duration", run.CompletedAt.Sub(run.StartedAt),
		"messages", run.MessagesScanned,
		"candidates", run.CandidatesSeen,
		"inserted", run.Inserted,
		"skipped", run.Skipped,
		"updated", run.Updated,
		"failed", len(run.Failed),
		"timed_out", run.TimedOut)

	o.setState(StateDone)
	return run, nil
}

// processScan runs the full pipeline over a fresh mailbox scan
func (o *Orchestrator) processScan(ctx context.Context, userID string, opts Options, run *Run) error {
	query, strategy, err := o.queryBuilder.BuildValidated(opts.Days)
	if err != nil {
		return &QueryFatalError{Err: err}
	}
	run.Query = query
	run.Strategy = strategy
	o.setState(StateQueryBuilt)

	o.setState(StateScanning)
	messages, err := o.mailbox.Search(ctx, query, opts.MaxResults)
	if err != nil {
		if isRunFatal(err) {
			return &AuthError{Err: err}
		}
		return &QueryFatalError{Query: query, Err: err}
	}

	o.metrics.TotalMessages.Add(int64(len(messages)))
	run.MessagesScanned = len(messages)

	o.setState(StateProcessing)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i := range messages {
		msg := &messages[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				// Never started; report as a timeout failure for retry
				o.recordFailure(run, &mu, &email.CandidateDocument{
					SourceMessageID: msg.ID,
					EmailSubject:    msg.Subject,
					EmailFrom:       msg.From,
					EmailDate:       msg.Date,
				}, StageTimeout, gctx.Err())
				return nil
			}
			return o.processMessage(gctx, userID, msg, opts, run, &mu)
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

// processMessage handles classification, extraction, and per-candidate
// processing for one message. Returns an error only for run-fatal failures.
func (o *Orchestrator) processMessage(ctx context.Context, userID string, msg *email.Message, opts Options, run *Run, mu *sync.Mutex) error {
	if reason := o.classifier.Classify(msg); reason != parser.SkipNone {
		o.logger.Debug("message filtered",
			"message_id", msg.ID,
			"reason", string(reason))
		mu.Lock()
		run.SkippedIrrelevant++
		mu.Unlock()
		return nil
	}

	result, err := o.extractor.CandidatesFromMessage(ctx, msg)
	if err != nil {
		if isRunFatal(err) {
			return err
		}
		o.recordFailure(run, mu, &email.CandidateDocument{
			SourceMessageID: msg.ID,
			EmailSubject:    msg.Subject,
			EmailFrom:       msg.From,
			EmailDate:       msg.Date,
		}, classifyFailureStage(err), err)
		return nil
	}

	for i := range result.Failures {
		failure := &result.Failures[i]
		// Expired credentials abort the run; recording them per-candidate
		// would burn retry attempts on a condition no retry can clear.
		if isRunFatal(failure.Err) {
			return failure.Err
		}
		o.recordFailure(run, mu, &failure.Candidate, StageFetch, failure.Err)
	}

	for i := range result.Candidates {
		candidate := &result.Candidates[i]
		mu.Lock()
		run.CandidatesSeen++
		mu.Unlock()
		o.metrics.CandidatesSeen.Add(1)

		if err := o.processCandidate(ctx, userID, candidate, opts, run, mu); err != nil {
			if isRunFatal(err) {
				return err
			}
			o.recordFailure(run, mu, candidate, classifyFailureStage(err), err)
		}
	}

	return nil
}

// processCandidate takes one candidate through parse, dedup, and persist
func (o *Orchestrator) processCandidate(ctx context.Context, userID string, candidate *email.CandidateDocument, opts Options, run *Run, mu *sync.Mutex) error {
	record, err := o.parser.Parse(ctx, candidate)
	if err != nil {
		return &ParseError{
			SourceMessageID: candidate.SourceMessageID,
			AttachmentID:    candidate.AttachmentID,
			Err:             err,
		}
	}

	invoice := buildInvoice(userID, candidate, record)

	action, err := o.gate.Persist(invoice, opts.skipExisting())
	if err != nil {
		return &PersistenceError{
			SourceMessageID: candidate.SourceMessageID,
			AttachmentID:    candidate.AttachmentID,
			Err:             err,
		}
	}

	if opts.StoreRawPDF && action != dedup.ActionSkipped && len(candidate.RawBytes) > 0 {
		if err := o.gate.Store().SetRawPDF(userID, invoice.ID, candidate.RawBytes); err != nil {
			o.logger.Warn("failed to store raw document",
				"invoice_id", invoice.ID,
				"error", err)
		}
	}

	mu.Lock()
	switch action {
	case dedup.ActionInserted:
		run.Inserted++
		run.TotalAmountInserted += invoice.Amount
	case dedup.ActionSkipped:
		run.Skipped++
	case dedup.ActionUpdated:
		run.Updated++
	}
	mu.Unlock()

	switch action {
	case dedup.ActionInserted:
		o.metrics.Inserted.Add(1)
	case dedup.ActionSkipped:
		o.metrics.Skipped.Add(1)
	case dedup.ActionUpdated:
		o.metrics.Updated.Add(1)
	}

	// A success clears any failure record left by previous runs
	if err := o.failures.Resolve(userID, candidate.SourceMessageID, candidate.AttachmentID); err != nil {
		o.logger.Warn("failed to resolve failure record",
			"message_id", candidate.SourceMessageID,
			"error", err)
	}

	return nil
}

// recordFailure persists the failure for later retry and adds it to the
// run summary.
func (o *Orchestrator) recordFailure(run *Run, mu *sync.Mutex, candidate *email.CandidateDocument, stage string, cause error) {
	fc := &database.FailedCandidate{
		UserID:          run.UserID,
		SourceMessageID: candidate.SourceMessageID,
		AttachmentID:    candidate.AttachmentID,
		Filename:        candidate.Filename,
		EmailSubject:    candidate.EmailSubject,
		EmailFrom:       candidate.EmailFrom,
		Stage:           stage,
		Reason:          cause.Error(),
	}
	if !candidate.EmailDate.IsZero() {
		d := candidate.EmailDate
		fc.EmailDate = &d
	}

	var stored *database.FailedCandidate
	var err error
	if stage == StageTimeout {
		// The run deadline abandoned this candidate before it could fail on
		// its own merits; keep it retry-eligible without spending an attempt.
		stored, err = o.failures.RecordAbandonment(fc)
	} else {
		stored, err = o.failures.RecordFailure(fc)
	}
	if err != nil {
		o.logger.Error("failed to record candidate failure",
			"message_id", candidate.SourceMessageID,
			"error", err)
		stored = fc
		stored.Attempts = 1
	}

	o.logger.Warn("candidate failed",
		"message_id", candidate.SourceMessageID,
		"attachment_id", candidate.AttachmentID,
		"stage", stage,
		"attempts", stored.Attempts,
		"permanent", stored.Permanent,
		"error", cause)

	mu.Lock()
	run.Failed = append(run.Failed, FailureRecord{
		SourceMessageID: candidate.SourceMessageID,
		AttachmentID:    candidate.AttachmentID,
		Filename:        candidate.Filename,
		Stage:           stage,
		Reason:          cause.Error(),
		Attempts:        stored.Attempts,
		Permanent:       stored.Permanent,
	})
	mu.Unlock()
}

// buildInvoice merges candidate provenance with the parsed fields
func buildInvoice(userID string, candidate *email.CandidateDocument, record *parser.ParsedRecord) *database.Invoice {
	invoice := &database.Invoice{
		UserID:             userID,
		SourceMessageID:    candidate.SourceMessageID,
		AttachmentID:       candidate.AttachmentID,
		Filename:           candidate.Filename,
		DocumentType:       record.DocumentType,
		Vendor:             record.Vendor,
		Amount:             record.Amount,
		Currency:           record.Currency,
		InvoiceNumber:      record.InvoiceNumber,
		Category:           record.Category,
		WarrantyPeriodDays: record.WarrantyPeriodDays,
		Confidence:         record.Confidence,
		EmailSubject:       candidate.EmailSubject,
		EmailFrom:          candidate.EmailFrom,
	}

	for _, item := range record.Items {
		invoice.Items = append(invoice.Items, database.LineItem{
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}

	if record.PurchaseDate != "" {
		if d, err := time.Parse("2006-01-02", record.PurchaseDate); err == nil {
			invoice.PurchaseDate = &d
		}
	}
	// The email date stands in when the document itself carries no date
	if invoice.PurchaseDate == nil && !candidate.EmailDate.IsZero() {
		d := candidate.EmailDate
		invoice.PurchaseDate = &d
	}

	if !candidate.EmailDate.IsZero() {
		d := candidate.EmailDate
		invoice.EmailDate = &d
	}

	return invoice
}
