package ratelimit

import (
	"sync"
	"time"
)

// RunInterval is the minimum spacing between processing runs per user
const RunInterval = 1 * time.Minute

// Result contains the outcome of a rate limit check
type Result struct {
	ShouldBlock   bool
	RemainingTime time.Duration
	Reason        string
}

// RunLimiter tracks the last processing run per user and blocks runs that
// arrive inside the interval. Mailbox providers throttle aggressively;
// back-to-back full scans only burn quota.
type RunLimiter struct {
	mu       sync.Mutex
	lastRun  map[string]time.Time
	interval time.Duration
	disabled bool
}

// NewRunLimiter creates a per-user run limiter
func NewRunLimiter(interval time.Duration, disabled bool) *RunLimiter {
	if interval <= 0 {
		interval = RunInterval
	}
	return &RunLimiter{
		lastRun:  make(map[string]time.Time),
		interval: interval,
		disabled: disabled,
	}
}

// Check reports whether a run for the user should be blocked. A forced
// run is never blocked. An allowed check records the run start.
func (l *RunLimiter) Check(userID string, forced bool) Result {
	if l.disabled {
		return Result{Reason: "rate_limiting_disabled"}
	}

	if forced {
		l.record(userID)
		return Result{Reason: "forced_run"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.lastRun[userID]
	if !ok {
		l.lastRun[userID] = time.Now()
		return Result{Reason: "no_previous_run"}
	}

	elapsed := time.Since(last)
	if elapsed < l.interval {
		return Result{
			ShouldBlock:   true,
			RemainingTime: l.interval - elapsed,
			Reason:        "rate_limit_active",
		}
	}

	l.lastRun[userID] = time.Now()
	return Result{Reason: "rate_limit_passed"}
}

func (l *RunLimiter) record(userID string) {
	l.mu.Lock()
	l.lastRun[userID] = time.Now()
	l.mu.Unlock()
}
