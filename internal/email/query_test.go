package email

import (
	"strings"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
}

func TestBuildPrimaryQuery(t *testing.T) {
	builder := NewQueryBuilder()
	builder.Now = fixedClock

	query := builder.Build(30, StrategyPrimary)

	if !strings.Contains(query, "subject:(") {
		t.Errorf("Expected subject clause in query, got: %s", query)
	}
	if !strings.Contains(query, "from:(") {
		t.Errorf("Expected sender clause in query, got: %s", query)
	}
	if !strings.Contains(query, "after:2025/5/16") {
		t.Errorf("Expected after:2025/5/16 in query, got: %s", query)
	}
}

func TestBuildNoDateQuery(t *testing.T) {
	builder := NewQueryBuilder()
	builder.Now = fixedClock

	query := builder.Build(30, StrategyNoDate)

	if strings.Contains(query, "after:") {
		t.Errorf("Expected no date clause, got: %s", query)
	}
	if !strings.Contains(query, "subject:(") {
		t.Errorf("Expected subject clause in query, got: %s", query)
	}
}

func TestBuildDomainOnlyQuery(t *testing.T) {
	builder := NewQueryBuilder()

	query := builder.Build(0, StrategyDomainOnly)

	if !strings.HasPrefix(query, "from:(") {
		t.Errorf("Expected from: prefix, got: %s", query)
	}
	if strings.Contains(query, "subject:") {
		t.Errorf("Expected no subject clause, got: %s", query)
	}
}

func TestBuildSubjectOnlyQuery(t *testing.T) {
	builder := NewQueryBuilder()

	query := builder.Build(0, StrategySubjectOnly)

	if !strings.HasPrefix(query, "subject:(") {
		t.Errorf("Expected subject: prefix, got: %s", query)
	}
	if !strings.Contains(query, "invoice") {
		t.Errorf("Expected invoice keyword, got: %s", query)
	}
}

func TestValidateQuery(t *testing.T) {
	builder := NewQueryBuilder()
	builder.Now = fixedClock

	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{
			name:    "valid query",
			query:   "subject:(invoice OR receipt) after:2025/5/16",
			wantErr: false,
		},
		{
			name:    "empty query",
			query:   "",
			wantErr: true,
		},
		{
			name:    "whitespace only",
			query:   "   ",
			wantErr: true,
		},
		{
			name:    "too short",
			query:   "invoice",
			wantErr: true,
		},
		{
			name:    "future dated",
			query:   "subject:(invoice) after:2025/12/31",
			wantErr: true,
		},
		{
			name:    "today is not future",
			query:   "subject:(invoice) after:2025/6/15",
			wantErr: false,
		},
		{
			name:    "malformed date",
			query:   "subject:(invoice) after:2025/99/99",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := builder.Validate(tt.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
		})
	}
}

func TestBuildValidatedFallsBack(t *testing.T) {
	builder := NewQueryBuilder()
	builder.Now = fixedClock

	// A builder with no subject keywords still yields a valid domain query.
	builder.SubjectKeywords = nil

	query, strategy, err := builder.BuildValidated(30)
	if err != nil {
		t.Fatalf("BuildValidated failed: %v", err)
	}
	if !strings.Contains(query, "from:(") {
		t.Errorf("Expected domain clause in fallback query, got: %s", query)
	}
	if strategy != StrategyPrimary {
		t.Errorf("Expected primary strategy to still succeed, got %s", strategy)
	}
}

func TestBuildValidatedExhaustsStrategies(t *testing.T) {
	builder := NewQueryBuilder()
	builder.Now = fixedClock
	builder.SubjectKeywords = nil
	builder.VendorDomains = nil

	_, _, err := builder.BuildValidated(30)
	if err == nil {
		t.Fatal("Expected error when all strategies produce empty queries")
	}
}

func TestBuildPrimaryEmptyWithoutTerms(t *testing.T) {
	builder := NewQueryBuilder()
	builder.Now = fixedClock
	builder.SubjectKeywords = nil
	builder.VendorDomains = nil

	if query := builder.Build(30, StrategyPrimary); query != "" {
		t.Errorf("Expected empty query without search terms, got: %q", query)
	}
}

func TestBuildValidatedFallsBackOnFutureDate(t *testing.T) {
	builder := NewQueryBuilder()

	// The first clock reading lands well ahead of the rest, so the primary
	// query carries an after: date that validation sees as future.
	calls := 0
	builder.Now = func() time.Time {
		calls++
		if calls == 1 {
			return fixedClock().AddDate(0, 0, 60)
		}
		return fixedClock()
	}

	query, strategy, err := builder.BuildValidated(30)
	if err != nil {
		t.Fatalf("BuildValidated failed: %v", err)
	}
	if strategy != StrategyNoDate {
		t.Errorf("Expected no-date fallback strategy, got %s", strategy)
	}
	if strings.Contains(query, "after:") {
		t.Errorf("Fallback query must drop the date clause, got: %s", query)
	}
}

func TestBuildValidatedReturnsPrimaryFirst(t *testing.T) {
	builder := NewQueryBuilder()
	builder.Now = fixedClock

	query, strategy, err := builder.BuildValidated(7)
	if err != nil {
		t.Fatalf("BuildValidated failed: %v", err)
	}
	if strategy != StrategyPrimary {
		t.Errorf("Expected primary strategy, got %s", strategy)
	}
	if !strings.Contains(query, "after:2025/6/8") {
		t.Errorf("Expected 7-day window, got: %s", query)
	}
}
