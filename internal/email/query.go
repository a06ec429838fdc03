package email

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// QueryStrategy selects how a mailbox search query is constructed
type QueryStrategy string

const (
	// StrategyPrimary combines subject keywords and vendor domains with a date window
	StrategyPrimary QueryStrategy = "primary"
	// StrategyNoDate is the primary query without the date restriction
	StrategyNoDate QueryStrategy = "no-date"
	// StrategyDomainOnly restricts to known vendor sender domains
	StrategyDomainOnly QueryStrategy = "domain-only"
	// StrategySubjectOnly restricts to document subject keywords
	StrategySubjectOnly QueryStrategy = "subject-only"
)

// minQueryLength is the shortest query validation will accept
const minQueryLength = 10

// defaultSubjectKeywords match transactional document emails
var defaultSubjectKeywords = []string{
	"invoice", "receipt", "bill", "order", "purchase",
	"payment", "confirmation", "warranty", "refund",
}

// defaultVendorDomains are senders known to deliver receipts and invoices
var defaultVendorDomains = []string{
	"amazon.com", "amazon.in", "flipkart.com", "myntra.com",
	"swiggy.in", "zomato.com", "uber.com", "paytm.com",
}

var afterDateRe = regexp.MustCompile(`after:(\d{4}/\d{1,2}/\d{1,2})`)

// QueryBuilder constructs mailbox search queries. It is a pure value type;
// Build is deterministic for a fixed now.
type QueryBuilder struct {
	SubjectKeywords []string
	VendorDomains   []string

	// Now allows tests to pin the clock; zero means time.Now
	Now func() time.Time
}

// NewQueryBuilder returns a builder with the default keyword and domain sets
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		SubjectKeywords: defaultSubjectKeywords,
		VendorDomains:   defaultVendorDomains,
	}
}

func (b *QueryBuilder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Build constructs a query for the given strategy. Days is only honored by
// the primary strategy.
func (b *QueryBuilder) Build(days int, strategy QueryStrategy) string {
	switch strategy {
	case StrategyPrimary:
		query := b.keywordAndDomainUnion()
		if query == "" {
			// A bare after: clause would match the whole mailbox.
			return ""
		}
		if days > 0 {
			afterDate := b.now().AddDate(0, 0, -days).Format("2006/1/2")
			query += fmt.Sprintf(" after:%s", afterDate)
		}
		return query
	case StrategyNoDate:
		return b.keywordAndDomainUnion()
	case StrategyDomainOnly:
		return b.domainUnion()
	case StrategySubjectOnly:
		return b.subjectUnion()
	default:
		return ""
	}
}

// BuildValidated tries strategies in order and returns the first query that
// passes validation, along with the strategy that produced it. It fails only
// when every strategy is rejected.
func (b *QueryBuilder) BuildValidated(days int) (string, QueryStrategy, error) {
	strategies := []QueryStrategy{StrategyPrimary, StrategyNoDate, StrategyDomainOnly, StrategySubjectOnly}

	var lastErr error
	for _, strategy := range strategies {
		query := b.Build(days, strategy)
		if err := b.Validate(query); err != nil {
			lastErr = err
			continue
		}
		return query, strategy, nil
	}

	return "", "", fmt.Errorf("no valid query after exhausting all strategies: %w", lastErr)
}

// Validate rejects empty or too-short queries and queries carrying a
// future-dated after: literal. The future-date check defends against
// clock and timezone formatting bugs producing queries that can never match.
func (b *QueryBuilder) Validate(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("query is empty")
	}
	if len(trimmed) < minQueryLength {
		return fmt.Errorf("query too short: %q", trimmed)
	}

	if m := afterDateRe.FindStringSubmatch(trimmed); m != nil {
		date, err := time.Parse("2006/1/2", m[1])
		if err != nil {
			return fmt.Errorf("invalid after: date %q: %w", m[1], err)
		}
		// Compare against the start of today so a query built just after
		// midnight still validates.
		today := b.now().Truncate(24 * time.Hour)
		if date.After(today) {
			return fmt.Errorf("after: date %s is in the future", m[1])
		}
	}

	return nil
}

func (b *QueryBuilder) subjectUnion() string {
	if len(b.SubjectKeywords) == 0 {
		return ""
	}
	return fmt.Sprintf("subject:(%s)", strings.Join(b.SubjectKeywords, " OR "))
}

func (b *QueryBuilder) domainUnion() string {
	if len(b.VendorDomains) == 0 {
		return ""
	}
	var senders []string
	for _, domain := range b.VendorDomains {
		senders = append(senders, domain)
	}
	return fmt.Sprintf("from:(%s)", strings.Join(senders, " OR "))
}

func (b *QueryBuilder) keywordAndDomainUnion() string {
	subject := b.subjectUnion()
	domains := b.domainUnion()

	switch {
	case subject != "" && domains != "":
		return fmt.Sprintf("{%s %s}", subject, domains)
	case subject != "":
		return subject
	default:
		return domains
	}
}
