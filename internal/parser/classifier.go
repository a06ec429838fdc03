package parser

import (
	"strings"

	"invoice-tracking/internal/email"
)

// creditCardKeywords flag statements and card bills in subject or sender
var creditCardKeywords = []string{
	"credit card statement",
	"card statement",
	"credit card bill",
	"card bill",
	"bank statement",
	"credit card",
}

// bankDomains are senders whose mail is always statement traffic
var bankDomains = []string{
	"hdfcbank.com", "icicibank.com", "sbicard.com", "axisbank.com", "kotak.com",
}

// purchaseVendors are senders whose transactional mail is allowed through
// even when it carries marketing-adjacent wording
var purchaseVendors = []string{
	"swiggy", "zomato", "amazon", "myntra", "flipkart",
	"uber", "ola", "bookmyshow", "paytm", "phonepe", "razorpay",
}

// promotionalSubjectKeywords mark marketing mail
var promotionalSubjectKeywords = []string{
	"newsletter", "offers", "deals", "discount", "sale",
	"promotion", "subscription", "unsubscribe", "price drop",
	"price alert", "savings alert", "congratulations", "festival",
	"career", "job", "interview", "opportunity", "payment reminder",
	"one-time password", "feedback matters", "opinion matters",
	"last chance", "limited time", "exclusive offer", "flash sale",
}

// promotionalBodyKeywords catch marketing footers in the body text
var promotionalBodyKeywords = []string{
	"unsubscribe", "manage preferences", "email preferences",
	"marketing communications", "promotional content", "sponsored",
	"exclusive offer", "limited time", "flash sale", "discount code",
	"coupon", "shop now", "buy now", "act now", "while supplies last",
}

// forwardedPurchaseKeywords let forwarded order mail through the filter
var forwardedPurchaseKeywords = []string{
	"order", "delivered", "invoice", "confirmation", "purchase",
	"payment", "booking", "ticket", "warranty", "receipt",
}

// Classifier decides whether a message is worth sending to the parsing
// backend at all. Filtering here saves an LLM round trip per message.
type Classifier struct{}

// NewClassifier creates a message relevance classifier
func NewClassifier() *Classifier {
	return &Classifier{}
}

// SkipReason explains why a message was filtered, or "" if it is relevant
type SkipReason string

const (
	SkipNone                SkipReason = ""
	SkipPromotional         SkipReason = "promotional"
	SkipCreditCardStatement SkipReason = "credit_card_statement"
)

// Classify returns the skip reason for a message, or SkipNone when the
// message should be processed.
func (c *Classifier) Classify(msg *email.Message) SkipReason {
	if c.IsCreditCardStatement(msg.Subject, msg.From) {
		return SkipCreditCardStatement
	}
	if c.IsPromotional(msg.Subject, msg.From, msg.PlainText) {
		return SkipPromotional
	}
	return SkipNone
}

// IsCreditCardStatement reports whether the mail is a card or bank statement
func (c *Classifier) IsCreditCardStatement(subject, from string) bool {
	subjectLower := strings.ToLower(subject)
	fromLower := strings.ToLower(from)

	for _, keyword := range creditCardKeywords {
		if strings.Contains(subjectLower, keyword) || strings.Contains(fromLower, keyword) {
			return true
		}
	}
	for _, domain := range bankDomains {
		if strings.Contains(fromLower, domain) {
			return true
		}
	}
	return false
}

// IsPromotional reports whether the mail is marketing rather than a
// transaction record. Known purchase vendors get the benefit of the doubt
// unless the subject itself is promotional.
func (c *Classifier) IsPromotional(subject, from, body string) bool {
	subjectLower := strings.ToLower(subject)
	fromLower := strings.ToLower(from)
	bodyLower := strings.ToLower(body)

	for _, vendor := range purchaseVendors {
		if strings.Contains(fromLower, vendor) {
			for _, keyword := range promotionalSubjectKeywords {
				if strings.Contains(subjectLower, keyword) {
					return true
				}
			}
			return false
		}
	}

	// Forwarded purchase mail keeps its original subject wording
	if strings.HasPrefix(subjectLower, "fwd:") || strings.HasPrefix(subjectLower, "re:") {
		for _, keyword := range forwardedPurchaseKeywords {
			if strings.Contains(subjectLower, keyword) {
				return false
			}
		}
	}

	for _, keyword := range promotionalSubjectKeywords {
		if strings.Contains(subjectLower, keyword) {
			return true
		}
	}

	for _, keyword := range promotionalBodyKeywords {
		if strings.Contains(bodyLower, keyword) {
			return true
		}
	}

	return false
}
