package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailClient implements MailboxClient for the Gmail API
type GmailClient struct {
	service *gmail.Service
	userID  string
	config  *GmailConfig
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	UserEmail    string

	// Request limits
	RequestTimeout time.Duration
	RateLimitDelay time.Duration
}

// ErrAuthExpired indicates the mailbox credentials are no longer valid.
// Callers treat this as fatal for the whole run.
var ErrAuthExpired = errors.New("mailbox credentials expired or revoked")

// NewGmailClient creates a new Gmail API client
func NewGmailClient(ctx context.Context, config *GmailConfig) (*GmailClient, error) {
	oauthConfig := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		AccessToken:  config.AccessToken,
		RefreshToken: config.RefreshToken,
		TokenType:    "Bearer",
	}

	httpClient := oauthConfig.Client(ctx, token)

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	userID := "me"
	if config.UserEmail != "" {
		userID = config.UserEmail
	}

	return &GmailClient{
		service: service,
		userID:  userID,
		config:  config,
	}, nil
}

// Search lists messages matching query and fetches their full content.
// Pagination continues until maxResults messages are collected or the
// result set is exhausted. Individual message fetch failures are logged
// and skipped; auth failures abort the search.
func (g *GmailClient) Search(ctx context.Context, query string, maxResults int64) ([]Message, error) {
	log.Printf("Searching mailbox with query: %s", query)

	var ids []string
	pageToken := ""
	for {
		time.Sleep(g.config.RateLimitDelay)

		req := g.service.Users.Messages.List(g.userID).Q(query).Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		if maxResults > 0 {
			remaining := maxResults - int64(len(ids))
			if remaining <= 0 {
				break
			}
			req = req.MaxResults(remaining)
		}

		resp, err := req.Do()
		if err != nil {
			return nil, wrapGmailError("search", err)
		}

		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || (maxResults > 0 && int64(len(ids)) >= maxResults) {
			break
		}
	}

	log.Printf("Found %d messages", len(ids))

	var messages []Message
	for _, id := range ids {
		time.Sleep(g.config.RateLimitDelay)

		fullMessage, err := g.GetMessage(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAuthExpired) {
				return nil, err
			}
			log.Printf("Failed to get message %s: %v", id, err)
			continue
		}

		messages = append(messages, *fullMessage)
	}

	return messages, nil
}

// GetMessage retrieves the full content of a specific message
func (g *GmailClient) GetMessage(ctx context.Context, id string) (*Message, error) {
	msg, err := g.service.Users.Messages.Get(g.userID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapGmailError(fmt.Sprintf("get message %s", id), err)
	}

	emailMsg, err := g.parseGmailMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}

	return emailMsg, nil
}

// GetAttachment downloads an attachment body by message and attachment ID
func (g *GmailClient) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	body, err := g.service.Users.Messages.Attachments.Get(g.userID, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, wrapGmailError(fmt.Sprintf("get attachment %s of message %s", attachmentID, messageID), err)
	}

	data, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %s: %w", attachmentID, err)
	}

	return data, nil
}

// parseGmailMessage converts a Gmail API message to Message
func (g *GmailClient) parseGmailMessage(msg *gmail.Message) (*Message, error) {
	emailMsg := &Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Headers:  make(map[string]string),
	}

	for _, header := range msg.Payload.Headers {
		emailMsg.Headers[header.Name] = header.Value

		switch strings.ToLower(header.Name) {
		case "from":
			emailMsg.From = header.Value
		case "subject":
			emailMsg.Subject = header.Value
		case "date":
			if date, err := mail.ParseDate(header.Value); err == nil {
				emailMsg.Date = date
			}
		}
	}

	plainText, htmlText := g.extractContent(msg.Payload)
	emailMsg.PlainText = plainText
	emailMsg.HTMLText = htmlText

	emailMsg.Attachments = collectAttachments(msg.Payload)

	return emailMsg, nil
}

// collectAttachments walks the part tree for parts carrying an attachment ID
func collectAttachments(payload *gmail.MessagePart) []AttachmentInfo {
	var attachments []AttachmentInfo
	if payload == nil {
		return nil
	}

	if payload.Body != nil && payload.Body.AttachmentId != "" && payload.Filename != "" {
		attachments = append(attachments, AttachmentInfo{
			ID:       payload.Body.AttachmentId,
			Filename: payload.Filename,
			MimeType: payload.MimeType,
			Size:     payload.Body.Size,
		})
	}

	for _, part := range payload.Parts {
		attachments = append(attachments, collectAttachments(part)...)
	}

	return attachments
}

// extractContent extracts plain text and HTML content from message payload
func (g *GmailClient) extractContent(payload *gmail.MessagePart) (plainText, htmlText string) {
	if payload.MimeType == "text/plain" && payload.Body.Data != "" {
		if decoded, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			plainText = string(decoded)
		}
	} else if payload.MimeType == "text/html" && payload.Body.Data != "" {
		if decoded, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			htmlText = string(decoded)
		}
	}

	// Recursively process parts for multipart messages
	for _, part := range payload.Parts {
		partPlain, partHTML := g.extractContent(part)
		if partPlain != "" && plainText == "" {
			plainText = partPlain
		}
		if partHTML != "" && htmlText == "" {
			htmlText = partHTML
		}
	}

	// Convert HTML to plain text if no plain text version
	if plainText == "" && htmlText != "" {
		plainText = HTMLToText(htmlText)
	}

	return plainText, htmlText
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// HTMLToText converts HTML content to plain text (basic implementation)
func HTMLToText(html string) string {
	text := htmlTagRe.ReplaceAllString(html, " ")

	// Decode HTML entities (basic ones)
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&nbsp;", " ")

	text = whitespaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// HealthCheck verifies the Gmail connection is working
func (g *GmailClient) HealthCheck(ctx context.Context) error {
	profile, err := g.service.Users.GetProfile(g.userID).Context(ctx).Do()
	if err != nil {
		return wrapGmailError("health check", err)
	}

	log.Printf("Connected to Gmail account: %s", profile.EmailAddress)
	return nil
}

// Close cleans up resources
func (g *GmailClient) Close() error {
	// Gmail API client doesn't require explicit cleanup
	return nil
}

// wrapGmailError maps 401/403 API responses to ErrAuthExpired so callers
// can distinguish revoked credentials from transient failures.
func wrapGmailError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 || apiErr.Code == 403 {
			return fmt.Errorf("%s: %w: %v", op, ErrAuthExpired, err)
		}
	}
	if retrErr, ok := err.(*oauth2.RetrieveError); ok && retrErr != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrAuthExpired, err)
	}
	return fmt.Errorf("gmail %s failed: %w", op, err)
}
