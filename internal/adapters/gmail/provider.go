// Package gmail implements core.MailProvider on top of the Gmail REST API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const me = "me"

// Provider talks to Gmail on behalf of a user's access token
type Provider struct {
	endpoint      string
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
}

// NewProvider creates a new Gmail provider. An empty endpoint uses the public API.
func NewProvider(endpoint string, textProcessor *utils.TextProcessor, logger *zap.Logger) *Provider {
	return &Provider{
		endpoint:      endpoint,
		textProcessor: textProcessor,
		logger:        logger,
	}
}

func (p *Provider) service(ctx context.Context, token core.AccessToken) (*gm.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.Value,
		TokenType:   "Bearer",
		Expiry:      token.Expiry,
	})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := gm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// ListMessages returns one page of message ids matching q
func (p *Provider) ListMessages(ctx context.Context, token core.AccessToken, q core.ListQuery) (*core.MessagePage, error) {
	svc, err := p.service(ctx, token)
	if err != nil {
		return nil, err
	}

	call := svc.Users.Messages.List(me).Q(BuildQuery(q)).Context(ctx)
	if q.PageSize > 0 {
		call = call.MaxResults(q.PageSize)
	}
	if q.PageToken != "" {
		call = call.PageToken(q.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, mapError("list messages", err)
	}

	page := &core.MessagePage{
		Messages:      make([]core.MessageRef, 0, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.Messages {
		page.Messages = append(page.Messages, core.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return page, nil
}

// GetMessage fetches one message with headers and a decoded text body
func (p *Provider) GetMessage(ctx context.Context, token core.AccessToken, id string) (*core.RawMessage, error) {
	svc, err := p.service(ctx, token)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mapError("get message "+id, err)
	}

	raw := &core.RawMessage{
		ProviderID: msg.Id,
		ThreadID:   msg.ThreadId,
		Headers:    map[string]string{},
	}
	if msg.Payload != nil {
		raw.Headers = headerMap(msg.Payload.Headers)
		raw.Body = p.extractBody(msg.Payload)
	}
	raw.From = raw.Header("From")
	raw.To = raw.Header("To")
	raw.Subject = raw.Header("Subject")
	if raw.Subject == "" {
		raw.Subject = "(no subject)"
	}
	raw.Date = messageDate(msg.InternalDate, raw.Header("Date"))
	if raw.Body == "" {
		raw.Body = msg.Snippet
	}

	p.logger.Debug("Fetched message",
		zap.String("id", raw.ProviderID),
		zap.Time("date", raw.Date),
		zap.Int("body_size", len(raw.Body)))
	return raw, nil
}

// BuildQuery renders the Gmail search expression for a window
func BuildQuery(q core.ListQuery) string {
	parts := make([]string, 0, 3)
	if base := strings.TrimSpace(q.Query); base != "" {
		parts = append(parts, base)
	}
	if !q.After.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", q.After.Unix()))
	}
	if !q.Before.IsZero() {
		parts = append(parts, fmt.Sprintf("before:%d", q.Before.Unix()))
	}
	return strings.Join(parts, " ")
}

// extractBody prefers text/plain parts and falls back to HTML rendered as text
func (p *Provider) extractBody(payload *gm.MessagePart) string {
	if text := findPart(payload, "text/plain"); text != "" {
		return text
	}
	if html := findPart(payload, "text/html"); html != "" {
		return p.textProcessor.HTMLToText(html)
	}
	return ""
}

func findPart(part *gm.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
			return decoded
		}
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		if _, seen := m[h.Name]; !seen {
			m[h.Name] = h.Value
		}
	}
	return m
}

// Gmail encodes bodies as URL-safe base64, with or without padding
func decodeBase64URL(data string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func messageDate(internalDate int64, header string) time.Time {
	if internalDate > 0 {
		return time.UnixMilli(internalDate).UTC()
	}
	if t, err := http.ParseTime(header); err == nil {
		return t.UTC()
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 -0700"} {
		if t, err := time.Parse(layout, header); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Gmail also answers 403 when a quota is exhausted
var rateLimitReasons = map[string]struct{}{
	"rateLimitExceeded":     {},
	"userRateLimitExceeded": {},
	"quotaExceeded":         {},
}

func rateLimited(gerr *googleapi.Error) bool {
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		if _, ok := rateLimitReasons[item.Reason]; ok {
			return true
		}
	}
	return false
}

// mapError translates Gmail API failures into core errors
func mapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %v", op, core.ErrUnauthorized, err)
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, core.ErrMessageGone)
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500, rateLimited(gerr):
			return fmt.Errorf("%s: %w: %v", op, core.ErrProviderUnavailable, err)
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", op, core.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
