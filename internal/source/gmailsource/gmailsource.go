// Package gmailsource adapts the Gmail REST API to the MailSource
// interface. Authentication flows are out of scope; the adapter is
// handed a bearer token and a refresh callback.
package gmailsource

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/aaronromeo/mailherald/internal/source"
	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/aaronromeo/mailherald/pkg/utils"
)

// DefaultBaseURL is the Gmail API endpoint for the authenticated user.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// TokenFunc returns a valid bearer token, refreshing it if needed.
type TokenFunc func(ctx context.Context) (string, error)

// Source polls a Gmail mailbox for messages newer than a watermark.
type Source struct {
	name    string
	baseURL string
	token   TokenFunc
	httpc   *http.Client
	logger  *slog.Logger
}

// Option configures a Source.
type Option func(*Source) error

// WithName sets the source name used for cursors and logging.
func WithName(name string) Option {
	return func(s *Source) error {
		s.name = name
		return nil
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(url string) Option {
	return func(s *Source) error {
		s.baseURL = url
		return nil
	}
}

// WithTokenFunc sets the bearer token provider.
func WithTokenFunc(token TokenFunc) Option {
	return func(s *Source) error {
		s.token = token
		return nil
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) error {
		s.httpc = c
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) error {
		s.logger = logger
		return nil
	}
}

// New creates a Gmail source.
func New(opts ...Option) (*Source, error) {
	src := Source{
		baseURL: DefaultBaseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if err := opt(&src); err != nil {
			return nil, err
		}
	}

	if src.name == "" {
		return nil, errors.New("requires name")
	}

	if src.token == nil {
		return nil, errors.New("requires token provider")
	}

	if src.logger == nil {
		return nil, errors.New("requires slogger")
	}

	return &src, nil
}

// Name implements base.MailSource.
func (s *Source) Name() string {
	return s.name
}

// Reconnect forces a token refresh.
func (s *Source) Reconnect(ctx context.Context) error {
	if _, err := s.token(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to refresh Gmail token", slog.Any("error", utils.WrapError(err)))
		return err
	}
	return nil
}

type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type messageResponse struct {
	InternalDate string         `json:"internalDate"`
	Payload      messagePayload `json:"payload"`
}

type messagePayload struct {
	Headers []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Body     messageBody      `json:"body"`
	MimeType string           `json:"mimeType"`
	Parts    []messagePayload `json:"parts"`
}

type messageBody struct {
	Data string `json:"data"`
}

// Poll implements base.MailSource. The list endpoint returns newest
// first; results are reversed so callers always see oldest-first.
func (s *Source) Poll(ctx context.Context, since time.Time) ([]base.RawMessage, error) {
	var list listResponse
	listURL := fmt.Sprintf("%s/messages?q=after:%d", s.baseURL, since.Unix())
	if err := s.get(ctx, listURL, &list); err != nil {
		return nil, errors.Wrap(err, "listing messages")
	}

	messages := make([]base.RawMessage, 0, len(list.Messages))
	for i := len(list.Messages) - 1; i >= 0; i-- {
		var msg messageResponse
		msgURL := fmt.Sprintf("%s/messages/%s?format=full", s.baseURL, list.Messages[i].ID)
		if err := s.get(ctx, msgURL, &msg); err != nil {
			return nil, errors.Wrapf(err, "fetching message %s", list.Messages[i].ID)
		}
		raw, ok := s.parseMessage(msg, since)
		if ok {
			messages = append(messages, raw)
		}
	}
	return messages, nil
}

func (s *Source) get(ctx context.Context, url string, out interface{}) error {
	token, err := s.token(ctx)
	if err != nil {
		return errors.Wrap(err, "acquiring token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("gmail API returned status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (s *Source) parseMessage(msg messageResponse, since time.Time) (base.RawMessage, bool) {
	receivedAt := time.Time{}
	if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
		receivedAt = time.UnixMilli(ms)
	}
	if receivedAt.Before(since) {
		return base.RawMessage{}, false
	}

	var subject, sender string
	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "Subject":
			subject = h.Value
		case "From":
			sender = h.Value
		}
	}

	body := extractBody(msg.Payload)
	if body == "" && subject == "" {
		return base.RawMessage{}, false
	}

	return base.RawMessage{
		Subject:    subject,
		Body:       source.SanitizeBody(body),
		Sender:     sender,
		ReceivedAt: receivedAt,
	}, true
}

// extractBody walks the payload tree and returns the first decodable
// text part, preferring text/plain over stripped text/html. Non-text
// parts such as image attachments are never used as the body.
func extractBody(payload messagePayload) string {
	var htmlFallback string
	var walk func(p messagePayload) string
	walk = func(p messagePayload) string {
		if p.Body.Data != "" && strings.HasPrefix(p.MimeType, "text/") {
			decoded, err := base64.RawURLEncoding.DecodeString(p.Body.Data)
			if err != nil {
				decoded, err = base64.URLEncoding.DecodeString(p.Body.Data)
			}
			if err == nil {
				if p.MimeType == "text/html" {
					if htmlFallback == "" {
						htmlFallback = source.StripHTML(string(decoded))
					}
				} else {
					return string(decoded)
				}
			}
		}
		for _, part := range p.Parts {
			if body := walk(part); body != "" {
				return body
			}
		}
		return ""
	}
	if body := walk(payload); body != "" {
		return body
	}
	return htmlFallback
}
