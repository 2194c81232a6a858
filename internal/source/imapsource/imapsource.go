// Package imapsource adapts an IMAP mailbox to the MailSource interface.
package imapsource

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	message "github.com/emersion/go-message"
	"github.com/pkg/errors"

	"github.com/aaronromeo/mailherald/internal/source"
	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/aaronromeo/mailherald/pkg/utils"
)

// Source polls an IMAP INBOX for messages newer than a watermark.
type Source struct {
	name      string
	client    base.Client
	dialTLS   func(address string, tlsConfig *tls.Config) (base.Client, error)
	username  string
	password  string
	address   string
	tlsConfig *tls.Config
	logger    *slog.Logger
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

// WithTLSConfig sets the server address and TLS configuration.
func WithTLSConfig(addr string, tlsConfig *tls.Config) Option {
	return func(s *Source) error {
		s.address = addr
		s.tlsConfig = tlsConfig
		return nil
	}
}

// WithAuth sets the login credentials.
func WithAuth(username, password string) Option {
	return func(s *Source) error {
		s.username = username
		s.password = password
		return nil
	}
}

// WithClient injects a connected client, for tests.
func WithClient(c base.Client) Option {
	return func(s *Source) error {
		s.client = c
		return nil
	}
}

// WithDialTLS overrides the dial function.
func WithDialTLS(d func(address string, tlsConfig *tls.Config) (base.Client, error)) Option {
	return func(s *Source) error {
		s.dialTLS = d
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

// New creates an IMAP source.
func New(opts ...Option) (*Source, error) {
	var src Source
	for _, opt := range opts {
		if err := opt(&src); err != nil {
			return nil, err
		}
	}

	if src.dialTLS == nil {
		src.dialTLS = func(address string, tlsConfig *tls.Config) (base.Client, error) {
			c, err := imapclient.DialTLS(address, tlsConfig)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	if src.name == "" {
		return nil, errors.New("requires name")
	}

	if src.username == "" {
		return nil, errors.New("requires username")
	}

	if src.password == "" {
		return nil, errors.New("requires password")
	}

	if src.client == nil && src.address == "" {
		return nil, errors.New("requires client or address")
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

// Reconnect re-dials the server and logs in again, replacing any expired
// session.
func (s *Source) Reconnect(ctx context.Context) error {
	c, err := s.dialTLS(s.address, s.tlsConfig)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to dial IMAP server", slog.Any("error", utils.WrapError(err)))
		return err
	}
	if err := c.Login(s.username, s.password); err != nil {
		s.logger.ErrorContext(ctx, "Failed to login", slog.Any("error", utils.WrapError(err)))
		return err
	}
	if s.client != nil {
		if err := s.client.Logout(); err != nil {
			s.logger.InfoContext(ctx, "Logout of previous session failed", slog.Any("error", err))
		}
	}
	s.client = c
	s.logger.InfoContext(ctx, "IMAP session established", slog.String("source", s.name))
	return nil
}

// Poll implements base.MailSource. The IMAP SINCE search key has day
// granularity, so results are re-filtered client-side on the envelope
// date before being returned oldest-first.
func (s *Source) Poll(ctx context.Context, since time.Time) ([]base.RawMessage, error) {
	if err := s.ensureSession(ctx); err != nil {
		return nil, err
	}

	if _, err := s.client.Select("INBOX", true); err != nil {
		return nil, errors.Wrap(err, "selecting INBOX")
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since.Truncate(24 * time.Hour)
	seqNums, err := s.client.Search(criteria)
	if err != nil {
		return nil, errors.Wrap(err, "searching INBOX")
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope}

	fetched := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqSet, items, fetched)
	}()

	var messages []base.RawMessage
	for msg := range fetched {
		raw, ok := s.parseMessage(ctx, msg, section, since)
		if ok {
			messages = append(messages, raw)
		}
	}

	if err := <-done; err != nil {
		return nil, errors.Wrap(err, "fetching messages")
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})
	return messages, nil
}

func (s *Source) ensureSession(ctx context.Context) error {
	if s.client == nil {
		return s.Reconnect(ctx)
	}
	switch s.client.State() {
	case imap.AuthenticatedState, imap.SelectedState:
		return nil
	case imap.NotAuthenticatedState:
		if err := s.client.Login(s.username, s.password); err != nil {
			s.logger.ErrorContext(ctx, "Failed to login", slog.Any("error", utils.WrapError(err)))
			return err
		}
		return nil
	default: // imap.LogoutState and imap.ConnectedState
		return s.Reconnect(ctx)
	}
}

// parseMessage converts one fetched message into a RawMessage. Messages
// older than the watermark or without a readable text body are skipped.
func (s *Source) parseMessage(ctx context.Context, msg *imap.Message, section *imap.BodySectionName, since time.Time) (base.RawMessage, bool) {
	if msg.Envelope == nil || msg.Envelope.Date.Before(since) {
		return base.RawMessage{}, false
	}

	sender := ""
	if len(msg.Envelope.From) > 0 {
		sender = msg.Envelope.From[0].Address()
	}

	literal := msg.GetBody(section)
	if literal == nil {
		return base.RawMessage{}, false
	}

	body, err := extractTextBody(literal)
	if err != nil {
		s.logger.InfoContext(ctx, "Skipping message with unreadable body",
			slog.String("subject", msg.Envelope.Subject),
			slog.Any("error", err))
		return base.RawMessage{}, false
	}
	if body == "" {
		return base.RawMessage{}, false
	}

	body = source.SanitizeBody(body)

	return base.RawMessage{
		Subject:    msg.Envelope.Subject,
		Body:       body,
		Sender:     sender,
		ReceivedAt: msg.Envelope.Date,
	}, true
}

// extractTextBody walks a MIME message and returns the first text/plain
// part, or a stripped text/html part when no plain text exists.
// Attachments are skipped.
func extractTextBody(r io.Reader) (string, error) {
	m, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return "", err
	}

	mr := m.MultipartReader()
	if mr == nil {
		return readPart(m)
	}

	var htmlFallback string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		t, _, err := p.Header.ContentType()
		if err != nil {
			continue
		}
		disposition, _, _ := p.Header.ContentDisposition()
		if disposition == "attachment" {
			continue
		}
		b, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		switch t {
		case "text/plain":
			return string(b), nil
		case "text/html":
			if htmlFallback == "" {
				htmlFallback = source.StripHTML(string(b))
			}
		}
	}
	return htmlFallback, nil
}

func readPart(m *message.Entity) (string, error) {
	t, _, _ := m.Header.ContentType()
	b, err := io.ReadAll(m.Body)
	if err != nil {
		return "", err
	}
	switch {
	case t == "text/html":
		return source.StripHTML(string(b)), nil
	case t == "" || strings.HasPrefix(t, "text/"):
		return string(b), nil
	}
	return "", nil
}
