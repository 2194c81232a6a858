package imapsource

import (
	"context"
	"crypto/tls"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/aaronromeo/mailherald/pkg/mock"
)

func newSource(t *testing.T, client base.Client) *Source {
	t.Helper()
	src, err := New(
		WithName("imap"),
		WithAuth("user", "pass"),
		WithClient(client),
		WithLogger(mock.SetupLogger(t)),
	)
	require.NoError(t, err)
	return src
}

func plainMessage(subject, from, body string, date time.Time) *imap.Message {
	raw := strings.Join([]string{
		"Subject: " + subject,
		"From: " + from,
		"Content-Type: text/plain",
		"",
		body,
	}, "\r\n")

	at := strings.SplitN(from, "@", 2)
	section := &imap.BodySectionName{}
	return &imap.Message{
		Envelope: &imap.Envelope{
			Subject: subject,
			Date:    date,
			From:    []*imap.Address{{MailboxName: at[0], HostName: at[1]}},
		},
		Body: map[*imap.BodySectionName]imap.Literal{
			section: mock.NewStringLiteral(raw),
		},
	}
}

func TestNewValidation(t *testing.T) {
	logger := mock.SetupLogger(t)

	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{
			name:    "missing name",
			opts:    []Option{WithAuth("u", "p"), WithTLSConfig("host:993", nil), WithLogger(logger)},
			wantErr: "requires name",
		},
		{
			name:    "missing username",
			opts:    []Option{WithName("imap"), WithTLSConfig("host:993", nil), WithLogger(logger)},
			wantErr: "requires username",
		},
		{
			name:    "missing password",
			opts:    []Option{WithName("imap"), WithAuth("u", ""), WithTLSConfig("host:993", nil), WithLogger(logger)},
			wantErr: "requires password",
		},
		{
			name:    "missing client and address",
			opts:    []Option{WithName("imap"), WithAuth("u", "p"), WithLogger(logger)},
			wantErr: "requires client or address",
		},
		{
			name:    "missing logger",
			opts:    []Option{WithName("imap"), WithAuth("u", "p"), WithTLSConfig("host:993", nil)},
			wantErr: "requires slogger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPollReturnsMessagesOldestFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	since := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	newest := plainMessage("Second", "b@example.org", "later mail", since.Add(2*time.Hour))
	oldest := plainMessage("First", "a@example.org", "earlier mail", since.Add(time.Hour))
	stale := plainMessage("Stale", "c@example.org", "before the watermark", since.Add(-time.Hour))

	criteria := imap.NewSearchCriteria()
	criteria.Since = since.Truncate(24 * time.Hour)

	client := mock.NewMockClient(ctrl)
	client.EXPECT().State().Return(imap.ConnState(imap.AuthenticatedState))
	client.EXPECT().Select("INBOX", true).Return(&imap.MailboxStatus{}, nil)
	client.EXPECT().Search(mock.NewSearchCriteriaMatcher(criteria, time.Minute)).Return([]uint32{1, 2, 3}, nil)
	client.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
			ch <- newest
			ch <- oldest
			ch <- stale
			close(ch)
			return nil
		})

	src := newSource(t, client)
	messages, err := src.Poll(context.Background(), since)
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Equal(t, "First", messages[0].Subject)
	assert.Equal(t, "a@example.org", messages[0].Sender)
	assert.Equal(t, "earlier mail", messages[0].Body)
	assert.Equal(t, "Second", messages[1].Subject)
}

func TestPollEmptyMailbox(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mock.NewMockClient(ctrl)
	client.EXPECT().State().Return(imap.ConnState(imap.AuthenticatedState))
	client.EXPECT().Select("INBOX", true).Return(&imap.MailboxStatus{}, nil)
	client.EXPECT().Search(gomock.Any()).Return(nil, nil)

	src := newSource(t, client)
	messages, err := src.Poll(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestPollSearchError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mock.NewMockClient(ctrl)
	client.EXPECT().State().Return(imap.ConnState(imap.AuthenticatedState))
	client.EXPECT().Select("INBOX", true).Return(&imap.MailboxStatus{}, nil)
	client.EXPECT().Search(gomock.Any()).Return(nil, errors.New("connection reset"))

	src := newSource(t, client)
	_, err := src.Poll(context.Background(), time.Now().Add(-time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "searching INBOX")
}

func TestPollLogsInWhenNotAuthenticated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := mock.NewMockClient(ctrl)
	client.EXPECT().State().Return(imap.NotAuthenticatedState)
	client.EXPECT().Login("user", "pass").Return(nil)
	client.EXPECT().Select("INBOX", true).Return(&imap.MailboxStatus{}, nil)
	client.EXPECT().Search(gomock.Any()).Return(nil, nil)

	src := newSource(t, client)
	_, err := src.Poll(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
}

func TestReconnectReplacesSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	old := mock.NewMockClient(ctrl)
	old.EXPECT().Logout().Return(nil)

	fresh := mock.NewMockClient(ctrl)
	fresh.EXPECT().Login("user", "pass").Return(nil)

	src, err := New(
		WithName("imap"),
		WithAuth("user", "pass"),
		WithClient(old),
		WithDialTLS(func(address string, tlsConfig *tls.Config) (base.Client, error) {
			return fresh, nil
		}),
		WithLogger(mock.SetupLogger(t)),
	)
	require.NoError(t, err)

	require.NoError(t, src.Reconnect(context.Background()))
}

func TestReconnectDialFailure(t *testing.T) {
	src, err := New(
		WithName("imap"),
		WithAuth("user", "pass"),
		WithTLSConfig("imap.example.org:993", nil),
		WithDialTLS(func(address string, tlsConfig *tls.Config) (base.Client, error) {
			return nil, errors.New("no route to host")
		}),
		WithLogger(mock.SetupLogger(t)),
	)
	require.NoError(t, err)

	assert.Error(t, src.Reconnect(context.Background()))
}

func TestExtractTextBodyMultipart(t *testing.T) {
	raw := strings.Join([]string{
		"Content-Type: multipart/alternative; boundary=BOUNDARY",
		"",
		"--BOUNDARY",
		"Content-Type: text/html",
		"",
		"<p>html copy</p>",
		"--BOUNDARY",
		"Content-Type: text/plain",
		"",
		"plain copy",
		"--BOUNDARY--",
		"",
	}, "\r\n")

	body, err := extractTextBody(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "plain copy", body)
}

func TestExtractTextBodyHTMLFallback(t *testing.T) {
	raw := strings.Join([]string{
		"Content-Type: multipart/alternative; boundary=BOUNDARY",
		"",
		"--BOUNDARY",
		"Content-Type: text/html",
		"",
		"<p>html only</p>",
		"--BOUNDARY--",
		"",
	}, "\r\n")

	body, err := extractTextBody(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "html only", body)
}

func TestExtractTextBodySkipsAttachments(t *testing.T) {
	raw := strings.Join([]string{
		"Content-Type: multipart/mixed; boundary=BOUNDARY",
		"",
		"--BOUNDARY",
		"Content-Type: text/plain",
		"Content-Disposition: attachment; filename=notes.txt",
		"",
		"attached notes",
		"--BOUNDARY",
		"Content-Type: text/plain",
		"",
		"actual body",
		"--BOUNDARY--",
		"",
	}, "\r\n")

	body, err := extractTextBody(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "actual body", body)
}
