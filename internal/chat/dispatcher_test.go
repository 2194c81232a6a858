package chat

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronromeo/mailherald/internal/classify"
	"github.com/aaronromeo/mailherald/internal/poller"
	"github.com/aaronromeo/mailherald/internal/relay"
	"github.com/aaronromeo/mailherald/internal/session"
	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/aaronromeo/mailherald/pkg/mock"
	"github.com/aaronromeo/mailherald/pkg/testutil"
)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	state      *session.State
	chat       *testutil.MockChatClient
	storage    *testutil.MockStorage
	poller     *poller.Poller
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	logger := mock.SetupLogger(t)
	state := session.New()
	chat := testutil.NewMockChatClient()

	storage := &testutil.MockStorage{}
	store, err := session.NewStore(session.WithStorage(storage), session.WithLogger(logger))
	require.NoError(t, err)

	r, err := relay.New(
		relay.WithChatClient(chat),
		relay.WithState(state),
		relay.WithLogger(logger),
	)
	require.NoError(t, err)

	classifier, err := classify.New(classify.Config{})
	require.NoError(t, err)

	p, err := poller.New(
		poller.WithClassifier(classifier),
		poller.WithRelay(r),
		poller.WithState(state),
		poller.WithStore(store),
		poller.WithLogger(logger),
	)
	require.NoError(t, err)
	p.RegisterSource(&testutil.MockMailSource{SourceName: "imap"})

	d, err := NewDispatcher(
		WithState(state),
		WithStore(store),
		WithPoller(p),
		WithChatClient(chat),
		WithLogger(logger),
	)
	require.NoError(t, err)

	return &dispatcherFixture{dispatcher: d, state: state, chat: chat, storage: storage, poller: p}
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires session state")
}

func TestHandleRegisterAndDeregister(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t)

	reply := f.dispatcher.Handle(ctx, Command{Kind: CmdRegister, Scope: base.ScopeCancellation}, "guild-a", "chan-1")
	assert.Equal(t, `MailMan "Cancelled Sessions" activated`, reply)
	assert.Equal(t, 1, f.storage.Writes())

	reply = f.dispatcher.Handle(ctx, Command{Kind: CmdRegister, Scope: base.ScopeCancellation}, "guild-a", "chan-1")
	assert.Equal(t, `MailMan "Cancelled Sessions" already active`, reply)
	assert.Equal(t, 1, f.storage.Writes(), "idempotent command does not persist")

	reply = f.dispatcher.Handle(ctx, Command{Kind: CmdDeregister, Scope: base.ScopeCancellation}, "guild-a", "chan-1")
	assert.Equal(t, `MailMan "Cancelled Sessions" deactivated`, reply)

	reply = f.dispatcher.Handle(ctx, Command{Kind: CmdDeregister, Scope: base.ScopeCancellation}, "guild-a", "chan-1")
	assert.Equal(t, `MailMan "Cancelled Sessions" is not active here`, reply)

	assert.Empty(t, f.state.ChannelsFor(base.ScopeCancellation))
}

func TestHandleIgnore(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t)

	reply := f.dispatcher.Handle(ctx, Command{Kind: CmdIgnore, Arg: "mailchimp"}, "guild-a", "chan-1")
	assert.Equal(t, `Ignoring senders matching "mailchimp"`, reply)
	assert.True(t, f.state.IgnoresSender("guild-a", "news@mailchimp.com"))
	assert.Equal(t, 1, f.storage.Writes())
}

func TestHandlePoll(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t)

	assert.Equal(t, `Polling "imap"`, f.dispatcher.Handle(ctx, Command{Kind: CmdPoll, Arg: "imap"}, "g", "c"))
	assert.Equal(t, "Polling all sources", f.dispatcher.Handle(ctx, Command{Kind: CmdPoll}, "g", "c"))
	assert.Equal(t, `Unknown source "nope"`, f.dispatcher.Handle(ctx, Command{Kind: CmdPoll, Arg: "nope"}, "g", "c"))
}

func TestHandleReset(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t)

	f.state.AdvanceCursor("imap", f.state.Cursor("imap").Add(1))
	reply := f.dispatcher.Handle(ctx, Command{Kind: CmdReset}, "g", "c")
	assert.Equal(t, "Cursors reset to the default lookback", reply)
	assert.Equal(t, 1, f.storage.Writes())
}

func TestHandlePurge(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t)

	reply := f.dispatcher.Handle(ctx, Command{Kind: CmdPurge}, "guild-a", "chan-1")
	assert.Equal(t, "Purged my messages in this channel", reply)
	assert.Equal(t, []string{"chan-1"}, f.chat.BulkDeleted())
}

func TestHandlePurgeFailure(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t)
	f.chat.BulkDeleteFunc = func(ctx context.Context, channelID string) error {
		return errors.New("rate limited")
	}

	reply := f.dispatcher.Handle(ctx, Command{Kind: CmdPurge}, "guild-a", "chan-1")
	assert.Equal(t, "Purge failed", reply)
}

func TestHandleUnknownKind(t *testing.T) {
	f := newDispatcherFixture(t)
	reply := f.dispatcher.Handle(context.Background(), Command{Kind: CommandKind("dance")}, "g", "c")
	assert.Equal(t, "Unrecognized command", reply)
}

func TestHandlePersistFailureStillReplies(t *testing.T) {
	ctx := context.Background()
	f := newDispatcherFixture(t)
	f.storage.WriteFunc = func(ctx context.Context, data []byte) error {
		return errors.New("disk full")
	}

	reply := f.dispatcher.Handle(ctx, Command{Kind: CmdRegister, Scope: base.ScopeModmail}, "guild-a", "chan-1")
	assert.Equal(t, `MailMan "Mod Mail" activated`, reply)
	assert.Len(t, f.state.ChannelsFor(base.ScopeModmail), 1)
}
