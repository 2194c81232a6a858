package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aaronromeo/mailherald/internal/poller"
	"github.com/aaronromeo/mailherald/internal/session"
	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/aaronromeo/mailherald/pkg/utils"
	"github.com/pkg/errors"
)

// Dispatcher applies parsed commands against the session state and the
// poll scheduler, returning the reply text for the invoking channel.
type Dispatcher struct {
	state  *session.State
	store  *session.Store
	poller *poller.Poller
	chat   base.ChatClient
	logger *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithState sets the session state.
func WithState(state *session.State) DispatcherOption {
	return func(d *Dispatcher) {
		d.state = state
	}
}

// WithStore sets the session store saved after mutating commands.
func WithStore(store *session.Store) DispatcherOption {
	return func(d *Dispatcher) {
		d.store = store
	}
}

// WithPoller sets the poll scheduler used by poll commands.
func WithPoller(p *poller.Poller) DispatcherOption {
	return func(d *Dispatcher) {
		d.poller = p
	}
}

// WithChatClient sets the chat client used by purge commands.
func WithChatClient(chat base.ChatClient) DispatcherOption {
	return func(d *Dispatcher) {
		d.chat = chat
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts ...DispatcherOption) (*Dispatcher, error) {
	var d Dispatcher
	for _, opt := range opts {
		opt(&d)
	}

	if d.state == nil {
		return nil, errors.New("requires session state")
	}

	if d.store == nil {
		return nil, errors.New("requires session store")
	}

	if d.poller == nil {
		return nil, errors.New("requires poller")
	}

	if d.chat == nil {
		return nil, errors.New("requires chat client")
	}

	if d.logger == nil {
		return nil, errors.New("requires slogger")
	}

	return &d, nil
}

// Handle executes one command issued from a guild channel and returns
// the reply to post there. Commands never return an error to the
// operator beyond the reply text; failures are logged.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command, guildID, channelID string) string {
	switch cmd.Kind {
	case CmdRegister:
		name := ScopeDisplayName(cmd.Scope)
		if d.state.Register(cmd.Scope, guildID, channelID) {
			d.persist(ctx)
			return fmt.Sprintf("MailMan %q activated", name)
		}
		return fmt.Sprintf("MailMan %q already active", name)

	case CmdDeregister:
		name := ScopeDisplayName(cmd.Scope)
		if d.state.Deregister(cmd.Scope, guildID, channelID) {
			d.persist(ctx)
			return fmt.Sprintf("MailMan %q deactivated", name)
		}
		return fmt.Sprintf("MailMan %q is not active here", name)

	case CmdIgnore:
		d.state.AddIgnoredSender(guildID, cmd.Arg)
		d.persist(ctx)
		return fmt.Sprintf("Ignoring senders matching %q", cmd.Arg)

	case CmdPoll:
		if d.poller.Trigger(cmd.Arg) {
			if cmd.Arg == "" {
				return "Polling all sources"
			}
			return fmt.Sprintf("Polling %q", cmd.Arg)
		}
		return fmt.Sprintf("Unknown source %q", cmd.Arg)

	case CmdReset:
		d.state.ResetCursors()
		d.persist(ctx)
		return "Cursors reset to the default lookback"

	case CmdPurge:
		if err := d.chat.BulkDelete(ctx, channelID); err != nil {
			d.logger.ErrorContext(ctx, "Failed to purge channel",
				slog.String("channel", channelID),
				slog.Any("error", utils.WrapError(err)))
			return "Purge failed"
		}
		return "Purged my messages in this channel"
	}

	return "Unrecognized command"
}

func (d *Dispatcher) persist(ctx context.Context) {
	if err := d.store.Save(ctx, d.state); err != nil {
		d.logger.ErrorContext(ctx, "Failed to persist session after command",
			slog.Any("error", utils.WrapError(err)))
	}
}
