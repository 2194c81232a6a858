// Package relay fans mail events out to registered chat destinations and
// retracts notifications superseded by later events.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aaronromeo/mailherald/internal/session"
	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/aaronromeo/mailherald/pkg/utils"
	"github.com/pkg/errors"
)

// DefaultVenueLink is shown in place of a sender on booking
// notifications.
const DefaultVenueLink = "https://simplybook.me"

// noticeDivider closes out relayed notice bodies so consecutive
// notices read as separate mails in a busy channel.
const noticeDivider = "========================================"

// Relay delivers events against the destination registry and records
// results into the correlation store.
type Relay struct {
	chat      base.ChatClient
	state     *session.State
	logger    *slog.Logger
	venueLink string
}

// Option configures a Relay.
type Option func(*Relay)

// WithChatClient sets the chat destination client.
func WithChatClient(chat base.ChatClient) Option {
	return func(r *Relay) {
		r.chat = chat
	}
}

// WithState sets the session state holding listeners and correlations.
func WithState(state *session.State) Option {
	return func(r *Relay) {
		r.state = state
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithVenueLink overrides the venue link shown on booking notifications.
func WithVenueLink(link string) Option {
	return func(r *Relay) {
		r.venueLink = link
	}
}

// New creates a Relay.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{venueLink: DefaultVenueLink}
	for _, opt := range opts {
		opt(r)
	}

	if r.chat == nil {
		return nil, errors.New("requires chat client")
	}

	if r.state == nil {
		return nil, errors.New("requires session state")
	}

	if r.logger == nil {
		return nil, errors.New("requires slogger")
	}

	return r, nil
}

// Deliver routes one event to every destination registered for the
// scope and returns the handles actually created. A Booked event sends
// nothing; it retracts the notifications recorded for its key. Send and
// delete failures are logged per destination and never abort the rest
// of the fan-out.
func (r *Relay) Deliver(ctx context.Context, event base.MailEvent, scope base.Scope) []base.NotificationHandle {
	if b := event.Booking; b != nil && b.Kind == base.KindBooked {
		r.retract(ctx, b.Key)
		return nil
	}

	handles := r.fanOut(ctx, event, scope)

	if b := event.Booking; b != nil && b.Kind == base.KindCancelled {
		r.state.RecordHandles(b.Key, handles)
	}

	return handles
}

// fanOut sends the formatted event to each listening channel, skipping
// guilds whose ignore list matches the sender. Only successful sends
// contribute handles, so retraction never sees a placeholder for a
// failed destination.
func (r *Relay) fanOut(ctx context.Context, event base.MailEvent, scope base.Scope) []base.NotificationHandle {
	msg := r.format(event)

	var handles []base.NotificationHandle
	for _, listener := range r.state.ChannelsFor(scope) {
		if sender := event.Sender(); sender != "" && r.state.IgnoresSender(listener.GuildID, sender) {
			r.logger.InfoContext(ctx, "Sender ignored for guild",
				slog.String("guild", listener.GuildID),
				slog.String("sender", sender))
			continue
		}
		for _, channelID := range listener.Channels {
			handle, err := r.chat.Send(ctx, listener.GuildID, channelID, msg)
			if err != nil {
				r.logger.ErrorContext(ctx, "Failed to send notification",
					slog.String("guild", listener.GuildID),
					slog.String("channel", channelID),
					slog.Any("error", utils.WrapError(err)))
				continue
			}
			handles = append(handles, handle)
		}
	}
	return handles
}

// retract deletes every notification recorded for the key, in recorded
// order. Duplicate handles within one batch are deleted once.
func (r *Relay) retract(ctx context.Context, key base.BookingKey) {
	handles := r.state.TakeAndClear(key)
	if len(handles) == 0 {
		return
	}

	seen := make(map[base.NotificationHandle]struct{}, len(handles))
	for _, handle := range handles {
		if _, dup := seen[handle]; dup {
			continue
		}
		seen[handle] = struct{}{}
		if err := r.chat.Delete(ctx, handle); err != nil {
			r.logger.ErrorContext(ctx, "Failed to retract notification",
				slog.String("channel", handle.ChannelID),
				slog.String("message", handle.MessageID),
				slog.Any("error", utils.WrapError(err)))
		}
	}
	r.logger.InfoContext(ctx, "Retracted cancellation notifications",
		slog.String("area", key.Area),
		slog.String("date", key.Date),
		slog.String("time", key.Time),
		slog.Int("handles", len(handles)))
}

func (r *Relay) format(event base.MailEvent) base.ChatMessage {
	if b := event.Booking; b != nil {
		return base.ChatMessage{
			Title:  fmt.Sprintf("Appointment for %s", b.Key.Area),
			Body:   fmt.Sprintf("On **%s** at **%s** has been %s.", b.Key.Date, b.Key.Time, b.Kind),
			Footer: r.venueLink,
		}
	}
	n := event.Notice
	return base.ChatMessage{
		Title:  n.Subject,
		Body:   n.Body + "\n" + noticeDivider,
		Footer: fmt.Sprintf("From: %s", n.Sender),
	}
}
