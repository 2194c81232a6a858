package base

import (
	"context"
	"time"

	"github.com/emersion/go-imap"
)

// Scope names a notification category with its own destination set.
type Scope string

const (
	// ScopeCancellation receives booking cancellation notifications.
	ScopeCancellation Scope = "cancellation"
	// ScopeModmail receives general inbox notices.
	ScopeModmail Scope = "modmail"
)

// BookingKind tags a Booking event as a confirmation or a cancellation.
type BookingKind string

const (
	// KindBooked marks a booking confirmation.
	KindBooked BookingKind = "booked"
	// KindCancelled marks a booking cancellation.
	KindCancelled BookingKind = "cancelled"
)

// RawMessage is a normalized mail record as returned by a source adapter.
type RawMessage struct {
	Subject    string
	Body       string
	Sender     string
	ReceivedAt time.Time
}

// BookingKey identifies one appointment slot across separate emails.
type BookingKey struct {
	Area string `json:"area"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// Booking is the extracted payload of a booking-system email.
type Booking struct {
	Key  BookingKey
	Kind BookingKind
}

// Notice is a non-booking email relayed verbatim.
type Notice struct {
	Subject string
	Body    string
	Sender  string
}

// MailEvent is a tagged variant: exactly one of Booking or Notice is set.
type MailEvent struct {
	Booking *Booking
	Notice  *Notice
}

// IsBooking reports whether the event carries a booking payload.
func (e MailEvent) IsBooking() bool {
	return e.Booking != nil
}

// Sender returns the originating address for ignore-list filtering. A
// booking event has no meaningful sender; it is never filtered.
func (e MailEvent) Sender() string {
	if e.Notice != nil {
		return e.Notice.Sender
	}
	return ""
}

// NotificationHandle references one delivered chat message, sufficient to
// request its deletion later.
type NotificationHandle struct {
	GuildID   string `json:"guild"`
	ChannelID string `json:"channel"`
	MessageID string `json:"message"`
}

// ListenerSet is the per-guild destination entry for one scope.
type ListenerSet struct {
	GuildID  string
	Channels []string
}

// MailSource is the capability interface implemented once per mail
// provider. Poll returns messages received at or after since, oldest
// first, and must tolerate a since value in the past.
type MailSource interface {
	Name() string
	Poll(ctx context.Context, since time.Time) ([]RawMessage, error)
	Reconnect(ctx context.Context) error
}

// ChatMessage is the formatted content handed to the chat client.
type ChatMessage struct {
	Title string
	Body  string
	// Footer carries the sender attribution or the venue link.
	Footer string
}

// ChatClient abstracts the chat platform used for delivery and retraction.
type ChatClient interface {
	Send(ctx context.Context, guildID, channelID string, msg ChatMessage) (NotificationHandle, error)
	Delete(ctx context.Context, handle NotificationHandle) error
	BulkDelete(ctx context.Context, channelID string) error
}

// Storage persists the serialized session document.
type Storage interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Client is an interface to abstract the go-imap client.Client methods used
type Client interface {
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Login(username string, password string) error
	Logout() error
	Search(criteria *imap.SearchCriteria) (seqNums []uint32, err error)
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	State() imap.ConnState
}
