// Package session holds the durable state shared by the poll scheduler,
// the notification relay, and the chat command handlers: per-source
// cursors, per-scope listener registrations, per-guild ignore lists, and
// the correlation entries for outstanding cancellation notifications.
//
// All state lives behind one mutex. Event volume is a handful of mails
// per day, so a coarse lock is plenty.
package session

import (
	"sync"
	"time"

	"github.com/aaronromeo/mailherald/pkg/base"
)

// DefaultLookback bounds the first poll window when no cursor exists yet.
const DefaultLookback = 14 * 24 * time.Hour

// State is the session aggregate. The zero value is not usable; use New.
type State struct {
	mu sync.Mutex

	lookback time.Duration
	now      func() time.Time

	cursors map[string]int64
	// listeners[scope] preserves guild insertion order so delivery order
	// is deterministic.
	listeners map[base.Scope]*scopeListeners
	ignore    map[string][]string
	// correlations maps a booking key to the handles announcing its
	// cancellation, in delivery order.
	correlations map[base.BookingKey][]base.NotificationHandle
}

type scopeListeners struct {
	order  []string
	guilds map[string][]string
}

// Option configures a State.
type Option func(*State)

// WithLookback overrides the default cursor lookback window.
func WithLookback(d time.Duration) Option {
	return func(s *State) {
		s.lookback = d
	}
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(s *State) {
		s.now = now
	}
}

// New creates an empty session state.
func New(opts ...Option) *State {
	s := &State{
		lookback:     DefaultLookback,
		now:          time.Now,
		cursors:      make(map[string]int64),
		listeners:    make(map[base.Scope]*scopeListeners),
		ignore:       make(map[string][]string),
		correlations: make(map[base.BookingKey][]base.NotificationHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cursor returns the watermark for a source, or now minus the configured
// lookback if the source has never completed a poll.
func (s *State) Cursor(source string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts, ok := s.cursors[source]; ok {
		return time.Unix(ts, 0)
	}
	return s.now().Add(-s.lookback)
}

// AdvanceCursor moves a source's watermark forward. Out-of-order values
// are clamped; the stored cursor never decreases.
func (s *State) AdvanceCursor(source string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := t.Unix()
	if current, ok := s.cursors[source]; ok && current > ts {
		return
	}
	s.cursors[source] = ts
}

// ResetCursors drops all watermarks, so the next poll of every source
// falls back to the default lookback window.
func (s *State) ResetCursors() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors = make(map[string]int64)
}
