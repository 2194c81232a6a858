package session

import (
	"encoding/json"
	"sort"

	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/pkg/errors"
)

type serializedState struct {
	Cursors      map[string]int64                   `json:"cursors"`
	Listeners    map[base.Scope]map[string][]string `json:"listeners"`
	Ignore       map[string][]string                `json:"ignore"`
	Correlations []serializedCorrelation            `json:"correlations"`
}

type serializedCorrelation struct {
	Key     base.BookingKey           `json:"key"`
	Handles []base.NotificationHandle `json:"handles"`
}

// Serialize renders the session state as a JSON document.
func (s *State) Serialize() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := serializedState{
		Cursors:   s.cursors,
		Listeners: make(map[base.Scope]map[string][]string, len(s.listeners)),
		Ignore:    s.ignore,
	}
	for scope, sl := range s.listeners {
		guilds := make(map[string][]string, len(sl.guilds))
		for guildID, channels := range sl.guilds {
			if len(channels) > 0 {
				guilds[guildID] = channels
			}
		}
		doc.Listeners[scope] = guilds
	}

	keys := make([]base.BookingKey, 0, len(s.correlations))
	for key := range s.correlations {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Area != b.Area {
			return a.Area < b.Area
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Time < b.Time
	})
	for _, key := range keys {
		doc.Correlations = append(doc.Correlations, serializedCorrelation{
			Key:     key,
			Handles: s.correlations[key],
		})
	}

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshaling session state")
	}
	return encoded, nil
}

// Restore replaces the session state with the contents of a JSON
// document previously produced by Serialize. Guild iteration order is
// rebuilt lexicographically, which keeps delivery order deterministic
// across restarts.
func (s *State) Restore(data []byte) error {
	var doc serializedState
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "unmarshaling session state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors = make(map[string]int64)
	for source, ts := range doc.Cursors {
		s.cursors[source] = ts
	}

	s.listeners = make(map[base.Scope]*scopeListeners)
	for scope, guilds := range doc.Listeners {
		sl := &scopeListeners{guilds: make(map[string][]string)}
		for guildID := range guilds {
			sl.order = append(sl.order, guildID)
		}
		sort.Strings(sl.order)
		for guildID, channels := range guilds {
			sl.guilds[guildID] = append([]string(nil), channels...)
		}
		s.listeners[scope] = sl
	}

	s.ignore = make(map[string][]string)
	for guildID, patterns := range doc.Ignore {
		s.ignore[guildID] = append([]string(nil), patterns...)
	}

	s.correlations = make(map[base.BookingKey][]base.NotificationHandle)
	for _, entry := range doc.Correlations {
		if len(entry.Handles) == 0 {
			continue
		}
		s.correlations[entry.Key] = append([]base.NotificationHandle(nil), entry.Handles...)
	}

	return nil
}
