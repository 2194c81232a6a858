package session

import (
	"strings"

	"github.com/aaronromeo/mailherald/pkg/base"
)

// Register adds a destination channel for a scope. It is idempotent and
// reports whether the channel was newly activated.
func (s *State) Register(scope base.Scope, guildID, channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.listeners[scope]
	if !ok {
		sl = &scopeListeners{guilds: make(map[string][]string)}
		s.listeners[scope] = sl
	}

	channels, ok := sl.guilds[guildID]
	if !ok {
		sl.order = append(sl.order, guildID)
	}
	for _, ch := range channels {
		if ch == channelID {
			return false
		}
	}
	sl.guilds[guildID] = append(channels, channelID)
	return true
}

// Deregister removes a destination channel for a scope. It is idempotent
// and reports whether a removal occurred.
func (s *State) Deregister(scope base.Scope, guildID, channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.listeners[scope]
	if !ok {
		return false
	}
	channels, ok := sl.guilds[guildID]
	if !ok {
		return false
	}
	for i, ch := range channels {
		if ch == channelID {
			sl.guilds[guildID] = append(channels[:i], channels[i+1:]...)
			return true
		}
	}
	return false
}

// AddIgnoredSender appends a sender substring to a guild's ignore list.
// Ignore lists are tenant-level, not scope-level; one entry mutes a
// sender for every scope the guild listens on.
func (s *State) AddIgnoredSender(guildID, pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.ignore[guildID] {
		if p == pattern {
			return
		}
	}
	s.ignore[guildID] = append(s.ignore[guildID], pattern)
}

// IgnoresSender reports whether a guild's ignore list matches the sender.
func (s *State) IgnoresSender(guildID, sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pattern := range s.ignore[guildID] {
		if pattern != "" && strings.Contains(sender, pattern) {
			return true
		}
	}
	return false
}

// ChannelsFor returns the listener sets registered for a scope, in guild
// insertion order with channels in channel insertion order.
func (s *State) ChannelsFor(scope base.Scope) []base.ListenerSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.listeners[scope]
	if !ok {
		return nil
	}
	sets := make([]base.ListenerSet, 0, len(sl.order))
	for _, guildID := range sl.order {
		channels := sl.guilds[guildID]
		if len(channels) == 0 {
			continue
		}
		sets = append(sets, base.ListenerSet{
			GuildID:  guildID,
			Channels: append([]string(nil), channels...),
		})
	}
	return sets
}
