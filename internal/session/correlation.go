package session

import "github.com/aaronromeo/mailherald/pkg/base"

// RecordHandles appends delivered handles to the correlation entry for a
// booking key, creating the entry if absent. Empty batches are a no-op,
// so an entry never exists without at least one handle.
func (s *State) RecordHandles(key base.BookingKey, handles []base.NotificationHandle) {
	if len(handles) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.correlations[key] = append(s.correlations[key], handles...)
}

// TakeAndClear atomically removes and returns every handle filed under a
// booking key, in the order they were recorded. A missing key yields nil;
// it means no cancellation was ever announced for that slot.
func (s *State) TakeAndClear(key base.BookingKey) []base.NotificationHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := s.correlations[key]
	delete(s.correlations, key)
	return handles
}

// CorrelationCount returns the number of outstanding correlation entries.
func (s *State) CorrelationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.correlations)
}
