// Package testutil provides shared mocks for the domain interfaces.
// Mocks use function fields so each test injects exactly the behavior it
// needs and inspects recorded calls afterwards.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aaronromeo/mailherald/pkg/base"
)

// MockChatClient implements base.ChatClient for testing.
type MockChatClient struct {
	SendFunc       func(ctx context.Context, guildID, channelID string, msg base.ChatMessage) (base.NotificationHandle, error)
	DeleteFunc     func(ctx context.Context, handle base.NotificationHandle) error
	BulkDeleteFunc func(ctx context.Context, channelID string) error

	mu        sync.Mutex
	sent      []SentMessage
	deleted   []base.NotificationHandle
	bulkCalls []string
	nextID    int
}

// SentMessage records one Send call.
type SentMessage struct {
	GuildID   string
	ChannelID string
	Msg       base.ChatMessage
}

// NewMockChatClient creates a MockChatClient whose default Send succeeds
// with sequential message ids.
func NewMockChatClient() *MockChatClient {
	return &MockChatClient{}
}

// Send implements base.ChatClient.
func (m *MockChatClient) Send(ctx context.Context, guildID, channelID string, msg base.ChatMessage) (base.NotificationHandle, error) {
	if m.SendFunc != nil {
		handle, err := m.SendFunc(ctx, guildID, channelID, msg)
		if err != nil {
			return handle, err
		}
		m.record(guildID, channelID, msg)
		return handle, nil
	}

	m.record(guildID, channelID, msg)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return base.NotificationHandle{
		GuildID:   guildID,
		ChannelID: channelID,
		MessageID: fmt.Sprintf("msg-%d", m.nextID),
	}, nil
}

func (m *MockChatClient) record(guildID, channelID string, msg base.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{GuildID: guildID, ChannelID: channelID, Msg: msg})
}

// Delete implements base.ChatClient.
func (m *MockChatClient) Delete(ctx context.Context, handle base.NotificationHandle) error {
	if m.DeleteFunc != nil {
		if err := m.DeleteFunc(ctx, handle); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, handle)
	return nil
}

// BulkDelete implements base.ChatClient.
func (m *MockChatClient) BulkDelete(ctx context.Context, channelID string) error {
	m.mu.Lock()
	m.bulkCalls = append(m.bulkCalls, channelID)
	m.mu.Unlock()
	if m.BulkDeleteFunc != nil {
		return m.BulkDeleteFunc(ctx, channelID)
	}
	return nil
}

// Sent returns the recorded Send calls.
func (m *MockChatClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// Deleted returns the recorded Delete calls, in order.
func (m *MockChatClient) Deleted() []base.NotificationHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]base.NotificationHandle(nil), m.deleted...)
}

// BulkDeleted returns the channels purged so far.
func (m *MockChatClient) BulkDeleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bulkCalls...)
}

// MockMailSource implements base.MailSource for testing.
type MockMailSource struct {
	SourceName    string
	PollFunc      func(ctx context.Context, since time.Time) ([]base.RawMessage, error)
	ReconnectFunc func(ctx context.Context) error

	mu             sync.Mutex
	pollSince      []time.Time
	reconnectCalls int
}

// Name implements base.MailSource.
func (m *MockMailSource) Name() string {
	return m.SourceName
}

// Poll implements base.MailSource.
func (m *MockMailSource) Poll(ctx context.Context, since time.Time) ([]base.RawMessage, error) {
	m.mu.Lock()
	m.pollSince = append(m.pollSince, since)
	m.mu.Unlock()
	if m.PollFunc != nil {
		return m.PollFunc(ctx, since)
	}
	return nil, nil
}

// Reconnect implements base.MailSource.
func (m *MockMailSource) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	m.reconnectCalls++
	m.mu.Unlock()
	if m.ReconnectFunc != nil {
		return m.ReconnectFunc(ctx)
	}
	return nil
}

// PollSince returns the watermark of each Poll call.
func (m *MockMailSource) PollSince() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.pollSince...)
}

// ReconnectCalls returns how many times Reconnect was invoked.
func (m *MockMailSource) ReconnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectCalls
}

// MockStorage implements base.Storage in memory.
type MockStorage struct {
	ReadFunc  func(ctx context.Context) ([]byte, error)
	WriteFunc func(ctx context.Context, data []byte) error

	mu     sync.Mutex
	data   []byte
	writes int
}

// Read implements base.Storage. With no data and no ReadFunc it reports
// base.ErrNotExist, like a fresh backend.
func (m *MockStorage) Read(ctx context.Context) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, base.ErrNotExist
	}
	return append([]byte(nil), m.data...), nil
}

// Write implements base.Storage.
func (m *MockStorage) Write(ctx context.Context, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.writes++
	return nil
}

// Writes returns how many successful writes occurred.
func (m *MockStorage) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Data returns the last written document.
func (m *MockStorage) Data() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}
