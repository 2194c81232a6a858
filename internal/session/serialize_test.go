package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronromeo/mailherald/pkg/base"
)

func TestSerializeRestoreRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	state := New(WithNowFunc(func() time.Time { return now }))

	state.AdvanceCursor("imap", now.Add(-time.Hour))
	state.AdvanceCursor("gmail", now.Add(-2*time.Hour))
	state.Register(base.ScopeCancellation, "guild-a", "chan-1")
	state.Register(base.ScopeCancellation, "guild-b", "chan-2")
	state.Register(base.ScopeModmail, "guild-a", "chan-3")
	state.AddIgnoredSender("guild-a", "mailchimp")
	key := base.BookingKey{Area: "3D Printer", Date: "2024-05-01", Time: "10:00"}
	state.RecordHandles(key, []base.NotificationHandle{
		{GuildID: "guild-a", ChannelID: "chan-1", MessageID: "msg-1"},
		{GuildID: "guild-b", ChannelID: "chan-2", MessageID: "msg-2"},
	})

	encoded, err := state.Serialize()
	require.NoError(t, err)

	restored := New(WithNowFunc(func() time.Time { return now }))
	require.NoError(t, restored.Restore(encoded))

	assert.Equal(t, now.Add(-time.Hour).Unix(), restored.Cursor("imap").Unix())
	assert.Equal(t, now.Add(-2*time.Hour).Unix(), restored.Cursor("gmail").Unix())
	assert.Equal(t, []base.ListenerSet{
		{GuildID: "guild-a", Channels: []string{"chan-1"}},
		{GuildID: "guild-b", Channels: []string{"chan-2"}},
	}, restored.ChannelsFor(base.ScopeCancellation))
	assert.Equal(t, []base.ListenerSet{
		{GuildID: "guild-a", Channels: []string{"chan-3"}},
	}, restored.ChannelsFor(base.ScopeModmail))
	assert.True(t, restored.IgnoresSender("guild-a", "news@mailchimp.com"))

	handles := restored.TakeAndClear(key)
	require.Len(t, handles, 2)
	assert.Equal(t, "msg-1", handles[0].MessageID)
	assert.Equal(t, "msg-2", handles[1].MessageID)
}

func TestSerializeIsDeterministic(t *testing.T) {
	state := New()
	state.RecordHandles(base.BookingKey{Area: "B", Date: "2024-05-02", Time: "10:00"},
		[]base.NotificationHandle{{GuildID: "g", ChannelID: "c", MessageID: "m-1"}})
	state.RecordHandles(base.BookingKey{Area: "A", Date: "2024-05-01", Time: "09:00"},
		[]base.NotificationHandle{{GuildID: "g", ChannelID: "c", MessageID: "m-2"}})

	first, err := state.Serialize()
	require.NoError(t, err)
	second, err := state.Serialize()
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestRestoreOrdersGuildsLexicographically(t *testing.T) {
	state := New()
	state.Register(base.ScopeModmail, "zulu", "chan-z")
	state.Register(base.ScopeModmail, "alpha", "chan-a")

	encoded, err := state.Serialize()
	require.NoError(t, err)

	restored := New()
	require.NoError(t, restored.Restore(encoded))

	sets := restored.ChannelsFor(base.ScopeModmail)
	require.Len(t, sets, 2)
	assert.Equal(t, "alpha", sets[0].GuildID)
	assert.Equal(t, "zulu", sets[1].GuildID)
}

func TestRestoreRejectsMalformedDocument(t *testing.T) {
	state := New()
	assert.Error(t, state.Restore([]byte("not json")))
}

func TestRestoreDropsEmptyCorrelationEntries(t *testing.T) {
	doc := `{
  "cursors": {},
  "listeners": {},
  "ignore": {},
  "correlations": [
    {"key": {"area": "A", "date": "2024-05-01", "time": "09:00"}, "handles": []}
  ]
}`

	state := New()
	require.NoError(t, state.Restore([]byte(doc)))
	assert.Equal(t, 0, state.CorrelationCount())
}
