package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aaronromeo/mailherald/pkg/base"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Command
		wantOK  bool
	}{
		{
			name:    "cancelled start",
			content: "!cancelled start",
			want:    Command{Kind: CmdRegister, Scope: base.ScopeCancellation},
			wantOK:  true,
		},
		{
			name:    "cancelled stop",
			content: "!cancelled stop",
			want:    Command{Kind: CmdDeregister, Scope: base.ScopeCancellation},
			wantOK:  true,
		},
		{
			name:    "modmail start",
			content: "!modmail start",
			want:    Command{Kind: CmdRegister, Scope: base.ScopeModmail},
			wantOK:  true,
		},
		{
			name:    "modmail stop",
			content: "!modmail stop",
			want:    Command{Kind: CmdDeregister, Scope: base.ScopeModmail},
			wantOK:  true,
		},
		{
			name:    "mixed case and padding",
			content: "  !Modmail START  ",
			want:    Command{Kind: CmdRegister, Scope: base.ScopeModmail},
			wantOK:  true,
		},
		{
			name:    "ignore pattern",
			content: "!ignore mailchimp.com",
			want:    Command{Kind: CmdIgnore, Arg: "mailchimp.com"},
			wantOK:  true,
		},
		{
			name:    "poll all",
			content: "!poll",
			want:    Command{Kind: CmdPoll},
			wantOK:  true,
		},
		{
			name:    "poll one source",
			content: "!poll imap",
			want:    Command{Kind: CmdPoll, Arg: "imap"},
			wantOK:  true,
		},
		{
			name:    "reset",
			content: "!reset",
			want:    Command{Kind: CmdReset},
			wantOK:  true,
		},
		{
			name:    "purge",
			content: "!purge",
			want:    Command{Kind: CmdPurge},
			wantOK:  true,
		},
		{
			name:    "not a command",
			content: "hello there",
		},
		{
			name:    "bare bang",
			content: "!",
		},
		{
			name:    "unknown word",
			content: "!dance",
		},
		{
			name:    "scope without verb",
			content: "!cancelled",
		},
		{
			name:    "scope with bad verb",
			content: "!cancelled maybe",
		},
		{
			name:    "ignore without a pattern",
			content: "!ignore",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCommand(tt.content)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScopeDisplayName(t *testing.T) {
	assert.Equal(t, "Cancelled Sessions", ScopeDisplayName(base.ScopeCancellation))
	assert.Equal(t, "Mod Mail", ScopeDisplayName(base.ScopeModmail))
	assert.Equal(t, "other", ScopeDisplayName(base.Scope("other")))
}
