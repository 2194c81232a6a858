// Package chat parses inbound operator commands and applies them to the
// session state and the poll scheduler.
package chat

import (
	"strings"

	"github.com/aaronromeo/mailherald/pkg/base"
)

// CommandKind enumerates the operator commands.
type CommandKind string

const (
	CmdRegister   CommandKind = "register"
	CmdDeregister CommandKind = "deregister"
	CmdIgnore     CommandKind = "ignore"
	CmdPoll       CommandKind = "poll"
	CmdReset      CommandKind = "reset"
	CmdPurge      CommandKind = "purge"
)

// Command is one parsed operator command.
type Command struct {
	Kind  CommandKind
	Scope base.Scope
	// Arg carries the ignore pattern or the source name for a poll.
	Arg string
}

// scopeCommands maps the command word to its notification scope.
var scopeCommands = map[string]base.Scope{
	"cancelled": base.ScopeCancellation,
	"modmail":   base.ScopeModmail,
}

// ScopeDisplayName returns the operator-facing name of a scope.
func ScopeDisplayName(scope base.Scope) string {
	switch scope {
	case base.ScopeCancellation:
		return "Cancelled Sessions"
	case base.ScopeModmail:
		return "Mod Mail"
	}
	return string(scope)
}

// ParseCommand parses a "!"-prefixed message into a Command. The second
// return value is false for anything that is not a recognized command.
//
//	!cancelled start|stop   register/deregister this channel for cancellations
//	!modmail start|stop     register/deregister this channel for notices
//	!ignore <pattern>       mute a sender substring for this guild
//	!poll [source]          poll one source, or all, immediately
//	!reset                  reset cursors to the default lookback
//	!purge                  delete this bot's messages in this channel
func ParseCommand(content string) (Command, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "!") {
		return Command{}, false
	}

	fields := strings.Fields(content[1:])
	if len(fields) == 0 {
		return Command{}, false
	}

	word := strings.ToLower(fields[0])
	if scope, ok := scopeCommands[word]; ok {
		if len(fields) != 2 {
			return Command{}, false
		}
		switch strings.ToLower(fields[1]) {
		case "start":
			return Command{Kind: CmdRegister, Scope: scope}, true
		case "stop":
			return Command{Kind: CmdDeregister, Scope: scope}, true
		}
		return Command{}, false
	}

	switch word {
	case "ignore":
		if len(fields) != 2 {
			return Command{}, false
		}
		return Command{Kind: CmdIgnore, Arg: fields[1]}, true
	case "poll":
		cmd := Command{Kind: CmdPoll}
		if len(fields) > 1 {
			cmd.Arg = fields[1]
		}
		return cmd, true
	case "reset":
		return Command{Kind: CmdReset}, true
	case "purge":
		return Command{Kind: CmdPurge}, true
	}
	return Command{}, false
}
