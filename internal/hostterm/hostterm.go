// Package hostterm isolates the AppleScript/pgrep/lsof glue needed to
// focus or open a host terminal application behind one interface,
// selected by the TERMINAL config value (§6). Grounded on
// myrison-agent-deck's build-tag split for OS-specific desktop glue
// (cmd/agent-deck-desktop/clipboard_darwin.go).
package hostterm

import (
	"context"
	"errors"
)

// Capability focuses or opens a terminal window hosting a session.
type Capability interface {
	// Focus brings an existing window matching searchTerm to the
	// foreground. Returns false if no matching window was found.
	Focus(ctx context.Context, searchTerm string) (bool, error)
	// Open opens a new terminal window/tab in cwd and optionally runs
	// the agent CLI resuming sessionId.
	Open(ctx context.Context, cwd, sessionID string) error
}

// New selects the Capability for the configured terminal kind
// ("iterm2" or "none"). Unknown values fall back to disabled.
func New(kind string) Capability {
	switch kind {
	case "iterm2":
		return newITerm2()
	default:
		return disabled{}
	}
}

type disabled struct{}

func (disabled) Focus(context.Context, string) (bool, error) { return false, nil }
func (disabled) Open(context.Context, string, string) error {
	return errors.New("host terminal unavailable")
}
