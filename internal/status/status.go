// Package status implements the Status Deriver: a pure function from a
// session's entry list and the current time to a status tuple. It holds
// no state of its own and reads no clock — every timing decision is
// driven by the now parameter so tests can exercise it deterministically.
package status

import (
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/entry"
)

type Status string

const (
	Working Status = "working"
	Waiting Status = "waiting"
	Idle    Status = "idle"
)

// Config holds the tunable thresholds named in the derivation cascade.
// All have defaults matching the specification; each is independently
// overridable via the config overlay.
type Config struct {
	PendingThreshold  time.Duration
	FastIdleThreshold time.Duration
	IdleTimeout       time.Duration
}

// DefaultConfig returns the cascade's documented defaults.
func DefaultConfig() Config {
	return Config{
		PendingThreshold:  5 * time.Second,
		FastIdleThreshold: 500 * time.Millisecond,
		IdleTimeout:       20 * time.Minute,
	}
}

// PendingTool names the tool-use entry a session is waiting on approval
// for, when HasPendingToolUse is true.
type PendingTool struct {
	Name   string
	Target string
}

// Tuple is the derived status of a session at a point in time.
type Tuple struct {
	Status            Status
	HasPendingToolUse bool
	PendingTool       *PendingTool
	MessageCount      int
	LastActivityAt    time.Time
}

// Derive computes the status tuple for entries as observed at now. It is
// pure: the same (entries, now) always yields the same Tuple, regardless
// of how many times it has been called before.
func Derive(entries []*entry.RawEntry, now time.Time, cfg Config) Tuple {
	if cfg.PendingThreshold == 0 && cfg.FastIdleThreshold == 0 && cfg.IdleTimeout == 0 {
		cfg = DefaultConfig()
	}

	t := Tuple{Status: Idle}
	if len(entries) == 0 {
		t.LastActivityAt = now
		return t
	}

	last := entries[len(entries)-1]
	t.LastActivityAt = lastTimestamp(entries, now)
	t.MessageCount = countMessages(entries)

	pending, pendingEntry := findPending(entries)
	t.HasPendingToolUse = pending
	if pending {
		t.PendingTool = &PendingTool{Name: pendingEntry.ToolName, Target: pendingEntry.Target}
	}

	delta := now.Sub(t.LastActivityAt)

	switch {
	case pending && delta >= cfg.PendingThreshold:
		t.Status = Waiting
		t.HasPendingToolUse = true
	case last.Shape == entry.ShapeTurnEnd:
		t.Status = Waiting
	case last.Shape == entry.ShapeAssistantStreaming && delta >= cfg.FastIdleThreshold:
		t.Status = Waiting
	case isRecentActivityShape(last.Shape) && withinRecentWindow(last.Shape, delta, cfg):
		t.Status = Working
	case delta >= cfg.IdleTimeout:
		t.Status = Idle
	default:
		t.Status = Working
	}

	return t
}

// findPending reports whether there is an ASSISTANT_TOOL_USE entry after
// both the last TOOL_RESULT and the last TURN_END, and returns it.
func findPending(entries []*entry.RawEntry) (bool, *entry.RawEntry) {
	lastToolResult := -1
	lastTurnEnd := -1
	lastToolUse := -1
	for i, e := range entries {
		switch e.Shape {
		case entry.ShapeToolResult:
			lastToolResult = i
		case entry.ShapeTurnEnd:
			lastTurnEnd = i
		case entry.ShapeAssistantToolUse:
			lastToolUse = i
		}
	}
	if lastToolUse == -1 {
		return false, nil
	}
	if lastToolUse > lastToolResult && lastToolUse > lastTurnEnd {
		return true, entries[lastToolUse]
	}
	return false, nil
}

func lastTimestamp(entries []*entry.RawEntry, now time.Time) time.Time {
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].Timestamp.IsZero() {
			return entries[i].Timestamp
		}
	}
	return now
}

func countMessages(entries []*entry.RawEntry) int {
	n := 0
	for _, e := range entries {
		if e.Role == entry.RoleUser || e.Role == entry.RoleAssistant {
			n++
		}
	}
	return n
}

func isRecentActivityShape(s entry.Shape) bool {
	switch s {
	case entry.ShapeUserPrompt, entry.ShapeToolResult, entry.ShapeAssistantToolUse, entry.ShapeAssistantStreaming:
		return true
	default:
		return false
	}
}

// withinRecentWindow applies the per-shape recency window: 5s for
// tool-use (the pending threshold not yet elapsed), 500ms for streaming
// text, and the idle timeout for USER_PROMPT/TOOL_RESULT (past it, the
// cascade's idle rule applies).
func withinRecentWindow(s entry.Shape, delta time.Duration, cfg Config) bool {
	switch s {
	case entry.ShapeAssistantStreaming:
		return delta < cfg.FastIdleThreshold
	case entry.ShapeAssistantToolUse:
		return delta < cfg.PendingThreshold
	default:
		return delta < cfg.IdleTimeout
	}
}
