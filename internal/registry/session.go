// Package registry implements the Session Registry: an in-memory mapping
// from session identifier to derived session record, applying the
// supersession rule and emitting created/updated/deleted events.
package registry

import (
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/entry"
	"github.com/claude-code-ui/terminaldaemon/internal/status"
)

// PendingTool mirrors status.PendingTool for the public Session shape.
type PendingTool = status.PendingTool

// Notification is attached to the specific update record whose status
// transition was working -> waiting.
type Notification struct {
	Type      string    `json:"type"` // "waiting_for_input" | "needs_approval"
	Timestamp time.Time `json:"timestamp"`
}

// PRInfo is populated by the thin PR-polling collaborator; nil until
// available.
type PRInfo struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	State  string `json:"state"`
}

// Session is the Session Registry's unit of record. Exclusively owned by
// the Registry; callers receive copies.
type Session struct {
	ID                string             `json:"sessionId"`
	Hostname          string             `json:"hostname"`
	CWD               string             `json:"cwd"`
	GitBranch         string             `json:"gitBranch,omitempty"`
	GitRepoID         string             `json:"gitRepoId,omitempty"`
	OriginalPrompt    string             `json:"originalPrompt"`
	StartedAt         time.Time          `json:"startedAt"`
	LastActivityAt    time.Time          `json:"lastActivityAt"`
	Status            status.Status      `json:"status"`
	MessageCount      int                `json:"messageCount"`
	HasPendingToolUse bool               `json:"hasPendingToolUse"`
	PendingTool       *PendingTool       `json:"pendingTool,omitempty"`
	Entries           []*entry.RawEntry  `json:"entries"`
	BytePosition      int64              `json:"bytePosition"`
	Goal              string             `json:"goal"`
	Summary           string             `json:"summary,omitempty"`
	PR                *PRInfo            `json:"pr,omitempty"`
	Notification      *Notification      `json:"notification,omitempty"`
	LogPath           string             `json:"-"`
}

// IsTerminal reports whether the session is in a state that will never
// spontaneously change without new input (used by the supersession
// check).
func (s *Session) IsTerminal() bool {
	return s.Status == status.Idle
}

// Clone returns a deep-enough copy for safe external sharing: the
// Entries slice and pointer fields are copied so the caller cannot
// mutate registry-owned state.
func (s *Session) Clone() *Session {
	c := *s
	c.Entries = make([]*entry.RawEntry, len(s.Entries))
	for i, e := range s.Entries {
		ec := *e
		c.Entries[i] = &ec
	}
	if s.PendingTool != nil {
		pt := *s.PendingTool
		c.PendingTool = &pt
	}
	if s.PR != nil {
		pr := *s.PR
		c.PR = &pr
	}
	if s.Notification != nil {
		n := *s.Notification
		c.Notification = &n
	}
	return &c
}

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is what the Registry emits toward the State Publisher.
type Event struct {
	Type    EventType
	Session *Session // full post-image for created/updated; for deleted, only ID/Hostname/CWD are guaranteed
}
