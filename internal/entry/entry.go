// Package entry decodes a single append-only log line into a typed,
// immutable RawEntry, and extracts the handful of session-level metadata
// fields a session carries for its entire lifetime.
package entry

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Shape is the structural classification assigned by the parser. It never
// depends on message content semantics, only on its shape.
type Shape string

const (
	ShapeUserPrompt         Shape = "USER_PROMPT"
	ShapeToolResult         Shape = "TOOL_RESULT"
	ShapeAssistantStreaming Shape = "ASSISTANT_STREAMING"
	ShapeAssistantToolUse   Shape = "ASSISTANT_TOOL_USE"
	ShapeTurnEnd            Shape = "TURN_END"
	ShapeOther              Shape = "OTHER"
)

// RawEntry is a single parsed log line. Immutable once constructed; owned
// by its Session and never shared by reference into event payloads (copy
// on publish).
type RawEntry struct {
	Role      Role      `json:"role"`
	Shape     Shape     `json:"shape"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text,omitempty"`
	ToolName  string    `json:"toolName,omitempty"`
	Target    string    `json:"target,omitempty"`
	ToolUseID string    `json:"toolUseId,omitempty"`

	// Session-level hints carried by the raw line this entry was decoded
	// from, when present. Not every line repeats these; callers build up
	// Metadata by taking the first non-empty value seen across entries.
	SessionIDHint string `json:"-"`
	CWDHint       string `json:"-"`
	GitBranchHint string `json:"-"`

	// ParentToolUseIDHint carries the raw line's parentToolUseId, when the
	// line belongs to a subagent transcript spawned by a Task tool use.
	// The registry uses it to fold the subagent's entries into the
	// session that issued the Task call instead of registering a second
	// session.
	ParentToolUseIDHint string `json:"-"`
}

// Metadata holds the session-level fields captured from the first entry
// that carries them. Zero value means "not yet seen".
type Metadata struct {
	SessionID      string
	CWD            string
	OriginalPrompt string
	StartedAt      time.Time
	GitBranch      string
}

// rawLine mirrors the on-disk JSON shape closely enough to decode every
// field this parser needs. Unknown fields are ignored by encoding/json,
// which is how unknown record shapes fall through to ShapeOther rather
// than becoming a decode error.
type rawLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	StopHook  bool            `json:"stopHook"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	CWD       string          `json:"cwd"`
	GitBranch string          `json:"gitBranch"`
	ParentToolUseID string    `json:"parentToolUseId"`
	Message   json.RawMessage `json:"message"`
}

type messageShape struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock covers both the plain-string and structured-array content
// shapes Claude-style transcripts use.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

// ParseLine decodes one log line into a RawEntry. Malformed JSON is
// reported as an error so the tailer can skip-but-advance past it; a
// structurally valid but unrecognized record decodes successfully as
// ShapeOther rather than erroring, per the "unknown variants become
// other" design note.
func ParseLine(line []byte) (*RawEntry, error) {
	line = trimTrailingNewline(line)
	if len(strings.TrimSpace(string(line))) == 0 {
		return nil, nil
	}

	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}

	ts := parseTimestamp(raw.Timestamp)

	var e *RawEntry
	switch raw.Type {
	case "system":
		if raw.Subtype == "turn_duration" || raw.Subtype == "stop_hook" || raw.StopHook {
			e = &RawEntry{Role: RoleSystem, Shape: ShapeTurnEnd, Timestamp: ts}
		} else {
			e = &RawEntry{Role: RoleSystem, Shape: ShapeOther, Timestamp: ts}
		}
	case "user", "assistant":
		var err error
		e, err = parseMessageLine(raw, ts)
		if err != nil {
			return nil, err
		}
	default:
		e = &RawEntry{Role: RoleSystem, Shape: ShapeOther, Timestamp: ts}
	}

	e.SessionIDHint = raw.SessionID
	e.CWDHint = raw.CWD
	e.GitBranchHint = raw.GitBranch
	e.ParentToolUseIDHint = raw.ParentToolUseID
	return e, nil
}

func parseMessageLine(raw rawLine, ts time.Time) (*RawEntry, error) {
	var msg messageShape
	if len(raw.Message) > 0 {
		if err := json.Unmarshal(raw.Message, &msg); err != nil {
			return nil, err
		}
	}

	role := Role(msg.Role)
	if role == "" {
		role = Role(raw.Type)
	}

	// Plain string content: a user prompt or a bare assistant text blob.
	var asString string
	if err := json.Unmarshal(msg.Content, &asString); err == nil {
		if role == RoleUser {
			return &RawEntry{Role: role, Shape: ShapeUserPrompt, Timestamp: ts, Text: asString}, nil
		}
		return &RawEntry{Role: role, Shape: ShapeAssistantStreaming, Timestamp: ts, Text: asString}, nil
	}

	var blocks []contentBlock
	if len(msg.Content) > 0 {
		if err := json.Unmarshal(msg.Content, &blocks); err != nil {
			return nil, err
		}
	}

	if role == RoleUser {
		for _, b := range blocks {
			if b.Type == "tool_result" {
				return &RawEntry{Role: role, Shape: ShapeToolResult, Timestamp: ts, ToolUseID: b.ToolUseID}, nil
			}
		}
		return &RawEntry{Role: role, Shape: ShapeUserPrompt, Timestamp: ts, Text: joinText(blocks)}, nil
	}

	for _, b := range blocks {
		if b.Type == "tool_use" {
			return &RawEntry{
				Role:      role,
				Shape:     ShapeAssistantToolUse,
				Timestamp: ts,
				ToolName:  b.Name,
				Target:    extractTarget(b),
				ToolUseID: b.ID,
			}, nil
		}
	}
	return &RawEntry{Role: role, Shape: ShapeAssistantStreaming, Timestamp: ts, Text: joinText(blocks)}, nil
}

func joinText(blocks []contentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// extractTarget normalizes the first path-like or command-like field of a
// tool-use input into a single display string: "command" for shell-style
// tools, then the first of "file_path"/"path"/"pattern"/"url".
func extractTarget(b contentBlock) string {
	if len(b.Input) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b.Input, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"command", "file_path", "path", "pattern", "url"} {
		if raw, ok := fields[key]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
		}
	}
	return ""
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func trimTrailingNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// ExtractMetadata fills in any Metadata fields not yet set from this raw
// line. Called once per line during incremental tailing; returns true if
// anything changed.
func ExtractMetadata(m *Metadata, line []byte) bool {
	var raw rawLine
	if err := json.Unmarshal(trimTrailingNewline(line), &raw); err != nil {
		return false
	}
	changed := false
	if m.SessionID == "" && raw.SessionID != "" {
		m.SessionID = raw.SessionID
		changed = true
	}
	if m.CWD == "" && raw.CWD != "" {
		m.CWD = raw.CWD
		changed = true
	}
	if m.GitBranch == "" && raw.GitBranch != "" {
		m.GitBranch = raw.GitBranch
		changed = true
	}
	if m.StartedAt.IsZero() {
		if ts := parseTimestamp(raw.Timestamp); !ts.IsZero() {
			m.StartedAt = ts
			changed = true
		}
	}
	if m.OriginalPrompt == "" && raw.Type == "user" {
		var msg messageShape
		if len(raw.Message) > 0 && json.Unmarshal(raw.Message, &msg) == nil {
			var s string
			if json.Unmarshal(msg.Content, &s) == nil && strings.TrimSpace(s) != "" {
				m.OriginalPrompt = strings.TrimSpace(s)
				changed = true
			}
		}
	}
	return changed
}

// IsMeaningfulPrompt reports whether e is a USER_PROMPT with non-empty
// trimmed text, per the "latest meaningful user prompt" rule.
func IsMeaningfulPrompt(e *RawEntry) bool {
	return e != nil && e.Shape == ShapeUserPrompt && strings.TrimSpace(e.Text) != ""
}
