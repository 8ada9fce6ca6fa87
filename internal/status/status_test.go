package status

import (
	"testing"
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/entry"
	"github.com/stretchr/testify/require"
)

func at(s int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, s, 0, time.UTC)
}

func TestDeriveEmptyIsIdle(t *testing.T) {
	tup := Derive(nil, at(0), DefaultConfig())
	require.Equal(t, Idle, tup.Status)
}

func TestDeriveUserPromptIsWorking(t *testing.T) {
	entries := []*entry.RawEntry{{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: at(0), Text: "build X"}}
	tup := Derive(entries, at(0), DefaultConfig())
	require.Equal(t, Working, tup.Status)
	require.Equal(t, 1, tup.MessageCount)
}

func TestDerivePendingToolUseBeforeThresholdIsWorking(t *testing.T) {
	entries := []*entry.RawEntry{
		{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: at(0)},
		{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantToolUse, Timestamp: at(1), ToolName: "Bash", Target: "ls"},
	}
	tup := Derive(entries, at(3), DefaultConfig())
	require.Equal(t, Working, tup.Status)
}

func TestDerivePendingToolUseAfterThresholdIsWaitingWithApproval(t *testing.T) {
	entries := []*entry.RawEntry{
		{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: at(0)},
		{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantToolUse, Timestamp: at(1), ToolName: "Bash", Target: "ls"},
	}
	tup := Derive(entries, at(6), DefaultConfig())
	require.Equal(t, Waiting, tup.Status)
	require.True(t, tup.HasPendingToolUse)
	require.NotNil(t, tup.PendingTool)
	require.Equal(t, "Bash", tup.PendingTool.Name)
	require.Equal(t, "ls", tup.PendingTool.Target)
}

func TestDeriveToolResultThenTurnEnd(t *testing.T) {
	entries := []*entry.RawEntry{
		{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: at(0)},
		{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantToolUse, Timestamp: at(1), ToolName: "Bash"},
		{Role: entry.RoleUser, Shape: entry.ShapeToolResult, Timestamp: at(6)},
	}
	tup := Derive(entries, at(6), DefaultConfig())
	require.Equal(t, Working, tup.Status)
	require.False(t, tup.HasPendingToolUse)

	entries = append(entries, &entry.RawEntry{Role: entry.RoleSystem, Shape: entry.ShapeTurnEnd, Timestamp: at(7)})
	tup = Derive(entries, at(7), DefaultConfig())
	require.Equal(t, Waiting, tup.Status)
}

func TestDeriveAssistantStreamingFastIdle(t *testing.T) {
	entries := []*entry.RawEntry{
		{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantStreaming, Timestamp: at(0), Text: "hi"},
	}
	tup := Derive(entries, at(0), DefaultConfig())
	require.Equal(t, Working, tup.Status)

	tup = Derive(entries, entries[0].Timestamp.Add(600*time.Millisecond), DefaultConfig())
	require.Equal(t, Waiting, tup.Status)
}

func TestDeriveIdleTimeout(t *testing.T) {
	entries := []*entry.RawEntry{
		{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: at(0)},
	}
	now := entries[0].Timestamp.Add(21 * time.Minute)
	tup := Derive(entries, now, DefaultConfig())
	require.Equal(t, Idle, tup.Status)
}

func TestDerivePurity(t *testing.T) {
	entries := []*entry.RawEntry{
		{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: at(0)},
	}
	cfg := DefaultConfig()
	a := Derive(entries, at(10), cfg)
	b := Derive(entries, at(10), cfg)
	require.Equal(t, a, b)
}
