package registry

import (
	"testing"
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/entry"
	"github.com/claude-code-ui/terminaldaemon/internal/status"
	"github.com/claude-code-ui/terminaldaemon/internal/tailer"
	"github.com/stretchr/testify/require"
)

func lineUserPrompt(sessionID, cwd, text string, ts time.Time) []byte {
	return []byte(`{"type":"user","sessionId":"` + sessionID + `","cwd":"` + cwd + `","timestamp":"` + ts.Format(time.RFC3339Nano) + `","message":{"role":"user","content":"` + text + `"}}`)
}

func lineTaskToolUse(toolUseID string) []byte {
	return []byte(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"` + toolUseID + `","name":"Task","input":{}}]}}`)
}

func lineSubagentPrompt(parentToolUseID, text string) []byte {
	return []byte(`{"type":"user","parentToolUseId":"` + parentToolUseID + `","message":{"role":"user","content":"` + text + `"}}`)
}

func decodeLines(t *testing.T, lines ...[]byte) []*entry.RawEntry {
	t.Helper()
	var out []*entry.RawEntry
	for _, l := range lines {
		e, err := entry.ParseLine(l)
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestRegistryCreatedOnCompleteMetadata(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return time.Unix(0, 0) }
	reg := New(cfg)

	entries := decodeLines(t, lineUserPrompt("s1", "/w", "build X", time.Unix(0, 0)))
	reg.HandleBatch("local", tailer.Batch{Path: "/logs/s1.jsonl", Signal: tailer.SignalAdd, Entries: entries, NewOffset: 100})

	select {
	case ev := <-reg.Events():
		require.Equal(t, EventCreated, ev.Type)
		require.Equal(t, "s1", ev.Session.ID)
		require.Equal(t, "/w", ev.Session.CWD)
		require.Equal(t, status.Working, ev.Session.Status)
		require.Equal(t, 1, ev.Session.MessageCount)
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
}

func TestRegistrySupersessionEvictsIdleSibling(t *testing.T) {
	cfg := DefaultConfig()
	fakeNow := time.Unix(0, 0)
	cfg.Now = func() time.Time { return fakeNow }
	cfg.Status.IdleTimeout = time.Minute
	reg := New(cfg)

	base := time.Unix(0, 0)
	e1 := decodeLines(t, lineUserPrompt("s1", "/w", "first", base))
	reg.HandleBatch("local", tailer.Batch{Path: "/logs/s1.jsonl", Signal: tailer.SignalAdd, Entries: e1, NewOffset: 10})
	<-reg.Events() // created s1

	// Advance clock past idle timeout so s1 becomes idle on its own.
	fakeNow = base.Add(2 * time.Minute)

	e2 := decodeLines(t, lineUserPrompt("s2", "/w", "second", fakeNow))
	reg.HandleBatch("local", tailer.Batch{Path: "/logs/s2.jsonl", Signal: tailer.SignalAdd, Entries: e2, NewOffset: 10})

	var createdS2, deletedS1 bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-reg.Events():
			if ev.Type == EventCreated && ev.Session.ID == "s2" {
				createdS2 = true
			}
			if ev.Type == EventDeleted && ev.Session.ID == "s1" {
				deletedS1 = true
			}
		case <-time.After(time.Second):
			t.Fatal("missing expected event")
		}
	}
	require.True(t, createdS2)
	require.True(t, deletedS1)

	_, ok := reg.Get("s1")
	require.False(t, ok)
}

func TestRegistryFoldsSubagentTranscriptIntoParent(t *testing.T) {
	reg := New(DefaultConfig())

	e1 := decodeLines(t, lineUserPrompt("s1", "/w", "build X", time.Unix(0, 0)))
	reg.HandleBatch("local", tailer.Batch{Path: "/logs/s1.jsonl", Signal: tailer.SignalAdd, Entries: e1, NewOffset: 10})
	<-reg.Events() // created s1

	e2 := decodeLines(t, lineTaskToolUse("toolu_1"))
	reg.HandleBatch("local", tailer.Batch{Path: "/logs/s1.jsonl", Signal: tailer.SignalChange, Entries: e2, NewOffset: 20})
	<-reg.Events() // updated s1 with the Task tool use

	subEntries := decodeLines(t, lineSubagentPrompt("toolu_1", "doing the subtask"))
	reg.HandleBatch("local", tailer.Batch{Path: "/logs/subagent-toolu_1.jsonl", Signal: tailer.SignalAdd, Entries: subEntries, NewOffset: 5})

	select {
	case ev := <-reg.Events():
		require.Equal(t, EventUpdated, ev.Type)
		require.Equal(t, "s1", ev.Session.ID)
		require.Len(t, ev.Session.Entries, 3)
	case <-time.After(time.Second):
		t.Fatal("no fold-in update emitted")
	}

	_, ok := reg.Get("subagent-toolu_1")
	require.False(t, ok, "subagent transcript must not register as its own session")
}

func TestRegistryUnlinkEmitsDeleted(t *testing.T) {
	reg := New(DefaultConfig())
	e1 := decodeLines(t, lineUserPrompt("s1", "/w", "first", time.Unix(0, 0)))
	reg.HandleBatch("local", tailer.Batch{Path: "/logs/s1.jsonl", Signal: tailer.SignalAdd, Entries: e1, NewOffset: 10})
	<-reg.Events()

	reg.HandleBatch("local", tailer.Batch{Path: "/logs/s1.jsonl", Signal: tailer.SignalUnlink})
	select {
	case ev := <-reg.Events():
		require.Equal(t, EventDeleted, ev.Type)
		require.Equal(t, "s1", ev.Session.ID)
	case <-time.After(time.Second):
		t.Fatal("no deleted event")
	}
}
