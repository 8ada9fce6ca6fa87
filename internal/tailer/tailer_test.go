package tailer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadDeltaPartialTrailingLineNotConsumed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"user","message":{"role":"user","content":"hi"}}`+"\n"+`{"type":"user","message":{"role":"user","content":"partial"`), 0o644))

	entries, offset, err := ReadDelta(path, 0, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, _ := os.Stat(path)
	require.Less(t, offset, info.Size())
}

func TestReadDeltaSkipsMalformedButAdvances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	content := "{not json}\n" + `{"type":"user","message":{"role":"user","content":"hi"}}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var errs []error
	entries, offset, err := ReadDelta(path, 0, func(e error) { errs = append(errs, e) })
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, errs, 1)
	require.EqualValues(t, len(content), offset)
}

func TestReadDeltaResumesFromOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	line1 := `{"type":"user","message":{"role":"user","content":"one"}}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(line1), 0o644))

	_, offset, err := ReadDelta(path, 0, nil)
	require.NoError(t, err)

	line2 := `{"type":"user","message":{"role":"user","content":"two"}}` + "\n"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line2)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, newOffset, err := ReadDelta(path, offset, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Greater(t, newOffset, offset)
}

func TestTailerEmitsAddOnInitialScan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"user","message":{"role":"user","content":"hi"}}`+"\n"), 0o644))

	cfg := DefaultConfig()
	cfg.Debounce = 10 * time.Millisecond
	tl, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tl.Run(ctx)

	require.NoError(t, tl.Watch(dir))

	select {
	case b := <-tl.Out():
		require.Equal(t, SignalAdd, b.Signal)
		require.Len(t, b.Entries, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for add batch")
	}
}

func TestTailerStillMatchesSubSessionFiles(t *testing.T) {
	cfg := DefaultConfig()
	tl, err := New(cfg)
	require.NoError(t, err)
	require.True(t, tl.matches("/p/subagent-xyz.jsonl"))
	require.True(t, tl.matches("/p/xyz.jsonl"))
	require.False(t, tl.matches("/p/xyz.txt"))
}

func TestIsSubSession(t *testing.T) {
	cfg := DefaultConfig()
	tl, err := New(cfg)
	require.NoError(t, err)
	require.True(t, tl.IsSubSession("/p/subagent-xyz.jsonl"))
	require.False(t, tl.IsSubSession("/p/xyz.jsonl"))
}
