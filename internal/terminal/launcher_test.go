package terminal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/projectpath"
	"github.com/stretchr/testify/require"
)

func writeProjectLog(t *testing.T, home, cwd, stem string) {
	t.Helper()
	dir := filepath.Join(home, ".claude", "projects", projectpath.Encode(cwd))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, stem+".jsonl"), []byte("{}\n"), 0o644))
}

func TestPollForNewSessionDetectsNewStem(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cwd := "/work/proj"
	writeProjectLog(t, home, cwd, "existing-session")

	m := NewManager(DefaultConfig())

	go func() {
		time.Sleep(100 * time.Millisecond)
		writeProjectLog(t, home, cwd, "new-session-id")
	}()

	stem, ok := m.pollForNewSession(cwd, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, "new-session-id", stem)
}

func TestPollForNewSessionTimesOutWhenNoNewStem(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cwd := "/work/proj"
	writeProjectLog(t, home, cwd, "existing-session")

	m := NewManager(DefaultConfig())

	_, ok := m.pollForNewSession(cwd, 300*time.Millisecond)
	require.False(t, ok)
}

func TestPollForNewSessionIgnoresNonJSONLFiles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cwd := "/work/proj"
	dir := filepath.Join(home, ".claude", "projects", projectpath.Encode(cwd))
	require.NoError(t, os.MkdirAll(dir, 0o755))

	m := NewManager(DefaultConfig())

	go func() {
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	}()

	_, ok := m.pollForNewSession(cwd, 400*time.Millisecond)
	require.False(t, ok)
}

func TestLogStemsEmptyForMissingDir(t *testing.T) {
	require.Empty(t, logStems(filepath.Join(t.TempDir(), "missing")))
}

func TestCreateLauncherFailsWithoutMultiplexerBinary(t *testing.T) {
	orig := MultiplexerBinary
	MultiplexerBinary = "nonexistent-multiplexer-binary-xyz"
	defer func() { MultiplexerBinary = orig }()

	m := NewManager(DefaultConfig())
	_, err := m.CreateLauncher("local")
	require.Error(t, err)
}

func TestHasLauncherTrueOnlyForIssuedID(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.mu.Lock()
	m.launcherCreated["issued-id"] = true
	m.mu.Unlock()

	require.True(t, m.HasLauncher("issued-id"))
	require.False(t, m.HasLauncher("never-issued"))
}
