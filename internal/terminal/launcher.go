package terminal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/projectpath"
	"github.com/google/uuid"
)

// pickerScriptTemplate invokes a terminal file picker and writes its
// selection into the sentinel file, per §6's persisted-state table.
const pickerScriptTemplate = `#!/bin/sh
SELECTION=$(find "$HOME" -maxdepth 4 -type d 2>/dev/null | fzf --prompt="select project dir> ") || SELECTION=""
printf '%%s' "$SELECTION" > %s
`

// CreateLauncher implements §4.6.3 step 1: synthesize a launcherId, write
// the picker script and its sentinel path, create a detached multiplexer
// session running the script, and attach a PTY to it.
func (m *Manager) CreateLauncher(hostname string) (*ManagedPty, error) {
	if !Available() {
		return nil, fmt.Errorf("multiplexer binary %q not found on PATH", MultiplexerBinary)
	}

	launcherID := uuid.NewString()
	sentinelPath := fmt.Sprintf("/tmp/launcher_%s", launcherID)
	scriptPath := fmt.Sprintf("/tmp/launcher_script_%s.sh", launcherID)

	script := fmt.Sprintf(pickerScriptTemplate, sentinelPath)
	if err := os.WriteFile(scriptPath, []byte(script), 0o700); err != nil {
		return nil, fmt.Errorf("write launcher script: %w", err)
	}

	name := launcherMultiplexerName(launcherID)
	if err := CreateDetachedSession(name, os.Getenv("HOME"), []string{"/bin/sh", scriptPath}); err != nil {
		return nil, fmt.Errorf("create launcher multiplexer session: %w", err)
	}

	mp := newManagedPty(uuid.NewString(), name, "", hostname)
	mp.LauncherID = launcherID
	if err := mp.spawn(); err != nil {
		return nil, fmt.Errorf("spawn launcher pty: %w", err)
	}

	m.mu.Lock()
	m.byPtyID[mp.PtyID] = mp
	m.byLauncher[launcherID] = mp.PtyID
	m.launcherCreated[launcherID] = true
	m.mu.Unlock()

	go m.awaitLauncherSelection(mp, launcherID, sentinelPath, scriptPath)

	return mp, nil
}

// HasLauncher reports whether launcherID was actually issued by
// CreateLauncher, for the WebSocket handshake's rejection check (§4.7).
func (m *Manager) HasLauncher(launcherID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launcherCreated[launcherID]
}

// awaitLauncherSelection implements §4.6.3 steps 2-5. It blocks on the
// launcher PTY's exit, reads the directory the user picked, opens a real
// agent session in that directory, and reconciles the placeholder id
// with whatever real sessionId the agent CLI assigns once it starts
// writing its log.
func (m *Manager) awaitLauncherSelection(mp *ManagedPty, launcherID, sentinelPath, scriptPath string) {
	defer os.Remove(scriptPath)

	for {
		if _, _, exited := mp.ExitInfo(); exited {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	raw, err := os.ReadFile(sentinelPath)
	defer os.Remove(sentinelPath)
	if err != nil || len(strings.TrimSpace(string(raw))) == 0 {
		return // step 2: absent or unreadable sentinel, propagate exit as-is
	}

	dir := strings.TrimSpace(string(raw))
	if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	placeholderID := "launcher-pending-" + launcherID[:8]
	agentPty, err := m.GetOrCreate(placeholderID, dir, mp.Hostname, true)
	if err != nil {
		return
	}
	agentPty.LauncherID = launcherID

	sessionID, ok := m.pollForNewSession(dir, m.cfg.LauncherWindow)
	if !ok {
		mp.BroadcastControl(Outbound{
			Type:      OutLauncherComplete,
			PtyID:     agentPty.PtyID,
			SessionID: placeholderID,
			CWD:       dir,
		})
		return
	}

	realName := sessionMultiplexerName(sessionID)
	_ = RenameSession(agentPty.MultiplexerName, realName)
	agentPty.MultiplexerName = realName
	m.RenameSessionID(agentPty.PtyID, sessionID)

	mp.BroadcastControl(Outbound{
		Type:      OutLauncherComplete,
		PtyID:     agentPty.PtyID,
		SessionID: sessionID,
		CWD:       dir,
	})
}

// pollForNewSession implements §4.6.3 step 4: watch the agent CLI's
// per-project log directory for a new session-log stem to appear,
// checking once a second for up to window.
func (m *Manager) pollForNewSession(cwd string, window time.Duration) (string, bool) {
	dir := projectLogDir(cwd)
	baseline := logStems(dir)

	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		time.Sleep(time.Second)
		current := logStems(dir)
		for stem := range current {
			if !baseline[stem] {
				return stem, true
			}
		}
	}
	return "", false
}

func projectLogDir(cwd string) string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "projects", projectpath.Encode(cwd))
}

func logStems(dir string) map[string]bool {
	stems := make(map[string]bool)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return stems
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		stems[strings.TrimSuffix(name, ".jsonl")] = true
	}
	return stems
}
