// Package terminal implements the Terminal Manager: creates/attaches
// detached multiplexer sessions, spawns a PTY onto each, fans output to
// subscribers with replayable scrollback, and reconciles the launcher
// flow's placeholder session id with the agent's real one.
package terminal

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/procwatch"
	"github.com/google/uuid"
)

// AgentCommand is the argv used to start/resume the agent CLI inside a
// freshly created multiplexer session. A package-level var so tests can
// substitute a fake binary.
var AgentCommand = "claude"

// Config controls idle-reclamation timing (§4.6.5) and the launcher
// discovery window (§4.6.3 step 4).
type Config struct {
	IdleReclaimSweep time.Duration
	IdleReclaimAfter time.Duration
	LauncherWindow   time.Duration
}

func DefaultConfig() Config {
	return Config{
		IdleReclaimSweep: 5 * time.Minute,
		IdleReclaimAfter: 2 * time.Hour,
		LauncherWindow:   10 * time.Second,
	}
}

// Manager owns every ManagedPty and the three id maps naming it. All map
// mutation happens under mu, per the concurrency model's single-lock
// rule for Terminal Manager maps.
type Manager struct {
	cfg Config

	mu          sync.Mutex
	byPtyID     map[string]*ManagedPty
	bySessionID map[string]string // sessionId -> ptyId
	byLauncher  map[string]string // launcherId -> ptyId

	// launcherCreated records launcherIds that were actually created via
	// CreateLauncher, so the WebSocket endpoint can reject a handshake
	// for a launcherId that was never issued (§4.7).
	launcherCreated map[string]bool
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:             cfg,
		byPtyID:         make(map[string]*ManagedPty),
		bySessionID:     make(map[string]string),
		byLauncher:      make(map[string]string),
		launcherCreated: make(map[string]bool),
	}
}

func sessionMultiplexerName(sessionID string) string {
	return "claude-" + shortID(sessionID)
}

func launcherMultiplexerName(launcherID string) string {
	return "launcher-" + shortID(launcherID)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// GetOrCreate implements §4.6.2. If a ManagedPty for sessionId already
// exists in-process it is returned as-is (step 1); otherwise a
// multiplexer session is attached-or-created and a fresh PTY spawned
// onto it.
func (m *Manager) GetOrCreate(sessionID, cwd, hostname string, forceNew bool) (*ManagedPty, error) {
	m.mu.Lock()
	if ptyID, ok := m.bySessionID[sessionID]; ok {
		if existing, ok := m.byPtyID[ptyID]; ok {
			m.mu.Unlock()
			return existing, nil
		}
	}
	m.mu.Unlock()

	if !Available() {
		return nil, fmt.Errorf("multiplexer binary %q not found on PATH", MultiplexerBinary)
	}

	name := sessionMultiplexerName(sessionID)
	if !SessionExists(name) {
		cmd := []string{AgentCommand}
		if !forceNew {
			cmd = append(cmd, "--resume", sessionID)
		}
		if err := CreateDetachedSession(name, cwd, cmd); err != nil {
			return nil, fmt.Errorf("create multiplexer session: %w", err)
		}
	}

	warning := m.detectOutsideInstance(name, cwd)

	mp := newManagedPty(uuid.NewString(), name, cwd, hostname)
	mp.SessionID = sessionID
	mp.Warning = warning
	if err := mp.spawn(); err != nil {
		return nil, fmt.Errorf("spawn pty: %w", err)
	}

	m.mu.Lock()
	m.byPtyID[mp.PtyID] = mp
	m.bySessionID[sessionID] = mp.PtyID
	m.mu.Unlock()

	return mp, nil
}

// detectOutsideInstance implements §4.6.2 step 4: look for an agent CLI
// process running in cwd that isn't the multiplexer pane's own process.
func (m *Manager) detectOutsideInstance(multiplexerName, cwd string) string {
	var excludePID int32
	if panes, err := ListPanes(); err == nil {
		for _, p := range panes {
			if len(p.Target) >= len(multiplexerName) && p.Target[:len(multiplexerName)] == multiplexerName {
				excludePID = p.PanePID
				break
			}
		}
	}
	procs, err := procwatch.FindOutsideMultiplexer(cwd, excludePID)
	if err != nil || len(procs) == 0 {
		return ""
	}
	return "agent CLI is running outside the terminal in this directory; close it to keep sessions in sync"
}

// Get returns the ManagedPty for ptyID, if any.
func (m *Manager) Get(ptyID string) (*ManagedPty, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.byPtyID[ptyID]
	return mp, ok
}

// GetBySessionID resolves a session's ManagedPty, if one is attached.
func (m *Manager) GetBySessionID(sessionID string) (*ManagedPty, bool) {
	m.mu.Lock()
	ptyID, ok := m.bySessionID[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return m.Get(ptyID)
}

// List returns every currently managed PTY, for GET /terminals.
func (m *Manager) List() []*ManagedPty {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ManagedPty, 0, len(m.byPtyID))
	for _, mp := range m.byPtyID {
		out = append(out, mp)
	}
	return out
}

// Kill terminates only the PTY process and removes it from every map;
// the multiplexer session itself is left running (§4.6.5, §4.6.7).
func (m *Manager) Kill(ptyID string) error {
	m.mu.Lock()
	mp, ok := m.byPtyID[ptyID]
	if ok {
		delete(m.byPtyID, ptyID)
		if mp.SessionID != "" {
			delete(m.bySessionID, mp.SessionID)
		}
		if mp.LauncherID != "" {
			delete(m.byLauncher, mp.LauncherID)
		}
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such pty %q", ptyID)
	}
	return mp.Kill()
}

// RenameSessionID swaps a ManagedPty's sessionId (the launcher
// reconciliation step) and updates the sessionId->ptyId map.
func (m *Manager) RenameSessionID(ptyID, newSessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.byPtyID[ptyID]
	if !ok {
		return
	}
	if mp.SessionID != "" {
		delete(m.bySessionID, mp.SessionID)
	}
	mp.SessionID = newSessionID
	m.bySessionID[newSessionID] = ptyID
}

// RunIdleSweeper kills any ManagedPty whose LastActivityAt is older than
// cfg.IdleReclaimAfter, once per cfg.IdleReclaimSweep tick, until the
// caller closes done.
func (m *Manager) RunIdleSweeper(done <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.IdleReclaimSweep)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	cutoff := time.Now().Add(-m.cfg.IdleReclaimAfter)
	for _, mp := range m.List() {
		if mp.LastActivityAt().After(cutoff) {
			continue
		}
		if pct := maxChildCPU(mp); pct > 1.0 {
			log.Printf("[terminal] pty %s idle past threshold but still using %.1f%% CPU, killing anyway per sweep policy", mp.PtyID, pct)
		}
		if err := m.Kill(mp.PtyID); err != nil {
			log.Printf("[terminal] idle reclaim kill failed for %s: %v", mp.PtyID, err)
		} else {
			log.Printf("[terminal] idle reclaim killed pty %s (session %s)", mp.PtyID, mp.SessionID)
		}
	}
}

// maxChildCPU samples CPU usage for whatever is actually running inside
// the pane, not the attach client. mp.cmd.Process is the local `tmux
// attach-session` client PID — it has no process-tree relationship to
// the pane's contents, which run under the tmux server. Resolve the
// pane's own PID via PaneTarget and sample its descendant tree instead.
func maxChildCPU(mp *ManagedPty) float64 {
	if mp.PaneTarget == "" {
		return 0
	}
	panePID, ok := PanePIDForTarget(mp.PaneTarget)
	if !ok {
		return 0
	}
	return procwatch.CPUPercentTree(panePID)
}

// KillAll terminates every managed PTY (daemon shutdown, §5). The
// multiplexer sessions are left running.
func (m *Manager) KillAll() {
	for _, mp := range m.List() {
		_ = m.Kill(mp.PtyID)
	}
}
