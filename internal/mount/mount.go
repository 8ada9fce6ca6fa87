// Package mount orchestrates SSHFS mounts of remote machines' project
// directories under ~/.claude-code-ui/mounts/<name>/, reading the
// machine roster from ~/.claude-code-ui/machines.json (§6). Simplified
// from myrison-agent-deck's Connection/Pool shape (internal/ssh) to the
// mount-only contract spec.md needs: PTYs always stay local, so no
// remote tmux attach is implemented here.
package mount

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

const timeout = 5 * time.Second

// Status is a machine's live mount state, per spec.md §3's MachineInfo.
type Status string

const (
	StatusMounting  Status = "mounting"
	StatusMounted   Status = "mounted"
	StatusUnmounted Status = "unmounted"
	StatusError     Status = "error"
)

// RosterEntry is one entry of machines.json: the static connection
// details an operator configures, as opposed to the live status the
// Manager derives from them.
type RosterEntry struct {
	Name string `json:"name"`
	Host string `json:"host"`
	User string `json:"user,omitempty"`
	Port int    `json:"port,omitempty"`
}

// MachineInfo is the GET /machines wire shape: a roster entry's name
// paired with its current mount status.
type MachineInfo struct {
	Name       string `json:"name"`
	MountPoint string `json:"mountPoint,omitempty"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
}

type rosterFile struct {
	Machines []RosterEntry `json:"machines"`
}

func rosterPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".claude-code-ui", "machines.json"), nil
}

// LoadMachines reads the machine roster. A missing file yields an empty
// roster, not an error.
func LoadMachines() ([]RosterEntry, error) {
	path, err := rosterPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read machines.json: %w", err)
	}
	var roster rosterFile
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse machines.json: %w", err)
	}
	return roster.Machines, nil
}

type mountState struct {
	point  string
	status Status
	err    string
}

// Manager tracks the live mount status of every machine name it has
// been asked to mount, so repeat mount requests are idempotent and
// GET /machines can report mounting/mounted/error without re-probing
// sshfs.
type Manager struct {
	mu     sync.Mutex
	states map[string]*mountState
}

func NewManager() *Manager {
	return &Manager{states: make(map[string]*mountState)}
}

func mountPoint(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".claude-code-ui", "mounts", name), nil
}

// Mount sshfs-mounts machine's home directory at
// ~/.claude-code-ui/mounts/<name>/, creating the directory if needed.
// Idempotent: mounting an already-mounted name is a no-op.
func (m *Manager) Mount(machine RosterEntry) (string, error) {
	m.mu.Lock()
	if st, ok := m.states[machine.Name]; ok && st.status == StatusMounted {
		local := st.point
		m.mu.Unlock()
		return local, nil
	}
	m.states[machine.Name] = &mountState{status: StatusMounting}
	m.mu.Unlock()

	local, err := mountPoint(machine.Name)
	if err != nil {
		m.setError(machine.Name, err)
		return "", err
	}
	if err := os.MkdirAll(local, 0o755); err != nil {
		err = fmt.Errorf("create mount point: %w", err)
		m.setError(machine.Name, err)
		return "", err
	}

	target := machine.Host
	if machine.User != "" {
		target = machine.User + "@" + machine.Host
	}
	remote := target + ":"

	args := []string{remote, local}
	if machine.Port != 0 && machine.Port != 22 {
		args = append([]string{"-p", fmt.Sprintf("%d", machine.Port)}, args...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if out, err := exec.CommandContext(ctx, "sshfs", args...).CombinedOutput(); err != nil {
		err = fmt.Errorf("sshfs %s: %w: %s", machine.Name, err, out)
		m.setError(machine.Name, err)
		return "", err
	}

	m.mu.Lock()
	m.states[machine.Name] = &mountState{point: local, status: StatusMounted}
	m.mu.Unlock()

	return local, nil
}

func (m *Manager) setError(name string, err error) {
	m.mu.Lock()
	m.states[name] = &mountState{status: StatusError, err: err.Error()}
	m.mu.Unlock()
}

// Unmount unmounts name's mount point, if mounted.
func (m *Manager) Unmount(name string) error {
	m.mu.Lock()
	st, ok := m.states[name]
	m.mu.Unlock()
	if !ok || st.status != StatusMounted {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if out, err := exec.CommandContext(ctx, "umount", st.point).CombinedOutput(); err != nil {
		err = fmt.Errorf("umount %s: %w: %s", name, err, out)
		m.setError(name, err)
		return err
	}

	m.mu.Lock()
	m.states[name] = &mountState{status: StatusUnmounted}
	m.mu.Unlock()
	return nil
}

// UnmountAll unmounts every currently mounted machine, for daemon
// shutdown (spec.md §5: "unmount remote paths").
func (m *Manager) UnmountAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.states))
	for name, st := range m.states {
		if st.status == StatusMounted {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	for _, name := range names {
		_ = m.Unmount(name)
	}
}

// Status reports the live MachineInfo for every entry in roster,
// combining the configured name with whatever mount state the Manager
// currently tracks for it. A name never passed to Mount reports
// "unmounted".
func (m *Manager) Status(roster []RosterEntry) []MachineInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MachineInfo, 0, len(roster))
	for _, machine := range roster {
		info := MachineInfo{Name: machine.Name, Status: StatusUnmounted}
		if st, ok := m.states[machine.Name]; ok {
			info.Status = st.status
			info.MountPoint = st.point
			info.Error = st.err
		}
		out = append(out, info)
	}
	return out
}
