// tmux.go wraps the terminal multiplexer binary via os/exec: session
// create/attach/rename/kill, pane capture for scrollback preload, and
// PID-to-pane resolution for the outside-multiplexer conflict check.
// Ported from the teacher's internal/monitor/tmux.go (TmuxResolver) and
// generalized with the session-lifecycle operations from
// myrison-agent-deck's internal tmux/terminal_manager code.
package terminal

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const execTimeout = 5 * time.Second

// MultiplexerBinary is the multiplexer executable name. A package-level
// var (not a const) so tests can point it at a fake.
var MultiplexerBinary = "tmux"

// Available reports whether the multiplexer binary can be found on PATH.
func Available() bool {
	_, err := exec.LookPath(MultiplexerBinary)
	return err == nil
}

func runTmux(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, MultiplexerBinary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return out.Bytes(), nil
}

// SessionExists reports whether a multiplexer session named `name`
// exists.
func SessionExists(name string) bool {
	_, err := runTmux("has-session", "-t", name)
	return err == nil
}

// CreateDetachedSession creates a new detached session running cmd in
// dir.
func CreateDetachedSession(name, dir string, cmd []string) error {
	args := []string{"new-session", "-d", "-s", name, "-c", dir}
	if len(cmd) > 0 {
		args = append(args, cmd...)
	}
	_, err := runTmux(args...)
	return err
}

// AttachArgs returns the argv the PTY should spawn to attach to name.
func AttachArgs(name string) []string {
	return []string{MultiplexerBinary, "attach-session", "-t", name}
}

// CapturePane returns the current visible+scrollback contents of the
// session's first pane, used to preload a late-joining subscriber's
// ring buffer before live streaming begins.
func CapturePane(name string) ([]byte, error) {
	return runTmux("capture-pane", "-p", "-e", "-t", name, "-S", "-2000")
}

// RenameSession renames a multiplexer session (the launcher
// placeholder-to-real-id swap).
func RenameSession(oldName, newName string) error {
	_, err := runTmux("rename-session", "-t", oldName, newName)
	return err
}

// KillSession destroys the multiplexer session entirely. Neither idle
// reclamation (which only kills the PTY attachment) nor the launcher
// flow calls it.
func KillSession(name string) error {
	_, err := runTmux("kill-session", "-t", name)
	return err
}

// SendKeys sends literal keys followed by Enter to the session.
func SendKeys(name, keys string) error {
	_, err := runTmux("send-keys", "-t", name, keys, "Enter")
	return err
}

// ResizeWindow resizes the session's active window to cols x rows.
func ResizeWindow(name string, cols, rows int) error {
	_, err := runTmux("resize-window", "-t", name, "-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows))
	return err
}

// TmuxPane is one row of `tmux list-panes -a` output.
type TmuxPane struct {
	Target string
	PanePID int32
}

// ListPanes enumerates every pane across every session, for PID-to-pane
// resolution.
func ListPanes() ([]TmuxPane, error) {
	out, err := runTmux("list-panes", "-a", "-F", "#{session_name}:#{window_index}.#{pane_index}\t#{pane_pid}")
	if err != nil {
		return nil, err
	}
	return parseTmuxPanes(string(out)), nil
}

func parseTmuxPanes(out string) []TmuxPane {
	var panes []TmuxPane
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			continue
		}
		panes = append(panes, TmuxPane{Target: fields[0], PanePID: int32(pid)})
	}
	return panes
}

// PaneTargetForPID walks the process ancestry of pid looking for a
// matching tmux pane PID.
func PaneTargetForPID(pid int) (string, bool) {
	panes, err := ListPanes()
	if err != nil {
		return "", false
	}
	paneOf := make(map[int32]string, len(panes))
	for _, p := range panes {
		paneOf[p.PanePID] = p.Target
	}

	for cur := pid; cur > 1; cur = getParentPID(cur) {
		if target, ok := paneOf[int32(cur)]; ok {
			return target, true
		}
	}
	return "", false
}

// PanePIDForTarget resolves a pane target (the same string PaneTargetForPID
// returns) back to the pane's own PID — the shell running inside the pane,
// not the client process attached to it. Used by idle reclamation to sample
// CPU usage for what's actually running in the pane rather than the
// short-lived `tmux attach-session` client.
func PanePIDForTarget(target string) (int32, bool) {
	panes, err := ListPanes()
	if err != nil {
		return 0, false
	}
	for _, p := range panes {
		if p.Target == target {
			return p.PanePID, true
		}
	}
	return 0, false
}
