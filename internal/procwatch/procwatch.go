// Package procwatch inspects the live process list via gopsutil to
// detect an agent CLI process running outside the terminal multiplexer
// in a given working directory, and to sample CPU usage for idle
// reclamation decisions. It is a direct port of the teacher's
// /proc-based DiscoverSessions/isClaudeProcess logic onto gopsutil so
// the same detection works cross-platform.
package procwatch

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// AgentProcess describes a discovered agent-CLI process.
type AgentProcess struct {
	PID int32
	CWD string
	Cmd string
}

// agentPatterns matches the agent CLI's own process name/cmdline,
// excluding internal subprocesses the CLI itself spawns under its
// config directory.
var agentPatterns = []string{"claude", "claude-code"}

// FindOutsideMultiplexer returns every agent-CLI process whose working
// directory matches cwd and whose PID is not excludePID (the pane PID
// already known to be running inside the multiplexer). A non-empty
// result means the user has a second, unmanaged instance of the agent
// running directly in a terminal.
func FindOutsideMultiplexer(cwd string, excludePID int32) ([]AgentProcess, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []AgentProcess
	for _, p := range procs {
		if p.Pid == excludePID {
			continue
		}
		name, err := p.Name()
		if err != nil || !isAgentProcessName(name) {
			continue
		}
		pcwd, err := p.Cwd()
		if err != nil || pcwd != cwd {
			continue
		}
		cmdline, _ := p.Cmdline()
		if isInternalSubprocess(cmdline) {
			continue
		}
		found = append(found, AgentProcess{PID: p.Pid, CWD: pcwd, Cmd: cmdline})
	}
	return found, nil
}

func isAgentProcessName(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range agentPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// isInternalSubprocess excludes helper processes the agent CLI spawns
// under its own config directory (e.g. MCP server children), which are
// not a second interactive instance.
func isInternalSubprocess(cmdline string) bool {
	return strings.Contains(cmdline, "/.claude/") && !strings.Contains(cmdline, "--resume")
}

// CPUPercent returns the given PID's CPU usage as gopsutil's
// Process.CPUPercent reports it (CPU time averaged over the process's
// lifetime). Returns 0 on any lookup failure.
func CPUPercent(pid int32) float64 {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0
	}
	pct, err := p.CPUPercent()
	if err != nil {
		return 0
	}
	return pct
}

// CPUPercentTree samples CPU usage for pid and every descendant of pid
// (via gopsutil's Children), and returns the maximum. The idle-
// reclamation sweep cares whether anything running inside the pane —
// the shell's children, not the shell itself — is still busy, so a
// single-process sample of the pane's shell is not enough.
func CPUPercentTree(pid int32) float64 {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0
	}
	best := cpuPercentOf(p)
	children, err := p.Children()
	if err != nil {
		return best
	}
	for _, c := range children {
		if pct := CPUPercentTree(c.Pid); pct > best {
			best = pct
		}
	}
	return best
}

func cpuPercentOf(p *process.Process) float64 {
	pct, err := p.CPUPercent()
	if err != nil {
		return 0
	}
	return pct
}
