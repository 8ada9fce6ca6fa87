package terminal

import (
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

// ManagedPty is an attachment to a detached multiplexer session. Every
// byte from the underlying PTY is written to the ring buffer and
// broadcast to subscribers. Exclusively owned by the Manager.
type ManagedPty struct {
	PtyID           string
	SessionID       string
	LauncherID      string
	CWD             string
	Hostname        string
	CreatedAt       time.Time
	MultiplexerName string
	Warning         string
	PaneTarget      string // pane of MultiplexerName, for idle-reclamation CPU sampling; never exposed over the wire

	mu             sync.Mutex
	lastActivityAt time.Time
	file           *os.File
	cmd            *exec.Cmd
	ring           *RingBuffer
	subs           map[*Subscriber]struct{}
	exited         bool
	exitCode       int
	exitSignal     string
}

// Subscriber is a weak reference to one attached connection: a
// non-blocking output channel the broadcast loop writes into, plus a
// control channel for structured events (attached/exit/launcher_complete).
type Subscriber struct {
	Output  chan []byte
	Control chan Outbound
}

func newManagedPty(id, multiplexerName, cwd, hostname string) *ManagedPty {
	now := time.Now()
	return &ManagedPty{
		PtyID:           id,
		CWD:             cwd,
		Hostname:        hostname,
		CreatedAt:       now,
		lastActivityAt:  now,
		MultiplexerName: multiplexerName,
		ring:            NewRingBuffer(RingMaxBytes),
		subs:            make(map[*Subscriber]struct{}),
	}
}

// spawn starts the PTY running `multiplexer attach -t name` and begins
// the read-and-fan-out loop. The ring buffer is preloaded with the
// multiplexer's existing scrollback (sanitized) so a subscriber attaching
// moments later sees prior output rather than a blank pane.
func (m *ManagedPty) spawn() error {
	if captured, err := CapturePane(m.MultiplexerName); err == nil {
		m.ring.Write(SanitizeScrollback(captured))
	}

	argv := AttachArgs(m.MultiplexerName)
	cmd := exec.Command(argv[0], argv[1:]...)
	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	m.file = f
	m.cmd = cmd

	if panes, err := ListPanes(); err == nil {
		for _, p := range panes {
			if strings.HasPrefix(p.Target, m.MultiplexerName+":") {
				m.PaneTarget = p.Target
				break
			}
		}
	}

	go m.readLoop()
	go m.waitLoop()
	return nil
}

func (m *ManagedPty) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := m.file.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			m.touch()
			m.ring.Write(chunk)
			m.broadcast(chunk)
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("[terminal] read error on pty %s: %v", m.PtyID, err)
			}
			return
		}
	}
}

func (m *ManagedPty) waitLoop() {
	err := m.cmd.Wait()
	m.mu.Lock()
	m.exited = true
	if m.cmd.ProcessState != nil {
		m.exitCode = m.cmd.ProcessState.ExitCode()
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(interface{ Signaled() bool }); ok && ws.Signaled() {
			m.exitSignal = "terminated"
		}
	}
	code, signal := m.exitCode, m.exitSignal
	m.mu.Unlock()

	m.BroadcastControl(Outbound{Type: OutExit, PtyID: m.PtyID, Code: code, Signal: signal})
}

// broadcast delivers chunk to every subscriber with a non-blocking
// send; a subscriber that cannot keep up has this chunk dropped and
// must rely on ring-buffer replay on reconnect, per the back-pressure
// policy.
func (m *ManagedPty) broadcast(chunk []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.subs {
		select {
		case s.Output <- chunk:
		default:
			log.Printf("[terminal] subscriber lagging on pty %s, dropping chunk", m.PtyID)
		}
	}
}

// Attach registers a new subscriber and returns the ring buffer's
// current contents for replay before live bytes resume.
func (m *ManagedPty) Attach() (*Subscriber, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &Subscriber{Output: make(chan []byte, 256), Control: make(chan Outbound, 8)}
	m.subs[s] = struct{}{}
	return s, m.ring.Snapshot()
}

// BroadcastControl delivers a structured event to every subscriber.
func (m *ManagedPty) BroadcastControl(msg Outbound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.subs {
		select {
		case s.Control <- msg:
		default:
		}
	}
}

// Detach removes a subscriber. Silently a no-op if already removed.
func (m *ManagedPty) Detach(s *Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, s)
}

func (m *ManagedPty) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Write sends input bytes to the PTY (the inbound "input" message).
func (m *ManagedPty) Write(p []byte) error {
	m.touch()
	_, err := m.file.Write(p)
	return err
}

// Resize changes the PTY's window size (the inbound "resize" message).
func (m *ManagedPty) Resize(cols, rows int) error {
	return pty.Setsize(m.file, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

func (m *ManagedPty) touch() {
	m.mu.Lock()
	m.lastActivityAt = time.Now()
	m.mu.Unlock()
}

func (m *ManagedPty) LastActivityAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivityAt
}

// Kill terminates only the PTY process (detaching from the multiplexer
// session); the multiplexer session and the agent process it hosts are
// untouched.
func (m *ManagedPty) Kill() error {
	if m.cmd == nil || m.cmd.Process == nil {
		return nil
	}
	return m.cmd.Process.Kill()
}

func (m *ManagedPty) ExitInfo() (code int, signal string, exited bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCode, m.exitSignal, m.exited
}
