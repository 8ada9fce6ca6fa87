// Package facade implements the External-action HTTP facade (§4.9,
// §6's HTTP table): thin JSON handlers delegating to the Terminal
// Manager, the host-terminal capability, and the mount manager. Route
// shape grounded on the teacher's internal/ws/server.go
// handleFocus/handleSessionRoutes mux.HandleFunc pattern.
package facade

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/claude-code-ui/terminaldaemon/internal/hostterm"
	"github.com/claude-code-ui/terminaldaemon/internal/mount"
	"github.com/claude-code-ui/terminaldaemon/internal/terminal"
)

// TerminalInfo is the wire shape for GET /terminals.
type TerminalInfo struct {
	PtyID           string `json:"ptyId"`
	SessionID       string `json:"sessionId,omitempty"`
	LauncherID      string `json:"launcherId,omitempty"`
	CWD             string `json:"cwd"`
	Hostname        string `json:"hostname"`
	MultiplexerName string `json:"multiplexerName"`
	Warning         string `json:"warning,omitempty"`
}

// Facade bundles the collaborators the HTTP routes delegate to.
type Facade struct {
	terminals *terminal.Manager
	term      hostterm.Capability
	mounts    *mount.Manager
}

func New(terminals *terminal.Manager, term hostterm.Capability, mounts *mount.Manager) *Facade {
	return &Facade{terminals: terminals, term: term, mounts: mounts}
}

// Register attaches every route in §6's HTTP table to mux.
func (f *Facade) Register(mux *http.ServeMux) {
	mux.HandleFunc("/focus-iterm", f.handleFocusITerm)
	mux.HandleFunc("/open-session", f.handleOpenSession)
	mux.HandleFunc("/focus-or-open", f.handleFocusOrOpen)
	mux.HandleFunc("/machines", f.handleMachines)
	mux.HandleFunc("/terminals", f.handleTerminals)
	mux.HandleFunc("/terminals/launcher", f.handleLauncher)
	mux.HandleFunc("/terminals/", f.handleTerminalByID)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[facade] encode response failed: %v", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (f *Facade) handleFocusITerm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SearchTerm string `json:"searchTerm"`
	}
	_ = decodeJSON(r, &req)

	ok, err := f.term.Focus(r.Context(), req.SearchTerm)
	if err != nil {
		log.Printf("[facade] focus-iterm failed: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (f *Facade) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CWD       string `json:"cwd"`
		SessionID string `json:"sessionId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	err := f.term.Open(r.Context(), req.CWD, req.SessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": err == nil})
}

func (f *Facade) handleFocusOrOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CWD             string `json:"cwd"`
		SessionID       string `json:"sessionId"`
		Status          string `json:"status"`
		LastAgentMesage string `json:"lastAgentMessage"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	focused, err := f.term.Focus(r.Context(), req.SessionID)
	if err == nil && focused {
		writeJSON(w, http.StatusOK, map[string]string{"action": "focused"})
		return
	}

	if err := f.term.Open(r.Context(), req.CWD, req.SessionID); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"action": "failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action": "opened"})
}

func (f *Facade) handleMachines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roster, err := mount.LoadMachines()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]mount.MachineInfo{"machines": f.mounts.Status(roster)})
}

func (f *Facade) handleTerminals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		infos := make([]TerminalInfo, 0)
		for _, mp := range f.terminals.List() {
			infos = append(infos, terminalInfoOf(mp))
		}
		writeJSON(w, http.StatusOK, map[string][]TerminalInfo{"terminals": infos})

	case http.MethodPost:
		var req struct {
			SessionID string `json:"sessionId"`
			CWD       string `json:"cwd"`
			Hostname  string `json:"hostname"`
		}
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		mp, err := f.terminals.GetOrCreate(req.SessionID, req.CWD, req.Hostname, false)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"ptyId":     mp.PtyID,
			"sessionId": mp.SessionID,
			"hostname":  mp.Hostname,
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *Facade) handleLauncher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Hostname string `json:"hostname"`
	}
	_ = decodeJSON(r, &req)

	mp, err := f.terminals.CreateLauncher(req.Hostname)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ptyId":      mp.PtyID,
		"launcherId": mp.LauncherID,
		"hostname":   mp.Hostname,
	})
}

func (f *Facade) handleTerminalByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ptyID := strings.TrimPrefix(r.URL.Path, "/terminals/")
	if ptyID == "" {
		http.Error(w, "missing ptyId", http.StatusBadRequest)
		return
	}
	if err := f.terminals.Kill(ptyID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func terminalInfoOf(mp *terminal.ManagedPty) TerminalInfo {
	return TerminalInfo{
		PtyID:           mp.PtyID,
		SessionID:       mp.SessionID,
		LauncherID:      mp.LauncherID,
		CWD:             mp.CWD,
		Hostname:        mp.Hostname,
		MultiplexerName: mp.MultiplexerName,
		Warning:         mp.Warning,
	}
}
