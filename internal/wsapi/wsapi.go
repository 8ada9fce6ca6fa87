// Package wsapi implements the Terminal WebSocket Endpoint (§4.7): a
// gorilla/websocket upgrade per connection, demultiplexing inbound
// input/resize/ping frames onto a ManagedPty and forwarding its output
// and control events back out. Read pump / write pump split ported from
// the teacher's internal/ws/broadcast.go client/writePump shape, adapted
// from one-directional broadcast to bidirectional terminal I/O.
package wsapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/terminal"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

const writeTimeout = 5 * time.Second

// inbound mirrors §4.6.6's inbound JSON shapes. Data is []byte rather than
// string so encoding/json base64-decodes it automatically; terminal input
// is arbitrary bytes, not guaranteed-valid UTF-8.
type inbound struct {
	Type string `json:"type"`
	Data []byte `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// outbound mirrors §4.6.6's outbound JSON shapes; Output frames are
// synthesized here from Subscriber.Output, everything else is a direct
// encoding of a terminal.Outbound control message. Data is []byte for the
// same reason as inbound.Data: raw PTY output is not guaranteed-valid
// UTF-8, and encoding/json base64-encodes a []byte field rather than
// lossily replacing invalid sequences the way string(chunk) would.
type outbound struct {
	Type            string `json:"type"`
	Data            []byte `json:"data,omitempty"`
	PtyID           string `json:"ptyId,omitempty"`
	SessionID       string `json:"sessionId,omitempty"`
	MultiplexerName string `json:"multiplexerName,omitempty"`
	Warning         string `json:"warning,omitempty"`
	CWD             string `json:"cwd,omitempty"`
	Code            int    `json:"code,omitempty"`
	Signal          string `json:"signal,omitempty"`
}

// Handler returns the /terminal WebSocket endpoint.
func Handler(mgr *terminal.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		hostname := q.Get("hostname")
		launcherID := q.Get("launcherId")
		sessionID := q.Get("sessionId")
		cwd := q.Get("cwd")

		var mp *terminal.ManagedPty
		var err error

		switch {
		case launcherID != "":
			if !mgr.HasLauncher(launcherID) {
				rejectHandshake(w, r, 4000, "unknown launcherId")
				return
			}
			var ok bool
			mp, ok = mgr.Get(launcherIDToPtyID(mgr, launcherID))
			if !ok {
				rejectHandshake(w, r, 4000, "launcher pty no longer exists")
				return
			}
		case sessionID != "" && cwd != "":
			mp, err = mgr.GetOrCreate(sessionID, cwd, hostname, false)
			if err != nil {
				conn, upErr := upgrader.Upgrade(w, r, nil)
				if upErr != nil {
					return
				}
				writeJSON(conn, map[string]string{"type": "error", "message": err.Error()})
				closeMsg := websocket.FormatCloseMessage(4001, err.Error())
				_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeTimeout))
				conn.Close()
				return
			}
		default:
			rejectHandshake(w, r, 4000, "missing sessionId+cwd or launcherId")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[wsapi] upgrade failed: %v", err)
			return
		}

		serve(conn, mp)
	}
}

func launcherIDToPtyID(mgr *terminal.Manager, launcherID string) string {
	for _, mp := range mgr.List() {
		if mp.LauncherID == launcherID {
			return mp.PtyID
		}
	}
	return ""
}

func rejectHandshake(w http.ResponseWriter, r *http.Request, code int, reason string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func serve(conn *websocket.Conn, mp *terminal.ManagedPty) {
	sub, replay := mp.Attach()
	defer mp.Detach(sub)

	done := make(chan struct{})
	go writePump(conn, sub, done)

	if len(replay) > 0 {
		writeJSON(conn, outbound{Type: "output", Data: replay})
	}
	writeJSON(conn, outbound{
		Type:            "attached",
		PtyID:           mp.PtyID,
		SessionID:       mp.SessionID,
		MultiplexerName: mp.MultiplexerName,
		Warning:         mp.Warning,
	})

	readPump(conn, mp)
	close(done)
}

// readPump demultiplexes inbound frames onto the ManagedPty until the
// connection closes.
func readPump(conn *websocket.Conn, mp *terminal.ManagedPty) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "input":
			_ = mp.Write(msg.Data)
		case "resize":
			_ = mp.Resize(msg.Cols, msg.Rows)
		case "ping":
			writeJSON(conn, outbound{Type: "pong"})
		}
	}
}

// writePump forwards raw PTY output and structured control events to the
// client until done is closed.
func writePump(conn *websocket.Conn, sub *terminal.Subscriber, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case chunk, ok := <-sub.Output:
			if !ok {
				return
			}
			if !writeJSON(conn, outbound{Type: "output", Data: chunk}) {
				return
			}
		case ctrl, ok := <-sub.Control:
			if !ok {
				return
			}
			if !writeJSON(conn, outbound{
				Type:            string(ctrl.Type),
				PtyID:           ctrl.PtyID,
				SessionID:       ctrl.SessionID,
				MultiplexerName: ctrl.MultiplexerName,
				Warning:         ctrl.Warning,
				CWD:             ctrl.CWD,
				Code:            ctrl.Code,
				Signal:          ctrl.Signal,
			}) {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[wsapi] marshal failed: %v", err)
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	return true
}
