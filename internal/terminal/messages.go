package terminal

// Outbound control-message types delivered alongside raw PTY byte
// chunks, per §4.6.6. Subscriber.Control carries these; Subscriber.Output
// carries raw terminal bytes ({type:"output"} is synthesized by wsapi
// from Output, not sent over Control).
type OutboundType string

const (
	OutAttached         OutboundType = "attached"
	OutExit             OutboundType = "exit"
	OutLauncherComplete OutboundType = "launcher_complete"
)

type Outbound struct {
	Type            OutboundType `json:"type"`
	PtyID           string       `json:"ptyId,omitempty"`
	SessionID       string       `json:"sessionId,omitempty"`
	MultiplexerName string       `json:"multiplexerName,omitempty"`
	Warning         string       `json:"warning,omitempty"`
	CWD             string       `json:"cwd,omitempty"`
	Code            int          `json:"code,omitempty"`
	Signal          string       `json:"signal,omitempty"`
}
