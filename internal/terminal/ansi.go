// ansi.go implements the "seam filter": when a ManagedPty is freshly
// attached, its ring buffer is preloaded from `tmux capture-pane` before
// live PTY bytes start flowing. That captured snapshot must not carry
// destructive control sequences (clear-screen, alt-screen switch,
// cursor save/restore, absolute cursor positioning) into the subscriber's
// terminal, since those sequences were meant for the real terminal's
// prior state, not a fresh xterm.js instance replaying history. SGR
// color/style codes are preserved since they are purely additive.
package terminal

import "regexp"

var destructiveSequences = []*regexp.Regexp{
	regexp.MustCompile(`\x1b\[\d*;?\d*[Hf]`),     // cursor position
	regexp.MustCompile(`\x1b\[[0-9]*[ABCD]`),     // cursor movement
	regexp.MustCompile(`\x1b\[2J`),               // clear screen
	regexp.MustCompile(`\x1b\[3J`),               // clear scrollback
	regexp.MustCompile(`\x1b\[\?1049[hl]`),       // alt screen buffer switch
	regexp.MustCompile(`\x1b\[\?47[hl]`),         // alt screen buffer switch (legacy)
	regexp.MustCompile(`\x1b7`),                  // DEC save cursor
	regexp.MustCompile(`\x1b8`),                  // DEC restore cursor
	regexp.MustCompile(`\x1b\[s`),                // save cursor (ANSI.SYS)
	regexp.MustCompile(`\x1b\[u`),                // restore cursor (ANSI.SYS)
}

// SanitizeScrollback strips destructive control sequences from captured
// pane output before it is used to preload a ring buffer, preserving
// SGR sequences (`\x1b[...m`) untouched.
func SanitizeScrollback(b []byte) []byte {
	out := b
	for _, re := range destructiveSequences {
		out = re.ReplaceAll(out, nil)
	}
	return out
}
