package terminal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeScrollbackStripsClearScreen(t *testing.T) {
	in := []byte("before\x1b[2Jafter")
	require.Equal(t, "beforeafter", string(SanitizeScrollback(in)))
}

func TestSanitizeScrollbackStripsAltScreenSwitch(t *testing.T) {
	in := []byte("\x1b[?1049hinside\x1b[?1049l")
	require.Equal(t, "inside", string(SanitizeScrollback(in)))
}

func TestSanitizeScrollbackStripsCursorPositioning(t *testing.T) {
	in := []byte("\x1b[10;20Htext")
	require.Equal(t, "text", string(SanitizeScrollback(in)))
}

func TestSanitizeScrollbackStripsSaveRestoreCursor(t *testing.T) {
	in := []byte("\x1b7moved\x1b8")
	require.Equal(t, "moved", string(SanitizeScrollback(in)))
}

func TestSanitizeScrollbackPreservesSGR(t *testing.T) {
	in := []byte("\x1b[31mred\x1b[0m")
	require.Equal(t, "\x1b[31mred\x1b[0m", string(SanitizeScrollback(in)))
}
