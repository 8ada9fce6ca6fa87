package terminal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTmuxPanes(t *testing.T) {
	out := "main:0.0\t1234\nmain:1.0\t5678\n"
	panes := parseTmuxPanes(out)
	require.Len(t, panes, 2)
	require.Equal(t, "main:0.0", panes[0].Target)
	require.Equal(t, int32(1234), panes[0].PanePID)
	require.Equal(t, "main:1.0", panes[1].Target)
	require.Equal(t, int32(5678), panes[1].PanePID)
}

func TestParseTmuxPanesSkipsMalformedLines(t *testing.T) {
	out := "main:0.0\t1234\nmalformed-no-tab\nmain:1.0\tnotanumber\n"
	panes := parseTmuxPanes(out)
	require.Len(t, panes, 1)
	require.Equal(t, "main:0.0", panes[0].Target)
}

func TestParseTmuxPanesEmpty(t *testing.T) {
	require.Empty(t, parseTmuxPanes(""))
	require.Empty(t, parseTmuxPanes("\n"))
}
