package wsapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/terminal"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/terminal" + query
	return websocket.DefaultDialer.Dial(wsURL, nil)
}

func TestHandlerRejectsHandshakeMissingParams(t *testing.T) {
	mgr := terminal.NewManager(terminal.DefaultConfig())
	srv := httptest.NewServer(Handler(mgr))
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "")
	require.NoError(t, err)
	defer conn.Close()

	_, _, readErr := conn.ReadMessage()
	require.Error(t, readErr)
	closeErr, ok := readErr.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %T: %v", readErr, readErr)
	require.Equal(t, 4000, closeErr.Code)
	require.Contains(t, closeErr.Text, "missing sessionId+cwd or launcherId")
}

func TestHandlerRejectsUnknownLauncherID(t *testing.T) {
	mgr := terminal.NewManager(terminal.DefaultConfig())
	srv := httptest.NewServer(Handler(mgr))
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "?launcherId=never-issued")
	require.NoError(t, err)
	defer conn.Close()

	_, _, readErr := conn.ReadMessage()
	require.Error(t, readErr)
	closeErr, ok := readErr.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %T: %v", readErr, readErr)
	require.Equal(t, 4000, closeErr.Code)
	require.Contains(t, closeErr.Text, "unknown launcherId")
}

func TestHandlerRejectsSessionWhenMultiplexerUnavailable(t *testing.T) {
	orig := terminal.MultiplexerBinary
	terminal.MultiplexerBinary = "nonexistent-multiplexer-binary-xyz"
	defer func() { terminal.MultiplexerBinary = orig }()

	mgr := terminal.NewManager(terminal.DefaultConfig())
	srv := httptest.NewServer(Handler(mgr))
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "?sessionId=s1&cwd=/work")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var gotError bool
	for i := 0; i < 2; i++ {
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			closeErr, ok := readErr.(*websocket.CloseError)
			require.True(t, ok, "expected a close error, got %T: %v", readErr, readErr)
			require.Equal(t, 4001, closeErr.Code)
			return
		}
		if strings.Contains(string(data), `"type":"error"`) {
			gotError = true
		}
	}
	require.True(t, gotError, "expected an error frame before the close")
}

func TestLauncherIDToPtyIDUnknownReturnsEmpty(t *testing.T) {
	mgr := terminal.NewManager(terminal.DefaultConfig())
	require.Empty(t, launcherIDToPtyID(mgr, "never-issued"))
}
