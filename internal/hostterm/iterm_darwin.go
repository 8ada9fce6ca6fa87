//go:build darwin

package hostterm

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

const osascriptTimeout = 5 * time.Second

type iterm2 struct{}

func newITerm2() Capability { return iterm2{} }

// Focus asks iTerm2, via AppleScript, to bring to front any window whose
// title contains searchTerm.
func (iterm2) Focus(ctx context.Context, searchTerm string) (bool, error) {
	script := fmt.Sprintf(`
tell application "iTerm2"
	repeat with w in windows
		repeat with t in tabs of w
			repeat with s in sessions of t
				if (name of s contains %q) then
					select w
					select t
					select s
					activate
					return "true"
				end if
			end repeat
		end repeat
	end repeat
end tell
return "false"`, searchTerm)

	out, err := runOsascript(ctx, script)
	if err != nil {
		return false, err
	}
	return out == "true", nil
}

// Open creates a new iTerm2 window in cwd, optionally resuming sessionID
// with the agent CLI.
func (iterm2) Open(ctx context.Context, cwd, sessionID string) error {
	cmdLine := fmt.Sprintf("cd %s", shellQuote(cwd))
	if sessionID != "" {
		cmdLine += fmt.Sprintf(" && claude --resume %s", shellQuote(sessionID))
	}

	script := fmt.Sprintf(`
tell application "iTerm2"
	activate
	set newWindow to (create window with default profile)
	tell current session of newWindow
		write text %q
	end tell
end tell`, cmdLine)

	_, err := runOsascript(ctx, script)
	return err
}

func runOsascript(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, osascriptTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("osascript: %w", err)
	}
	return string(trimNewline(out)), nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func shellQuote(s string) string {
	return "'" + escapeSingleQuotes(s) + "'"
}

func escapeSingleQuotes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\\', '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
