package procwatch

import "testing"

func TestIsAgentProcessName(t *testing.T) {
	cases := map[string]bool{
		"claude":      true,
		"claude-code": true,
		"Claude":      true,
		"bash":        false,
		"node":        false,
	}
	for name, want := range cases {
		if got := isAgentProcessName(name); got != want {
			t.Errorf("isAgentProcessName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsInternalSubprocess(t *testing.T) {
	if !isInternalSubprocess("/home/u/.claude/mcp/server.js") {
		t.Error("expected internal subprocess under .claude to be excluded")
	}
	if isInternalSubprocess("/usr/bin/claude --resume s1") {
		t.Error("a --resume invocation is a real instance, not internal")
	}
	if isInternalSubprocess("/usr/bin/claude") {
		t.Error("a bare top-level invocation should not be treated as internal")
	}
}

func TestCPUPercentUnknownPIDReturnsZero(t *testing.T) {
	if got := CPUPercent(-1); got != 0 {
		t.Errorf("CPUPercent(-1) = %v, want 0", got)
	}
}

func TestCPUPercentTreeUnknownPIDReturnsZero(t *testing.T) {
	if got := CPUPercentTree(-1); got != 0 {
		t.Errorf("CPUPercentTree(-1) = %v, want 0", got)
	}
}
