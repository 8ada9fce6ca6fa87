//go:build !darwin

package hostterm

// newITerm2 is unavailable off macOS; TERMINAL=iterm2 degrades to
// disabled rather than failing startup.
func newITerm2() Capability { return disabled{} }
