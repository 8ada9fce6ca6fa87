// Package projectpath implements the on-disk project-directory encoding
// convention the agent CLI uses under its config root: a working
// directory's path separators are replaced with dashes to produce one
// flat directory name per project.
package projectpath

import "strings"

// Encode converts an absolute working directory into its on-disk
// project-directory name.
func Encode(cwd string) string {
	return strings.ReplaceAll(cwd, "/", "-")
}

// Decode reverses Encode. Lossy when the original path contained literal
// dashes, which is an accepted ambiguity of the convention itself.
func Decode(encoded string) string {
	decoded := strings.ReplaceAll(encoded, "-", "/")
	if !strings.HasPrefix(decoded, "/") {
		decoded = "/" + decoded
	}
	return decoded
}
