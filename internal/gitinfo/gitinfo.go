// Package gitinfo shells out to the git CLI to populate a session's
// branch and repository root; pull requests come from internal/prpoll,
// which the composition root calls separately. Ported
// from myrison-agent-deck's TmuxManager.getGitInfo, trimmed to what
// Session.gitBranch needs and given a hard wall-clock timeout per the
// concurrency model's external-CLI rule.
package gitinfo

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const timeout = 5 * time.Second

// Info is the git state surfaced for a session's working directory.
type Info struct {
	Branch  string
	RepoID  string // toplevel directory path, surfaced as Session.GitRepoID
	IsDirty bool
}

// Lookup returns the git info for cwd. All failures (not a repo, git
// missing, timeout) degrade to a zero Info rather than an error, per the
// spec's framing of external CLI probes as "unavailable" not errors.
func Lookup(cwd string) Info {
	var info Info
	if cwd == "" {
		return info
	}

	if out, err := run(cwd, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		info.Branch = strings.TrimSpace(out)
	}
	if out, err := run(cwd, "rev-parse", "--show-toplevel"); err == nil {
		info.RepoID = strings.TrimSpace(out)
	}
	if out, err := run(cwd, "status", "--porcelain"); err == nil {
		info.IsDirty = len(strings.TrimSpace(out)) > 0
	}

	return info
}

func run(dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	return string(out), err
}
