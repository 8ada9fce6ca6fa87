// Package prpoll shells out to the GitHub CLI to populate a session's
// associated pull request, grounded on internal/gitinfo's external-CLI
// probe shape. Disabled entirely if the `gh` binary is missing.
package prpoll

import (
	"context"
	"encoding/json"
	"log"
	"os/exec"
	"sync"
	"time"
)

const timeout = 5 * time.Second

// Info mirrors registry.PRInfo without importing the registry package,
// keeping this collaborator a leaf dependency.
type Info struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	State  string `json:"state"`
}

var (
	once      sync.Once
	available bool
)

func ghAvailable() bool {
	once.Do(func() {
		_, err := exec.LookPath("gh")
		available = err == nil
		if !available {
			log.Print("[prpoll] gh binary not found on PATH, PR polling disabled")
		}
	})
	return available
}

// Lookup returns the PR associated with cwd's current branch, or nil if
// `gh` is unavailable, there is no open PR, or the lookup fails/times out.
func Lookup(cwd string) *Info {
	if !ghAvailable() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "gh", "pr", "view", "--json", "number,url,state")
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	var info Info
	if err := json.Unmarshal(out, &info); err != nil {
		return nil
	}
	return &info
}
