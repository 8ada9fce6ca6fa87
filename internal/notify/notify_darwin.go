//go:build darwin

package notify

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"time"
)

const timeout = 5 * time.Second

type osNotifier struct{}

func newOSNotifier() Notifier { return osNotifier{} }

func (osNotifier) Notify(title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	script := fmt.Sprintf(`display notification %q with title %q`, body, title)
	if err := exec.CommandContext(ctx, "osascript", "-e", script).Run(); err != nil {
		log.Printf("[notify] osascript failed: %v", err)
	}
}
