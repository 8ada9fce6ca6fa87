// Package notify fires a desktop notification when a session transitions
// to waiting_for_input/needs_approval, gated by NOTIFICATIONS_ENABLED
// (§6). A no-op unless enabled and running on macOS.
package notify

// Notifier sends a desktop notification.
type Notifier interface {
	Notify(title, body string)
}

// New returns a Notifier. If enabled is false, Notify is always a no-op.
func New(enabled bool) Notifier {
	if !enabled {
		return noop{}
	}
	return newOSNotifier()
}

type noop struct{}

func (noop) Notify(string, string) {}
