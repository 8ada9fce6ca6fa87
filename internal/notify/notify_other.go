//go:build !darwin

package notify

// newOSNotifier is unavailable off macOS; notifications stay a no-op.
func newOSNotifier() Notifier { return noop{} }
