package terminal

import "sync"

// RingMaxBytes is the scrollback cap per ManagedPty (§4.6.4).
const RingMaxBytes = 100 * 1024

// RingBuffer is a bounded byte queue that drops the oldest bytes once
// full. Mutated only from the PTY's output callback, per the
// concurrency model's single-writer rule; Snapshot is safe to call
// concurrently with writes.
type RingBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func NewRingBuffer(max int) *RingBuffer {
	if max <= 0 {
		max = RingMaxBytes
	}
	return &RingBuffer{max: max}
}

// Write appends p, dropping the oldest bytes if the buffer would exceed
// its cap.
func (r *RingBuffer) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, p...)
	if over := len(r.buf) - r.max; over > 0 {
		r.buf = r.buf[over:]
	}
}

// Snapshot returns a copy of the buffer's current contents, for
// replaying to a newly attached subscriber.
func (r *RingBuffer) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out
}
