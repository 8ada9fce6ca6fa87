package terminal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingBufferWriteAndSnapshot(t *testing.T) {
	r := NewRingBuffer(16)
	r.Write([]byte("hello "))
	r.Write([]byte("world"))
	require.Equal(t, "hello world", string(r.Snapshot()))
}

func TestRingBufferDropsOldestOverCap(t *testing.T) {
	r := NewRingBuffer(5)
	r.Write([]byte("abcdefgh"))
	require.Equal(t, "defgh", string(r.Snapshot()))
}

func TestRingBufferAccumulatesAcrossWritesPastCap(t *testing.T) {
	r := NewRingBuffer(5)
	r.Write([]byte("abc"))
	r.Write([]byte("def"))
	require.Equal(t, "bcdef", string(r.Snapshot()))
}

func TestRingBufferSnapshotIsACopy(t *testing.T) {
	r := NewRingBuffer(16)
	r.Write([]byte("abc"))
	snap := r.Snapshot()
	snap[0] = 'z'
	require.Equal(t, "abc", string(r.Snapshot()))
}
