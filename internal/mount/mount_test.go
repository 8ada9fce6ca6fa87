package mount

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusReportsUnmountedForUntouchedRoster(t *testing.T) {
	m := NewManager()
	roster := []RosterEntry{{Name: "box1", Host: "example.com"}}
	infos := m.Status(roster)
	require.Len(t, infos, 1)
	require.Equal(t, "box1", infos[0].Name)
	require.Equal(t, StatusUnmounted, infos[0].Status)
	require.Empty(t, infos[0].MountPoint)
}

func TestStatusReportsErrorAfterFailedMount(t *testing.T) {
	m := NewManager()
	// No sshfs binary in the test sandbox: Mount fails and records the
	// failure rather than panicking or hanging.
	_, err := m.Mount(RosterEntry{Name: "box1", Host: "nonexistent.invalid"})
	require.Error(t, err)

	infos := m.Status([]RosterEntry{{Name: "box1", Host: "nonexistent.invalid"}})
	require.Len(t, infos, 1)
	require.Equal(t, StatusError, infos[0].Status)
	require.NotEmpty(t, infos[0].Error)
}

func TestUnmountUnknownNameIsNoop(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Unmount("never-mounted"))
}

func TestUnmountAllOnEmptyManagerIsNoop(t *testing.T) {
	m := NewManager()
	m.UnmountAll()
}
