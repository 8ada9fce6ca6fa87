package publish

import (
	"testing"

	"github.com/claude-code-ui/terminaldaemon/internal/registry"
	"github.com/claude-code-ui/terminaldaemon/internal/status"
	"github.com/stretchr/testify/require"
)

func TestPublishAssignsMonotonicSeq(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(dir, "sessions", false)
	require.NoError(t, err)
	defer p.Close()

	p.Publish(Record{Op: OpInsert, PK: "s1"})
	p.Publish(Record{Op: OpUpdate, PK: "s1"})

	records, err := p.Replay(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.EqualValues(t, 0, records[0].Seq)
	require.EqualValues(t, 1, records[1].Seq)
}

func TestPublishResumesAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(dir, "sessions", false)
	require.NoError(t, err)
	p.Publish(Record{Op: OpInsert, PK: "s1"})
	require.NoError(t, p.Close())

	p2, err := Open(dir, "sessions", false)
	require.NoError(t, err)
	defer p2.Close()
	p2.Publish(Record{Op: OpUpdate, PK: "s1"})

	records, err := p2.Replay(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.EqualValues(t, 1, records[1].Seq)
}

func TestReplayFromResumesMidStream(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(dir, "sessions", false)
	require.NoError(t, err)
	defer p.Close()
	p.Publish(Record{Op: OpInsert, PK: "s1"})
	p.Publish(Record{Op: OpUpdate, PK: "s1"})
	p.Publish(Record{Op: OpUpdate, PK: "s1"})

	records, err := p.Replay(2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.EqualValues(t, 2, records[0].Seq)
}

func TestClearRemovesPriorLog(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(dir, "sessions", false)
	require.NoError(t, err)
	p.Publish(Record{Op: OpInsert, PK: "s1"})
	require.NoError(t, p.Close())

	p2, err := Open(dir, "sessions", true)
	require.NoError(t, err)
	defer p2.Close()
	records, err := p2.Replay(0)
	require.NoError(t, err)
	require.Len(t, records, 0)
}

func TestSubscribeReceivesLiveRecords(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(dir, "sessions", false)
	require.NoError(t, err)
	defer p.Close()

	live, unsub := p.Subscribe()
	defer unsub()

	p.Publish(Record{Op: OpInsert, PK: "s1"})
	rec := <-live
	require.Equal(t, "s1", rec.PK)
}

func TestPublishFromEventMapsOpCorrectly(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(dir, "sessions", false)
	require.NoError(t, err)
	defer p.Close()

	sess := &registry.Session{ID: "s1", Status: status.Working}
	p.PublishFromEvent(registry.Event{Type: registry.EventCreated, Session: sess})
	p.PublishFromEvent(registry.Event{Type: registry.EventDeleted, Session: sess})

	records, err := p.Replay(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, OpInsert, records[0].Op)
	require.NotNil(t, records[0].Value)
	require.Equal(t, OpDelete, records[1].Op)
	require.Nil(t, records[1].Value)
}
