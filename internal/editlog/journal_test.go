package editlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"github.com/specialistvlad/graphedit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	j.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return j
}

func commit(t *testing.T, s graphstore.Store, name string, mutate func()) {
	t.Helper()
	tx, err := s.Begin(name)
	require.NoError(t, err)
	mutate()
	require.NoError(t, tx.Commit())
}

func TestJournal_RecordsCommittedBatches(t *testing.T) {
	ctx, _ := testutil.Context(t)
	j := openJournal(t)
	s := testutil.NewStore()
	s.Observe(j)

	var a, b diagram.NodeID
	commit(t, s, "add nodes", func() {
		id1, err := s.AddNode(graphstore.NodeSpec{Type: "task", Bounds: geom.R(0, 0, 100, 60)})
		require.NoError(t, err)
		id2, err := s.AddNode(graphstore.NodeSpec{Type: "task", Bounds: geom.R(200, 0, 100, 60)})
		require.NoError(t, err)
		a, b = id1, id2
	})
	commit(t, s, "empty", func() {})
	commit(t, s, "connect", func() {
		testutil.Connect(t, s, a, b, "sequence_flow")
	})

	// Rolled back work never reaches the journal.
	tx, err := s.Begin("discarded")
	require.NoError(t, err)
	_, err = s.AddNode(graphstore.NodeSpec{Type: "task"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "add nodes", entries[0].Name)
	assert.Equal(t, 2, entries[0].Ops)
	assert.Equal(t, "connect", entries[1].Name)
	assert.Equal(t, 3, entries[1].Ops)
	assert.Equal(t, entries[0].After, entries[1].Before)
	assert.Equal(t, s.Fingerprint(), entries[1].After)
	assert.Equal(t, int64(1_700_000_000_000), entries[0].CreatedAt.UnixMilli())

	batch, err := j.Batch(ctx, entries[1].ID)
	require.NoError(t, err)
	kinds := make([]graphstore.OpKind, 0, len(batch.Ops))
	for _, op := range batch.Ops {
		kinds = append(kinds, op.Kind)
	}
	assert.Equal(t, []graphstore.OpKind{graphstore.OpAddPort, graphstore.OpAddPort, graphstore.OpAddEdge}, kinds)

	n, err := j.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestJournal_DetectsCorruptionAndBrokenChains(t *testing.T) {
	ctx, _ := testutil.Context(t)
	j := openJournal(t)

	first, err := j.Append(ctx, graphstore.Batch{Name: "one", Before: "a", After: "b", Ops: []graphstore.Op{{Kind: graphstore.OpAddNode, ID: "node-1"}}})
	require.NoError(t, err)
	_, err = j.Append(ctx, graphstore.Batch{Name: "two", Before: "c", After: "d", Ops: []graphstore.Op{{Kind: graphstore.OpAddNode, ID: "node-2"}}})
	require.NoError(t, err)

	n, err := j.Verify(ctx)
	require.ErrorIs(t, err, ErrBrokenChain)
	assert.Equal(t, 1, n)

	_, err = j.conn.ExecContext(ctx, `UPDATE batches SET checksum = ? WHERE id = ?`, make([]byte, 32), first)
	require.NoError(t, err)
	_, err = j.Batch(ctx, first)
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = j.Batch(ctx, 404)
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestJournal_PersistsAcrossReopen(t *testing.T) {
	ctx, _ := testutil.Context(t)
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Append(ctx, graphstore.Batch{Name: "one", Ops: []graphstore.Op{{Kind: graphstore.OpAddNode, ID: "node-1"}}})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	b, err := j.Batch(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "node-1", b.Ops[0].ID)
}

func TestJournal_SessionsKeepSeparateChains(t *testing.T) {
	ctx, _ := testutil.Context(t)
	j := openJournal(t)

	for range 2 {
		s := testutil.NewStore()
		sess := j.NewSession()
		s.Observe(sess)
		commit(t, s, "add", func() {
			testutil.AddNode(t, s, "task", geom.R(0, 0, 100, 60), "")
		})
		commit(t, s, "add again", func() {
			testutil.AddNode(t, s, "task", geom.R(200, 0, 100, 60), "")
		})
	}

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, entries[0].Session, entries[1].Session)
	assert.NotEqual(t, entries[0].Session, entries[2].Session)
	// Both stores start empty, so the second chain restarts.
	assert.Equal(t, entries[0].Before, entries[2].Before)

	n, err := j.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
