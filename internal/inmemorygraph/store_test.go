package inmemorygraph

import (
	"errors"
	"testing"

	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addNode(t *testing.T, s *Store, typ diagram.Type, bounds geom.Rect, parent diagram.NodeID) diagram.NodeID {
	t.Helper()
	id, err := s.AddNode(graphstore.NodeSpec{Type: typ, Bounds: bounds, Parent: parent})
	require.NoError(t, err)
	return id
}

func connect(t *testing.T, s *Store, from, to diagram.NodeID) diagram.EdgeID {
	t.Helper()
	fromNode, _ := s.Node(from)
	toNode, _ := s.Node(to)
	sp, err := s.AddPort(from, "", fromNode.Bounds.Center())
	require.NoError(t, err)
	tp, err := s.AddPort(to, "", toNode.Bounds.Center())
	require.NoError(t, err)
	e, err := s.AddEdge("flow", sp, tp)
	require.NoError(t, err)
	return e
}

type batchRecorder struct {
	batches []graphstore.Batch
	err     error
}

func (r *batchRecorder) BatchCommitted(b graphstore.Batch) error {
	r.batches = append(r.batches, b)
	return r.err
}

func TestAddAndGetNode(t *testing.T) {
	s := New(WithSequentialIDs())
	id := addNode(t, s, "task", geom.R(0, 0, 10, 10), "")

	assert.Equal(t, diagram.NodeID("node-1"), id)
	n, ok := s.Node(id)
	require.True(t, ok)
	assert.Equal(t, diagram.Type("task"), n.Type)

	_, ok = s.Node("node-404")
	assert.False(t, ok)
}

func TestSetParent_RejectsCycles(t *testing.T) {
	s := New(WithSequentialIDs())
	pool := addNode(t, s, "pool", geom.R(0, 0, 100, 100), "")
	lane := addNode(t, s, "lane", geom.R(0, 0, 100, 50), pool)
	task := addNode(t, s, "task", geom.R(10, 10, 10, 10), lane)

	err := s.SetParent(pool, task)
	assert.True(t, errors.Is(err, graphstore.ErrCyclicParent))

	err = s.SetParent(pool, pool)
	assert.ErrorIs(t, err, graphstore.ErrCyclicParent)

	assert.Equal(t, []diagram.NodeID{lane, pool}, s.Ancestors(task))
	assert.True(t, graphstore.IsAncestor(s, pool, task))
}

func TestRemoveNode_CascadesAndReparentsChildren(t *testing.T) {
	s := New(WithSequentialIDs())
	group := addNode(t, s, "group", geom.R(0, 0, 100, 100), "")
	a := addNode(t, s, "task", geom.R(10, 10, 10, 10), group)
	b := addNode(t, s, "task", geom.R(50, 50, 10, 10), "")
	connect(t, s, a, b)
	_, err := s.AddLabel(string(a), "name", "A")
	require.NoError(t, err)

	require.NoError(t, s.RemoveNode(a))
	assert.Empty(t, s.Edges())
	assert.Empty(t, s.LabelsOf(string(a)))
	assert.Equal(t, 0, s.Degree(b))

	c := addNode(t, s, "task", geom.R(20, 20, 10, 10), group)
	require.NoError(t, s.RemoveNode(group))
	n, _ := s.Node(c)
	assert.Empty(t, n.Parent)
}

func TestSetBounds_MovesOwnedPorts(t *testing.T) {
	s := New(WithSequentialIDs())
	a := addNode(t, s, "task", geom.R(0, 0, 10, 10), "")
	p, err := s.AddPort(a, "", geom.Pt(10, 5))
	require.NoError(t, err)

	require.NoError(t, s.SetBounds(a, geom.R(100, 100, 10, 10)))
	port, _ := s.Port(p)
	assert.Equal(t, geom.Pt(110, 105), port.Location)
}

func TestReverseEdge_SwapsEndpointsAndBends(t *testing.T) {
	s := New(WithSequentialIDs())
	a := addNode(t, s, "task", geom.R(0, 0, 10, 10), "")
	b := addNode(t, s, "task", geom.R(50, 0, 10, 10), "")
	e := connect(t, s, a, b)
	require.NoError(t, s.SetEdgeBends(e, []geom.Point{geom.Pt(1, 1), geom.Pt(2, 2)}))

	require.NoError(t, s.ReverseEdge(e))
	edge, _ := s.Edge(e)
	assert.Equal(t, []geom.Point{geom.Pt(2, 2), geom.Pt(1, 1)}, edge.Bends)
	assert.Len(t, s.OutEdges(b), 1)
	assert.Len(t, s.InEdges(a), 1)
}

func TestTransaction_RollbackRestoresFingerprint(t *testing.T) {
	s := New(WithSequentialIDs())
	a := addNode(t, s, "task", geom.R(0, 0, 10, 10), "")
	b := addNode(t, s, "task", geom.R(50, 0, 10, 10), "")
	connect(t, s, a, b)
	before := s.Fingerprint()
	order := s.Nodes()

	tx, err := s.Begin("mutate")
	require.NoError(t, err)
	require.NoError(t, s.RemoveNode(a))
	require.NoError(t, s.SetNodeType(b, "event"))
	require.NoError(t, s.SetFeature(b, "trigger", "timer"))
	addNode(t, s, "task", geom.R(5, 5, 5, 5), b)
	assert.NotEqual(t, before, s.Fingerprint())

	require.NoError(t, tx.Rollback())
	assert.Equal(t, before, s.Fingerprint())
	assert.Equal(t, order, s.Nodes())
	assert.False(t, s.InTransaction())

	assert.ErrorIs(t, tx.Rollback(), graphstore.ErrNoTransaction)
	assert.ErrorIs(t, tx.Commit(), graphstore.ErrNoTransaction)
}

func TestTransaction_SingleOpenTransaction(t *testing.T) {
	s := New()
	tx, err := s.Begin("first")
	require.NoError(t, err)

	_, err = s.Begin("second")
	assert.ErrorIs(t, err, graphstore.ErrTransactionOpen)

	require.NoError(t, tx.Commit())
	_, err = s.Begin("third")
	assert.NoError(t, err)
}

func TestTransaction_CommitNotifiesObservers(t *testing.T) {
	s := New(WithSequentialIDs())
	rec := &batchRecorder{}
	s.Observe(rec)
	a := addNode(t, s, "task", geom.R(0, 0, 10, 10), "")
	before := s.Fingerprint()

	tx, err := s.Begin("retype")
	require.NoError(t, err)
	require.NoError(t, s.SetNodeType(a, "event"))
	// A no-op write is not journaled.
	require.NoError(t, s.SetNodeType(a, "event"))
	require.NoError(t, tx.Commit())

	require.Len(t, rec.batches, 1)
	b := rec.batches[0]
	assert.Equal(t, "retype", b.Name)
	assert.Equal(t, before, b.Before)
	assert.Equal(t, s.Fingerprint(), b.After)
	require.Len(t, b.Ops, 1)
	assert.Equal(t, graphstore.OpSetNodeType, b.Ops[0].Kind)
}

func TestTransaction_ObserverErrorIsReportedAfterCommit(t *testing.T) {
	s := New(WithSequentialIDs())
	s.Observe(&batchRecorder{err: errors.New("disk full")})

	tx, err := s.Begin("add")
	require.NoError(t, err)
	id := addNode(t, s, "task", geom.R(0, 0, 1, 1), "")

	err = tx.Commit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	_, ok := s.Node(id)
	assert.True(t, ok, "commit must stay applied")
}

func TestFingerprint_IndependentOfCreationOrder(t *testing.T) {
	s1 := New(WithSequentialIDs())
	s2 := New(WithSequentialIDs())

	addNode(t, s1, "task", geom.R(0, 0, 1, 1), "")
	id := addNode(t, s1, "task", geom.R(5, 5, 1, 1), "")
	require.NoError(t, s1.SetFeature(id, "k", "v"))

	addNode(t, s2, "task", geom.R(0, 0, 1, 1), "")
	id = addNode(t, s2, "task", geom.R(5, 5, 1, 1), "")
	require.NoError(t, s2.SetFeature(id, "k", "v"))

	assert.Equal(t, s1.Fingerprint(), s2.Fingerprint())
	require.NoError(t, s2.SetFeature(id, "k", ""))
	assert.NotEqual(t, s1.Fingerprint(), s2.Fingerprint())
}

func TestTopmostNodeAt(t *testing.T) {
	s := New(WithSequentialIDs())
	outer := addNode(t, s, "group", geom.R(0, 0, 100, 100), "")
	inner := addNode(t, s, "task", geom.R(10, 10, 20, 20), outer)

	n, ok := graphstore.TopmostNodeAt(s, geom.Pt(15, 15), nil)
	require.True(t, ok)
	assert.Equal(t, inner, n.ID)

	n, ok = graphstore.TopmostNodeAt(s, geom.Pt(15, 15), map[diagram.NodeID]struct{}{inner: {}})
	require.True(t, ok)
	assert.Equal(t, outer, n.ID)

	_, ok = graphstore.TopmostNodeAt(s, geom.Pt(500, 500), nil)
	assert.False(t, ok)
}

func TestTopmostNodeAt_NestingBeatsPaintOrder(t *testing.T) {
	s := New(WithSequentialIDs())
	task := addNode(t, s, "task", geom.R(10, 10, 20, 20), "")
	pool := addNode(t, s, "pool", geom.R(0, 0, 100, 100), "")
	sibling := addNode(t, s, "task", geom.R(60, 60, 20, 20), "")

	// The pool is painted after the task but contains it once reparented.
	n, ok := graphstore.TopmostNodeAt(s, geom.Pt(15, 15), nil)
	require.True(t, ok)
	assert.Equal(t, pool, n.ID, "unnested, the later node wins")

	require.NoError(t, s.SetParent(task, pool))
	n, ok = graphstore.TopmostNodeAt(s, geom.Pt(15, 15), nil)
	require.True(t, ok)
	assert.Equal(t, task, n.ID)

	// Overlapping nodes at the same depth fall back to paint order.
	require.NoError(t, s.SetParent(sibling, pool))
	require.NoError(t, s.SetBounds(sibling, geom.R(12, 12, 20, 20)))
	n, ok = graphstore.TopmostNodeAt(s, geom.Pt(15, 15), nil)
	require.True(t, ok)
	assert.Equal(t, sibling, n.ID)
}
