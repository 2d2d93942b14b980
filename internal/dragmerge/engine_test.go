package dragmerge_test

import (
	"errors"
	"testing"

	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/dragmerge"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"github.com/specialistvlad/graphedit/internal/highlight"
	"github.com/specialistvlad/graphedit/internal/inmemorygraph"
	"github.com/specialistvlad/graphedit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scene struct {
	store *inmemorygraph.Store
	pool  diagram.NodeID
	task  diagram.NodeID
}

// newScene lays out a pool at the origin holding one task.
func newScene(t *testing.T) scene {
	s := testutil.NewStore()
	pool := testutil.AddNode(t, s, "pool", geom.R(0, 0, 600, 300), "")
	task := testutil.AddNode(t, s, "task", geom.R(50, 50, 100, 60), pool)
	return scene{store: s, pool: pool, task: task}
}

func addTemplate(t *testing.T, s graphstore.Store, typ diagram.Type, bounds geom.Rect, features map[string]string) diagram.NodeID {
	t.Helper()
	id, err := s.AddNode(graphstore.NodeSpec{Type: typ, Bounds: bounds, Features: features})
	require.NoError(t, err)
	return id
}

func TestStart_Validation(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sc := newScene(t)
	e := dragmerge.New(testutil.Rules(), nil)

	require.ErrorIs(t, e.Start(ctx, sc.store, nil, geom.Pt(0, 0)), dragmerge.ErrEmptySelection)
	require.ErrorIs(t, e.Start(ctx, sc.store, []diagram.NodeID{"node-404"}, geom.Pt(0, 0)), graphstore.ErrNotFound)
	assert.False(t, e.Active())

	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{sc.task, sc.pool, sc.task}, geom.Pt(0, 0)))
	require.ErrorIs(t, e.Start(ctx, sc.store, []diagram.NodeID{sc.task}, geom.Pt(0, 0)), dragmerge.ErrSessionActive)

	sess, ok := e.Session()
	require.True(t, ok)
	assert.Equal(t, []diagram.NodeID{sc.task, sc.pool}, sess.Dragged)
	assert.Equal(t, []diagram.NodeID{sc.pool}, sess.Roots, "the task moves with its dragged pool")
}

func TestMove_HighlightsMergeTargetAndParents(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sc := newScene(t)
	tmpl := addTemplate(t, sc.store, "user_task", geom.R(700, 0, 100, 60), map[string]string{"marker": "user"})
	rec := &highlight.Recorder{}
	e := dragmerge.New(testutil.Rules(), rec)

	assert.Equal(t, dragmerge.Feedback{}, e.Move(ctx, sc.store, geom.Pt(1, 1), false), "no session")

	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{tmpl}, geom.Pt(750, 30)))
	fb := e.Move(ctx, sc.store, geom.Pt(100, 80), false)

	assert.Equal(t, geom.Vector{DX: -650, DY: 50}, fb.Offset)
	assert.Equal(t, []diagram.NodeID{sc.pool}, fb.ActiveParents)
	assert.Equal(t, diagram.MergePair{Template: tmpl, Target: sc.task}, fb.Merge)
	assert.Equal(t, []highlight.Request{{Node: sc.task, Label: highlight.MergeTarget}}, rec.WithLabel(highlight.MergeTarget))
	assert.Equal(t, []highlight.Request{{Node: sc.pool, Label: highlight.ActiveParent}}, rec.WithLabel(highlight.ActiveParent))

	// Highlights are refreshed, not accumulated.
	fb = e.Move(ctx, sc.store, geom.Pt(900, 500), false)
	assert.Empty(t, fb.ActiveParents)
	assert.True(t, fb.Merge.IsZero())
	assert.Empty(t, rec.Shown())

	sess, _ := e.Session()
	assert.Equal(t, geom.Vector{DX: 150, DY: 470}, sess.Offset)
}

// A zero-degree template dropped on a compatible node disappears and leaves
// its feature on the target.
func TestDrop_MergeAdaptor(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sc := newScene(t)
	tmpl := addTemplate(t, sc.store, "user_task", geom.R(700, 0, 100, 60), map[string]string{"marker": "user"})
	rec := &highlight.Recorder{}
	e := dragmerge.New(testutil.Rules(), rec)

	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{tmpl}, geom.Pt(750, 30)))
	e.Move(ctx, sc.store, geom.Pt(500, 500), false)
	res, err := e.Drop(ctx, sc.store, geom.Pt(100, 80), dragmerge.DropOptions{
		FinalWidth:  120,
		FinalHeight: 80,
		LabelText:   "Review",
		LabelType:   "name",
	})
	require.NoError(t, err)

	assert.Equal(t, diagram.MergePair{Template: tmpl, Target: sc.task}, res.Merged)
	assert.False(t, res.Fallback)
	_, ok := sc.store.Node(tmpl)
	assert.False(t, ok, "template is deleted")

	target, ok := sc.store.Node(sc.task)
	require.True(t, ok)
	assert.Equal(t, diagram.Type("user_task"), target.Type)
	assert.Equal(t, "user", target.Features["marker"])
	assert.Equal(t, geom.R(40, 40, 120, 80), target.Bounds)
	assert.Equal(t, sc.pool, target.Parent)
	labels := sc.store.LabelsOf(string(sc.task))
	require.Len(t, labels, 1)
	assert.Equal(t, "Review", labels[0].Text)

	assert.False(t, e.Active())
	assert.Empty(t, rec.Shown())
	assert.False(t, sc.store.InTransaction())
}

func TestDrop_IdempotentReparent(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sc := newScene(t)
	e := dragmerge.New(testutil.Rules(), nil)
	before := sc.store.Fingerprint()

	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{sc.task}, geom.Pt(100, 80)))
	res, err := e.Drop(ctx, sc.store, geom.Pt(100, 80), dragmerge.DropOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Reparented)
	assert.True(t, res.Merged.IsZero())
	assert.Equal(t, before, sc.store.Fingerprint())

	// A real move changes the position only.
	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{sc.task}, geom.Pt(100, 80)))
	_, err = e.Drop(ctx, sc.store, geom.Pt(300, 180), dragmerge.DropOptions{})
	require.NoError(t, err)
	n, _ := sc.store.Node(sc.task)
	assert.Equal(t, sc.pool, n.Parent)
	assert.Equal(t, geom.R(250, 150, 100, 60), n.Bounds)
}

func TestDrop_ReparentsIntoAndOutOfContainers(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sc := newScene(t)
	lane := testutil.AddNode(t, sc.store, "lane", geom.R(0, 150, 600, 150), sc.pool)
	loose := testutil.AddNode(t, sc.store, "task", geom.R(700, 400, 100, 60), "")
	port := testutil.AddPort(t, sc.store, loose)
	e := dragmerge.New(testutil.Rules(), nil)

	// Into the lane: it is deeper than the pool that also contains the point.
	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{loose}, geom.Pt(750, 430)))
	res, err := e.Drop(ctx, sc.store, geom.Pt(300, 220), dragmerge.DropOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[diagram.NodeID]diagram.NodeID{loose: lane}, res.Reparented)
	assert.Equal(t, []diagram.NodeID{lane, sc.pool}, sc.store.Ancestors(loose))
	p, _ := sc.store.Port(port)
	assert.Equal(t, geom.Pt(300, 220), p.Location, "ports follow the node")

	// Out onto the canvas.
	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{loose}, geom.Pt(300, 220)))
	res, err = e.Drop(ctx, sc.store, geom.Pt(900, 600), dragmerge.DropOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[diagram.NodeID]diagram.NodeID{loose: ""}, res.Reparented)
	n, _ := sc.store.Node(loose)
	assert.Empty(t, n.Parent)
}

func TestMove_ContainerMustAcceptWholeSelection(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sc := newScene(t)
	lane := testutil.AddNode(t, sc.store, "lane", geom.R(700, 0, 300, 100), "")
	e := dragmerge.New(testutil.Rules(), nil)

	// A lane fits in a pool.
	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{lane}, geom.Pt(850, 50)))
	fb := e.Move(ctx, sc.store, geom.Pt(300, 200), false)
	assert.Equal(t, []diagram.NodeID{sc.pool}, fb.ActiveParents)
	e.Cancel(ctx)

	// A pool fits nowhere, so a selection holding one fits nowhere either.
	other := testutil.AddNode(t, sc.store, "pool", geom.R(0, 400, 200, 100), "")
	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{lane, other}, geom.Pt(850, 50)))
	fb = e.Move(ctx, sc.store, geom.Pt(300, 200), false)
	assert.Empty(t, fb.ActiveParents)
	assert.Empty(t, fb.ParentOf[lane])
}

func tieBreakRules(t *testing.T) *constraint.Table {
	rules := constraint.NewTable()
	require.NoError(t, rules.AddNodeRule(constraint.NodeRule{
		Type:       "group",
		Children:   []diagram.Type{"note"},
		ConvertsTo: []diagram.Type{"note"},
	}))
	require.NoError(t, rules.AddNodeRule(constraint.NodeRule{Type: "note"}))
	return rules
}

func TestDrop_GroupingWinsUnlessModifierHeld(t *testing.T) {
	ctx, _ := testutil.Context(t)

	for _, tc := range []struct {
		name     string
		modifier bool
		merged   bool
	}{
		{name: "group by default", modifier: false, merged: false},
		{name: "modifier forces merge", modifier: true, merged: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := testutil.NewStore()
			group := testutil.AddNode(t, s, "group", geom.R(0, 0, 200, 200), "")
			note := testutil.AddNode(t, s, "note", geom.R(300, 0, 40, 40), "")
			rec := &highlight.Recorder{}
			e := dragmerge.New(tieBreakRules(t), rec)

			require.NoError(t, e.Start(ctx, s, []diagram.NodeID{note}, geom.Pt(320, 20)))
			fb := e.Move(ctx, s, geom.Pt(100, 100), tc.modifier)
			assert.Equal(t, diagram.MergePair{Template: note, Target: group}, fb.Candidate)
			assert.Equal(t, []diagram.NodeID{group}, fb.ActiveParents)
			assert.Equal(t, tc.merged, !fb.Merge.IsZero())
			assert.Len(t, rec.WithLabel(highlight.MergeTarget), map[bool]int{true: 1, false: 0}[tc.merged])
			assert.Len(t, rec.WithLabel(highlight.ActiveParent), map[bool]int{true: 0, false: 1}[tc.merged])

			res, err := e.Drop(ctx, s, geom.Pt(100, 100), dragmerge.DropOptions{Modifier: tc.modifier})
			require.NoError(t, err)
			_, exists := s.Node(note)
			assert.Equal(t, !tc.merged, exists)
			if !tc.merged {
				assert.Equal(t, map[diagram.NodeID]diagram.NodeID{note: group}, res.Reparented)
			}
		})
	}
}

func TestDrop_WiredTemplateTransfersEdges(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sc := newScene(t)
	other := testutil.AddNode(t, sc.store, "task", geom.R(700, 100, 100, 60), "")
	tmpl := testutil.AddNode(t, sc.store, "user_task", geom.R(850, 100, 100, 60), "")
	edge := testutil.Connect(t, sc.store, other, tmpl, "sequence_flow")
	require.NoError(t, sc.store.SetEdgeBends(edge, []geom.Point{geom.Pt(825, 200)}))
	e := dragmerge.New(testutil.Rules(), nil)

	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{other, tmpl}, geom.Pt(900, 130)))
	// Released slightly off the target's center; the selection snaps onto it.
	res, err := e.Drop(ctx, sc.store, geom.Pt(110, 85), dragmerge.DropOptions{})
	require.NoError(t, err)

	assert.Equal(t, diagram.MergePair{Template: tmpl, Target: sc.task}, res.Merged)
	assert.Equal(t, []diagram.EdgeID{edge}, res.Transferred)
	_, ok := sc.store.Node(tmpl)
	assert.False(t, ok)

	src, tgt := testutil.Endpoints(t, sc.store, edge)
	assert.Equal(t, other, src)
	assert.Equal(t, sc.task, tgt)
	target, _ := sc.store.Node(sc.task)
	assert.Equal(t, diagram.Type("task"), target.Type, "wired merges keep the target type")

	moved, _ := sc.store.Node(other)
	assert.Equal(t, geom.R(-100, 50, 100, 60), moved.Bounds)
	e2, _ := sc.store.Edge(edge)
	assert.Equal(t, []geom.Point{geom.Pt(25, 150)}, e2.Bends)
	p, _ := sc.store.Port(e2.Target)
	assert.Equal(t, target.Bounds.Center(), p.Location)
}

type failingStore struct {
	graphstore.Store
	err error
}

func (f failingStore) RemoveNode(diagram.NodeID) error { return f.err }

func TestDrop_FallsBackToPlainMove(t *testing.T) {
	ctx, logs := testutil.Context(t)
	sc := newScene(t)
	tmpl := addTemplate(t, sc.store, "user_task", geom.R(700, 0, 100, 60), map[string]string{"marker": "user"})
	boom := errors.New("boom")
	e := dragmerge.New(testutil.Rules(), nil)

	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{tmpl}, geom.Pt(750, 30)))
	res, err := e.Drop(ctx, failingStore{Store: sc.store, err: boom}, geom.Pt(100, 80), dragmerge.DropOptions{})
	require.ErrorIs(t, err, boom)
	assert.True(t, res.Fallback)
	assert.Equal(t, []diagram.NodeID{tmpl}, res.Moved)

	target, _ := sc.store.Node(sc.task)
	assert.Equal(t, diagram.Type("task"), target.Type, "merge was rolled back")
	assert.Empty(t, target.Features)
	n, ok := sc.store.Node(tmpl)
	require.True(t, ok)
	assert.Equal(t, geom.R(50, 50, 100, 60), n.Bounds)
	assert.False(t, e.Active())
	assert.False(t, sc.store.InTransaction())
	assert.Contains(t, logs.String(), "falling back to a plain move")
}

func TestCancelAndDropWithoutSession(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sc := newScene(t)
	tmpl := addTemplate(t, sc.store, "user_task", geom.R(700, 0, 100, 60), nil)
	rec := &highlight.Recorder{}
	e := dragmerge.New(testutil.Rules(), rec)
	before := sc.store.Fingerprint()

	res, err := e.Drop(ctx, sc.store, geom.Pt(0, 0), dragmerge.DropOptions{})
	require.NoError(t, err)
	assert.Equal(t, dragmerge.DropResult{}, res)

	require.NoError(t, e.Start(ctx, sc.store, []diagram.NodeID{tmpl}, geom.Pt(750, 30)))
	e.Move(ctx, sc.store, geom.Pt(100, 80), false)
	require.NotEmpty(t, rec.Shown())
	e.Cancel(ctx)
	e.Cancel(ctx)

	assert.False(t, e.Active())
	assert.Empty(t, rec.Shown())
	assert.Equal(t, before, sc.store.Fingerprint())
}
