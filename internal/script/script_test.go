package script_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/graphedit/internal/gesture"
	"github.com/specialistvlad/graphedit/internal/script"
	"github.com/specialistvlad/graphedit/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Testdata(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			ctx, _ := testutil.Context(t)
			s, err := script.LoadFile(f)
			require.NoError(t, err)

			store := testutil.NewStore()
			r := script.NewRunner(store, testutil.Rules(), gesture.Options{})
			rep, err := r.Run(ctx, s)
			require.NoError(t, err, "failures: %v", rep.Failures)
			assert.Equal(t, len(s.Steps), rep.Steps)
			assert.Equal(t, store.Fingerprint(), rep.Fingerprint)
			assert.Equal(t, gesture.None, r.Controller.Active())
		})
	}
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, err := script.Load(strings.NewReader(`
name: wrong guess
scene:
  nodes:
    - {id: a, type: task, bounds: {x: 0, y: 0, w: 100, h: 60}}
steps:
  - {action: begin_edge, node: a}
  - {action: move, at: {x: 500, y: 500}}
expect:
  nodes: 2
  types: {a: user_task}
  missing: [a]
`))
	require.NoError(t, err)

	store := testutil.NewStore()
	rep, err := script.NewRunner(store, testutil.Rules(), gesture.Options{}).Run(ctx, s)
	require.ErrorIs(t, err, script.ErrExpectation)
	assert.Equal(t, []string{
		"node a: want it deleted",
		"node a: want type user_task, got task",
		"want 2 nodes, got 1",
	}, rep.Failures)
}

func TestRun_UnexpectedStepError(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s, err := script.Load(strings.NewReader(`
scene:
  nodes:
    - {id: e, type: end_event, bounds: {x: 0, y: 0, w: 36, h: 36}}
steps:
  - {action: begin_edge, node: e}
`))
	require.NoError(t, err)

	rep, err := script.NewRunner(testutil.NewStore(), testutil.Rules(), gesture.Options{}).Run(ctx, s)
	require.ErrorIs(t, err, script.ErrStep)
	assert.Contains(t, err.Error(), "step 1 (begin_edge)")
	assert.Equal(t, 1, rep.Steps)
}

func TestLoad_Validation(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		want string
	}{
		{name: "empty", src: "", want: "empty document"},
		{name: "unknown key", src: "steps: []\nbogus: 1\n", want: "field bogus not found"},
		{name: "unknown action", src: "steps:\n  - {action: fly}\n", want: `unknown action "fly"`},
		{name: "missing position", src: "steps:\n  - {action: move}\n", want: "needs at"},
		{name: "unknown error name", src: "steps:\n  - {action: cycle, expect_error: oops}\n", want: `unknown expected error "oops"`},
		{
			name: "parent after child",
			src:  "scene:\n  nodes:\n    - {id: t, type: task, parent: p}\n    - {id: p, type: pool}\n",
			want: `parent "p" not declared before it`,
		},
		{
			name: "dangling edge",
			src:  "scene:\n  nodes:\n    - {id: t, type: task}\n  edges:\n    - {id: e, type: sequence_flow, from: t, to: x}\n",
			want: "known from/to nodes",
		},
		{
			name: "duplicate edge",
			src:  "scene:\n  nodes:\n    - {id: t, type: task}\n  edges:\n    - {id: e, type: sequence_flow, from: t, to: t}\n    - {id: e, type: sequence_flow, from: t, to: t}\n",
			want: `scene edge "e" declared twice`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := script.Load(strings.NewReader(tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestScene_AddToAndLoadSceneFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodes:
  - {id: pool, type: pool, bounds: {x: 0, y: 0, w: 600, h: 300}}
  - {id: t, type: task, bounds: {x: 250, y: 90, w: 100, h: 60}, parent: pool, labels: {name: Review}}
  - {id: u, type: user_task, bounds: {x: 400, y: 90, w: 100, h: 60}, parent: pool}
edges:
  - {id: e, type: sequence_flow, from: t, to: u, bends: [{x: 375, y: 120}]}
`), 0o600))

	sc, err := script.LoadSceneFile(path)
	require.NoError(t, err)
	store := testutil.NewStore()
	h, err := sc.AddTo(store)
	require.NoError(t, err)
	require.Len(t, h.Nodes, 3)

	task, ok := store.Node(h.Nodes["t"])
	require.True(t, ok)
	assert.Equal(t, h.Nodes["pool"], task.Parent)
	require.Len(t, store.LabelsOf(string(task.ID)), 1)
	assert.Equal(t, "Review", store.LabelsOf(string(task.ID))[0].Text)

	src, tgt := testutil.Endpoints(t, store, h.Edges["e"])
	assert.Equal(t, h.Nodes["t"], src)
	assert.Equal(t, h.Nodes["u"], tgt)

	require.NoError(t, os.WriteFile(path, []byte("nodes:\n  - {id: a}\n"), 0o600))
	_, err = script.LoadSceneFile(path)
	require.ErrorIs(t, err, script.ErrInvalidScript)
}
