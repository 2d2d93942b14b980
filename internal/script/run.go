package script

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/dragmerge"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/gesture"
	"github.com/specialistvlad/graphedit/internal/graphstore"
)

var (
	// ErrStep wraps an unexpected step failure.
	ErrStep = errors.New("script: step failed")
	// ErrExpectation is returned when the final graph does not match.
	ErrExpectation = errors.New("script: expectation not met")
)

// Report is the outcome of a run.
type Report struct {
	Name        string
	Steps       int
	Fingerprint string
	// Failures lists unmet expectations.
	Failures []string
	// Names maps script-local names to store handles.
	Names map[string]string
}

// Runner replays scripts against a store through a controller built on it.
type Runner struct {
	Store      graphstore.Store
	Controller *gesture.Controller
}

// NewRunner creates a runner whose controller uses model.
func NewRunner(store graphstore.Store, model constraint.Model, opts gesture.Options) *Runner {
	opts.Store = store
	opts.Model = model
	return &Runner{Store: store, Controller: gesture.New(opts)}
}

type run struct {
	*Runner
	nodes map[string]diagram.NodeID
	edges map[string]diagram.EdgeID
}

// Run builds the scene, plays the steps and checks the expectations. It
// stops at the first step whose outcome differs from the script.
func (r *Runner) Run(ctx context.Context, s *Script) (Report, error) {
	ctx, logger := ctxlog.With(ctx, "script", s.Name)
	st := &run{
		Runner: r,
		nodes:  make(map[string]diagram.NodeID),
		edges:  make(map[string]diagram.EdgeID),
	}
	rep := Report{Name: s.Name}

	if err := st.buildScene(s.Scene); err != nil {
		return rep, fmt.Errorf("building scene: %w", err)
	}
	logger.Debug("Scene built.", "nodes", len(s.Scene.Nodes), "edges", len(s.Scene.Edges))

	for i, step := range s.Steps {
		err := st.step(ctx, step)
		rep.Steps = i + 1
		if step.ExpectError != "" {
			want := gesture.ErrorNames[step.ExpectError]
			if !errors.Is(err, want) {
				return rep, fmt.Errorf("step %d (%s): want error %s, got %v: %w", i+1, step.Action, step.ExpectError, err, ErrStep)
			}
			logger.Debug("Step failed as expected.", "step", i+1, "action", step.Action, "error", err)
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("step %d (%s): %w: %w", i+1, step.Action, ErrStep, err)
		}
	}
	// A script that ends mid-gesture leaves nothing behind.
	r.Controller.CancelAll(ctx)

	rep.Fingerprint = r.Store.Fingerprint()
	rep.Names = st.names()
	rep.Failures = st.check(s.Expect)
	if len(rep.Failures) > 0 {
		for _, f := range rep.Failures {
			logger.Warn("Expectation not met.", "failure", f)
		}
		return rep, fmt.Errorf("%d of the expectations failed: %w", len(rep.Failures), ErrExpectation)
	}
	logger.Info("Script passed.", "steps", rep.Steps)
	return rep, nil
}

func (st *run) buildScene(sc Scene) error {
	if len(sc.Nodes) == 0 && len(sc.Edges) == 0 {
		return nil
	}
	tx, err := st.Store.Begin("scene")
	if err != nil {
		return err
	}
	h, err := sc.AddTo(st.Store)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	maps.Copy(st.nodes, h.Nodes)
	maps.Copy(st.edges, h.Edges)
	return tx.Commit()
}

// node resolves a script name, falling back to a raw store handle.
func (st *run) node(name string) diagram.NodeID {
	if id, ok := st.nodes[name]; ok {
		return id
	}
	return diagram.NodeID(name)
}

func (st *run) edge(name string) diagram.EdgeID {
	if id, ok := st.edges[name]; ok {
		return id
	}
	return diagram.EdgeID(name)
}

func (st *run) step(ctx context.Context, s Step) error {
	c := st.Controller
	at := geom.Point{}
	if s.At != nil {
		at = *s.At
	}
	switch s.Action {
	case BeginEdge:
		return c.BeginEdgeCreation(ctx, st.node(s.Node), "")
	case Cycle:
		c.CycleEdgeType(ctx)
	case Move:
		c.MoveEdgeCreation(ctx, at, s.Modifier)
	case Bend:
		c.AddBend(at)
	case Complete:
		// The pointer is where the release happens; modifier state is the
		// one of the last move.
		res, err := c.CompleteEdgeCreation(ctx, at)
		if err != nil {
			return err
		}
		if s.As != "" && res.NewNode != "" {
			st.nodes[s.As] = res.NewNode
		}
		if s.EdgeAs != "" {
			st.edges[s.EdgeAs] = res.Edge
		}
	case Cancel:
		c.CancelEdgeCreation(ctx)
		c.CancelDrag(ctx)
	case CancelAll:
		c.CancelAll(ctx)
	case Retype:
		return c.RetypeEdge(ctx, st.edge(s.Edge), diagram.EdgeCreationHint{Type: s.Type, Reversed: s.Reversed})
	case StartDrag:
		ids := make([]diagram.NodeID, 0, len(s.Nodes))
		for _, n := range s.Nodes {
			ids = append(ids, st.node(n))
		}
		return c.StartDrag(ctx, ids, at)
	case DragMove:
		c.DragMove(ctx, at, s.Modifier)
	case Drop:
		_, err := c.Drop(ctx, at, dragmerge.DropOptions{
			Modifier:    s.Modifier,
			FinalWidth:  s.Width,
			FinalHeight: s.Height,
			LabelText:   s.Label,
			LabelType:   s.LabelType,
		})
		return err
	}
	return nil
}

func (st *run) names() map[string]string {
	out := make(map[string]string, len(st.nodes)+len(st.edges))
	for k, v := range st.nodes {
		out[k] = string(v)
	}
	for k, v := range st.edges {
		out[k] = string(v)
	}
	return out
}

// check compares the store with exp and returns one line per mismatch,
// sorted for stable output.
func (st *run) check(exp Expect) []string {
	g := st.Store
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	if exp.Nodes != nil && len(g.Nodes()) != *exp.Nodes {
		fail("want %d nodes, got %d", *exp.Nodes, len(g.Nodes()))
	}
	if exp.EdgeCount != nil && len(g.Edges()) != *exp.EdgeCount {
		fail("want %d edges, got %d", *exp.EdgeCount, len(g.Edges()))
	}
	for name, typ := range exp.Types {
		n, ok := g.Node(st.node(name))
		switch {
		case !ok:
			fail("node %s: missing", name)
		case n.Type != typ:
			fail("node %s: want type %s, got %s", name, typ, n.Type)
		}
	}
	for name, parent := range exp.Parents {
		n, ok := g.Node(st.node(name))
		want := diagram.NodeID("")
		if parent != "" {
			want = st.node(parent)
		}
		switch {
		case !ok:
			fail("node %s: missing", name)
		case n.Parent != want:
			fail("node %s: want parent %q, got %q", name, want, n.Parent)
		}
	}
	for name, features := range exp.Features {
		n, ok := g.Node(st.node(name))
		if !ok {
			fail("node %s: missing", name)
			continue
		}
		for k, v := range features {
			if n.Features[k] != v {
				fail("node %s: want feature %s=%q, got %q", name, k, v, n.Features[k])
			}
		}
	}
	for _, name := range exp.Missing {
		if _, ok := g.Node(st.node(name)); ok {
			fail("node %s: want it deleted", name)
		}
	}
	for name, want := range exp.Edges {
		e, ok := g.Edge(st.edge(name))
		if !ok {
			fail("edge %s: missing", name)
			continue
		}
		if want.Type != "" && e.Type != want.Type {
			fail("edge %s: want type %s, got %s", name, want.Type, e.Type)
		}
		src, _ := g.PortOwner(e.Source)
		tgt, _ := g.PortOwner(e.Target)
		if want.Source != "" && src != st.node(want.Source) {
			fail("edge %s: want source %s, got %s", name, st.node(want.Source), src)
		}
		if want.Target != "" && tgt != st.node(want.Target) {
			fail("edge %s: want target %s, got %s", name, st.node(want.Target), tgt)
		}
		if want.Bends != nil && !slices.Equal(want.Bends, e.Bends) {
			fail("edge %s: want bends %v, got %v", name, want.Bends, e.Bends)
		}
	}
	slices.Sort(failures)
	return failures
}
