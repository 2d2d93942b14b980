// Package gesture is the entry point the host calls with pointer and
// keyboard input. It owns the edge creation machine and the drag engine and
// makes sure at most one of them runs at a time.
//
// Events that do not fit the current gesture, such as a pointer move with no
// gesture running, are ignored.
package gesture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/dragmerge"
	"github.com/specialistvlad/graphedit/internal/edgecreate"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"github.com/specialistvlad/graphedit/internal/highlight"
	"github.com/specialistvlad/graphedit/internal/ports"
)

// ErrGestureActive is returned when a gesture is started while another one
// is running.
var ErrGestureActive = errors.New("gesture: another gesture is active")

// Kind identifies the running gesture.
type Kind int

const (
	None Kind = iota
	EdgeCreation
	Drag
)

func (k Kind) String() string {
	switch k {
	case EdgeCreation:
		return "edge_creation"
	case Drag:
		return "drag"
	default:
		return "none"
	}
}

// Options configures a Controller.
type Options struct {
	Store graphstore.Store
	Model constraint.Model
	Sink  highlight.Sink
	// Nodes builds nodes synthesized by edge creation. When nil and Model is
	// a *constraint.Table, the table is used.
	Nodes     edgecreate.NodeFactory
	Configure edgecreate.NodeConfigurer
	Mode      ports.Mode
}

// Controller serializes input from the host into the two gesture engines.
// It is safe for concurrent use; events are applied one at a time.
type Controller struct {
	mu    sync.Mutex
	store graphstore.Store
	edges *edgecreate.Machine
	drag  *dragmerge.Engine
}

// New creates a controller over opts.Store.
func New(opts Options) *Controller {
	if opts.Sink == nil {
		opts.Sink = highlight.Discard
	}
	if opts.Nodes == nil {
		if t, ok := opts.Model.(*constraint.Table); ok {
			opts.Nodes = t
		}
	}
	return &Controller{
		store: opts.Store,
		edges: edgecreate.New(edgecreate.Options{
			Model:     opts.Model,
			Sink:      opts.Sink,
			Nodes:     opts.Nodes,
			Configure: opts.Configure,
			Mode:      opts.Mode,
		}),
		drag: dragmerge.New(opts.Model, opts.Sink),
	}
}

// Store returns the graph the controller edits.
func (c *Controller) Store() graphstore.Reader { return c.store }

// Active returns the running gesture.
func (c *Controller) Active() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *Controller) activeLocked() Kind {
	switch {
	case c.edges.State() != edgecreate.Idle:
		return EdgeCreation
	case c.drag.Active():
		return Drag
	default:
		return None
	}
}

// hovered hit-tests the graph at p.
func (c *Controller) hovered(p geom.Point) diagram.NodeID {
	n, ok := graphstore.TopmostNodeAt(c.store, p, nil)
	if !ok {
		return ""
	}
	return n.ID
}

// BeginEdgeCreation starts dragging a new edge out of a connector.
func (c *Controller) BeginEdgeCreation(ctx context.Context, node diagram.NodeID, port diagram.PortID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k := c.activeLocked(); k != None {
		return fmt.Errorf("begin edge creation during %s: %w", k, ErrGestureActive)
	}
	return c.edges.Begin(ctx, c.store, node, port)
}

// CycleEdgeType selects the next creation hint. ok is false when no edge
// creation is running.
func (c *Controller) CycleEdgeType(ctx context.Context) (hint diagram.EdgeCreationHint, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hint, err := c.edges.Cycle(ctx, c.store)
	return hint, err == nil
}

// MoveEdgeCreation follows the pointer during edge creation.
func (c *Controller) MoveEdgeCreation(ctx context.Context, pointer geom.Point, modifier bool) edgecreate.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.edges.Active() {
		return c.edges.State()
	}
	return c.edges.Move(ctx, c.store, pointer, c.hovered(pointer), modifier)
}

// AddBend adds a bend point to the edge being created.
func (c *Controller) AddBend(p geom.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edges.AddBend(p)
}

// CompleteEdgeCreation releases the pointer at release. Errors that keep
// the gesture open (edgecreate.ErrNoValidTarget) leave it running.
func (c *Controller) CompleteEdgeCreation(ctx context.Context, release geom.Point) (edgecreate.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.edges.Active() {
		ctxlog.FromContext(ctx).Debug("Ignoring edge completion without a gesture.")
		return edgecreate.Result{}, edgecreate.ErrNotCreating
	}
	return c.edges.Complete(ctx, c.store, release, c.hovered(release))
}

// CancelEdgeCreation aborts edge creation.
func (c *Controller) CancelEdgeCreation(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edges.Cancel(ctx)
}

// RetypeEdge applies a conversion hint to an existing edge. It is refused
// while any gesture runs.
func (c *Controller) RetypeEdge(ctx context.Context, edge diagram.EdgeID, hint diagram.EdgeCreationHint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k := c.activeLocked(); k != None {
		return fmt.Errorf("retype edge during %s: %w", k, ErrGestureActive)
	}
	return c.edges.Retype(ctx, c.store, edge, hint)
}

// StartDrag starts dragging nodes grabbed at origin.
func (c *Controller) StartDrag(ctx context.Context, nodes []diagram.NodeID, origin geom.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k := c.activeLocked(); k != None {
		return fmt.Errorf("start drag during %s: %w", k, ErrGestureActive)
	}
	return c.drag.Start(ctx, c.store, nodes, origin)
}

// DragMove follows the pointer during a drag.
func (c *Controller) DragMove(ctx context.Context, pointer geom.Point, modifier bool) dragmerge.Feedback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag.Move(ctx, c.store, pointer, modifier)
}

// Drop ends the drag at pointer.
func (c *Controller) Drop(ctx context.Context, pointer geom.Point, opts dragmerge.DropOptions) (dragmerge.DropResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag.Drop(ctx, c.store, pointer, opts)
}

// CancelDrag aborts the drag.
func (c *Controller) CancelDrag(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drag.Cancel(ctx)
}

// CancelAll aborts whatever is running. Hosts call it on escape, focus loss
// and deactivation.
func (c *Controller) CancelAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k := c.activeLocked(); k != None {
		ctxlog.FromContext(ctx).Debug("Canceling active gesture.", "gesture", k.String())
	}
	c.edges.Cancel(ctx)
	c.drag.Cancel(ctx)
}

// Provisional returns the dummy edge of a running edge creation together
// with the machine state. The state is edgecreate.Idle when none is running.
func (c *Controller) Provisional() (edgecreate.Provisional, edgecreate.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.edges.Active() {
		return edgecreate.Provisional{}, edgecreate.Idle
	}
	return c.edges.Provisional(), c.edges.State()
}

// Update runs fn against the store in one transaction named name, between
// gestures. The transaction is rolled back when fn fails.
func (c *Controller) Update(ctx context.Context, name string, fn func(g graphstore.Store) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k := c.activeLocked(); k != None {
		return fmt.Errorf("%s during %s: %w", name, k, ErrGestureActive)
	}
	logger := ctxlog.FromContext(ctx)
	tx, err := c.store.Begin(name)
	if err != nil {
		return fmt.Errorf("failed to open transaction for %s: %w", name, err)
	}
	if err := fn(c.store); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to roll back graph update.", "update", name, "error", rbErr)
		}
		return fmt.Errorf("failed to %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		logger.Warn("Commit observers failed after graph update.", "update", name, "error", err)
	}
	logger.Debug("Graph updated.", "update", name)
	return nil
}
