// Package dragmerge decides what happens when a selection of nodes is
// dragged and dropped: plain moves, reparenting into containers, and merging
// template nodes into the node they are dropped on.
//
// Nothing is written to the graph store until Drop. Move only computes
// Feedback and refreshes highlights, so it is safe to call on every pointer
// event.
package dragmerge

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"github.com/specialistvlad/graphedit/internal/highlight"
)

var (
	// ErrSessionActive is returned by Start while a drag is running.
	ErrSessionActive = errors.New("dragmerge: drag session already active")
	// ErrEmptySelection is returned by Start without nodes to drag.
	ErrEmptySelection = errors.New("dragmerge: nothing to drag")
)

// Session is the state of a running drag.
type Session struct {
	// Dragged is the selection in the order it was given.
	Dragged []diagram.NodeID
	// Roots are the dragged nodes whose parent is not dragged as well.
	Roots  []diagram.NodeID
	Origin geom.Point
	Offset geom.Vector
	// ActiveParents as of the last Move.
	ActiveParents []diagram.NodeID
}

// Feedback is what a drag would do if dropped at the current pointer.
type Feedback struct {
	Offset geom.Vector
	// ActiveParents are the legal containers under the dragged roots,
	// without duplicates, in root order.
	ActiveParents []diagram.NodeID
	// ParentOf maps each root to the container it would be dropped into;
	// empty for the canvas.
	ParentOf map[diagram.NodeID]diagram.NodeID
	// Candidate is the detected merge pair, if any.
	Candidate diagram.MergePair
	// Merge is the pair that a drop would apply. It is zero when the tie-break
	// prefers grouping into Candidate.Target.
	Merge diagram.MergePair
}

type session struct {
	Session
	dragged  map[diagram.NodeID]struct{}
	affected map[diagram.NodeID]struct{}
}

// Engine runs one drag session at a time. It is not safe for concurrent use.
type Engine struct {
	model   constraint.Model
	sink    highlight.Sink
	session *session
}

// New creates an engine rendering feedback into sink.
func New(model constraint.Model, sink highlight.Sink) *Engine {
	if sink == nil {
		sink = highlight.Discard
	}
	return &Engine{model: model, sink: sink}
}

// Active reports whether a drag session is running.
func (e *Engine) Active() bool { return e.session != nil }

// Session returns a copy of the running session.
func (e *Engine) Session() (Session, bool) {
	if e.session == nil {
		return Session{}, false
	}
	s := e.session.Session
	s.Dragged = slices.Clone(s.Dragged)
	s.Roots = slices.Clone(s.Roots)
	s.ActiveParents = slices.Clone(s.ActiveParents)
	return s, true
}

// Start records a drag of the given nodes grabbed at origin.
func (e *Engine) Start(ctx context.Context, g graphstore.Reader, dragged []diagram.NodeID, origin geom.Point) error {
	if e.session != nil {
		return ErrSessionActive
	}
	s := &session{
		Session:  Session{Origin: origin},
		dragged:  make(map[diagram.NodeID]struct{}),
		affected: make(map[diagram.NodeID]struct{}),
	}
	for _, id := range dragged {
		if _, dup := s.dragged[id]; dup {
			continue
		}
		if _, ok := g.Node(id); !ok {
			return fmt.Errorf("start drag of '%s': %w", id, graphstore.ErrNotFound)
		}
		s.dragged[id] = struct{}{}
		s.Dragged = append(s.Dragged, id)
	}
	if len(s.Dragged) == 0 {
		return ErrEmptySelection
	}

	// Dragged nodes and everything inside them can be neither parents nor
	// merge targets.
	for _, n := range g.Nodes() {
		if _, ok := s.dragged[n.ID]; ok {
			s.affected[n.ID] = struct{}{}
			continue
		}
		for _, a := range g.Ancestors(n.ID) {
			if _, ok := s.dragged[a]; ok {
				s.affected[n.ID] = struct{}{}
				break
			}
		}
	}
	for _, id := range s.Dragged {
		n, _ := g.Node(id)
		if _, ok := s.dragged[n.Parent]; !ok {
			s.Roots = append(s.Roots, id)
		}
	}

	e.session = s
	ctxlog.FromContext(ctx).Debug("Drag started.", "nodes", len(s.Dragged), "roots", len(s.Roots), "origin", origin)
	return nil
}

// Move recomputes the feedback for pointer and refreshes the highlights.
// Holding the modifier forces the merge affordance when grouping would
// otherwise win. Without a session Move returns zero Feedback.
func (e *Engine) Move(ctx context.Context, g graphstore.Reader, pointer geom.Point, modifier bool) Feedback {
	if e.session == nil {
		return Feedback{}
	}
	fb := e.detect(g, pointer, modifier)
	e.session.Offset = fb.Offset
	e.session.ActiveParents = fb.ActiveParents

	e.sink.Clear()
	if !fb.Merge.IsZero() {
		e.sink.Highlight(highlight.Request{Node: fb.Merge.Target, Label: highlight.MergeTarget})
	}
	for _, p := range fb.ActiveParents {
		if p == fb.Merge.Target {
			continue
		}
		e.sink.Highlight(highlight.Request{Node: p, Label: highlight.ActiveParent})
	}
	return fb
}

// Cancel ends the session without touching the graph.
func (e *Engine) Cancel(ctx context.Context) {
	if e.session == nil {
		return
	}
	ctxlog.FromContext(ctx).Debug("Drag canceled.", "nodes", len(e.session.Dragged))
	e.clear()
}

func (e *Engine) clear() {
	e.session = nil
	e.sink.Clear()
}

// detect computes active parents and the merge pair for the dragged roots
// translated so that origin lands on pointer.
func (e *Engine) detect(g graphstore.Reader, pointer geom.Point, modifier bool) Feedback {
	s := e.session
	fb := Feedback{
		Offset:   pointer.Sub(s.Origin),
		ParentOf: make(map[diagram.NodeID]diagram.NodeID, len(s.Roots)),
	}

	var region geom.Rect
	for _, id := range s.Roots {
		n, _ := g.Node(id)
		region = region.Union(n.Bounds.Translate(fb.Offset))
	}

	nodes := g.Nodes()
	for _, id := range s.Roots {
		n, _ := g.Node(id)
		center := n.Bounds.Translate(fb.Offset).Center()
		var (
			best      diagram.NodeID
			bestDepth = -1
		)
		// Later nodes paint on top, so they win depth ties.
		for _, c := range nodes {
			if _, skip := s.affected[c.ID]; skip {
				continue
			}
			if !c.Bounds.Intersects(region) || !c.Bounds.Contains(center) {
				continue
			}
			if !e.acceptsAll(g, c.Type, s.Roots) {
				continue
			}
			if d := len(g.Ancestors(c.ID)); d >= bestDepth {
				best, bestDepth = c.ID, d
			}
		}
		fb.ParentOf[id] = best
		if best != "" && !slices.Contains(fb.ActiveParents, best) {
			fb.ActiveParents = append(fb.ActiveParents, best)
		}
	}

	fb.Candidate = e.findMergePair(g, fb.Offset)
	fb.Merge = fb.Candidate
	if !fb.Candidate.IsZero() && slices.Contains(fb.ActiveParents, fb.Candidate.Target) && !modifier {
		fb.Merge = diagram.MergePair{}
	}
	return fb
}

// acceptsAll reports whether a node of parentType may contain every root.
func (e *Engine) acceptsAll(g graphstore.Reader, parentType diagram.Type, roots []diagram.NodeID) bool {
	for _, r := range roots {
		if !e.model.IsValidChild(g, parentType, r) {
			return false
		}
	}
	return true
}

// findMergePair returns the first dragged root that is an adaptor and sits
// over a node it may be merged into.
func (e *Engine) findMergePair(g graphstore.Reader, offset geom.Vector) diagram.MergePair {
	s := e.session
	for _, id := range s.Roots {
		if !e.isAdaptor(g, id) {
			continue
		}
		n, _ := g.Node(id)
		target, ok := graphstore.TopmostNodeAt(g, n.Bounds.Translate(offset).Center(), s.affected)
		if !ok {
			continue
		}
		if slices.Contains(e.model.NodeConversionTypes(g, target.ID), n.Type) {
			return diagram.MergePair{Template: id, Target: target.ID}
		}
	}
	return diagram.MergePair{}
}

// isAdaptor reports whether node has no edges leaving the dragged selection.
func (e *Engine) isAdaptor(g graphstore.Reader, node diagram.NodeID) bool {
	for _, edge := range g.EdgesOf(node) {
		for _, p := range []diagram.PortID{edge.Source, edge.Target} {
			owner, _ := g.PortOwner(p)
			if _, ok := e.session.affected[owner]; !ok {
				return false
			}
		}
	}
	return true
}
