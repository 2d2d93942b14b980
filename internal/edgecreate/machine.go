package edgecreate

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
	"github.com/specialistvlad/graphedit/internal/ports"
)

var (
	// ErrNoCreationHints means the connector offers no edge type. It points at
	// a rule-table bug, not at user input.
	ErrNoCreationHints = errors.New("edgecreate: connector offers no edge creation hints")
	// ErrBusy is returned by Begin while a gesture is already running.
	ErrBusy = errors.New("edgecreate: gesture already in progress")
	// ErrNotCreating is returned by operations that need a running gesture.
	ErrNotCreating = errors.New("edgecreate: no edge creation in progress")
	// ErrNoValidTarget is returned by Complete over a node without a valid
	// candidate. The gesture stays open.
	ErrNoValidTarget = errors.New("edgecreate: no valid target candidate")
	// ErrCanvasOccupied is returned by Complete on the canvas when the release
	// point is over a node. The gesture stays open.
	ErrCanvasOccupied = errors.New("edgecreate: release point is over a node")
	// ErrNoPreferredType means the model named no type for a synthesized node.
	ErrNoPreferredType = errors.New("edgecreate: no preferred type for new node")
	// ErrIllegalConversion is returned by Retype for hints the model does not
	// offer for the edge.
	ErrIllegalConversion = errors.New("edgecreate: edge conversion not offered")
)

// State is a state of the edge creation gesture.
type State int

const (
	Idle State = iota
	GestureStarting
	Creating
	Resolving
	Completed
	Canceled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case GestureStarting:
		return "gesture_starting"
	case Creating:
		return "creating"
	case Resolving:
		return "resolving"
	case Completed:
		return "completed"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Provisional is the dummy edge rendered while dragging. It never exists in
// the graph store.
type Provisional struct {
	Type     diagram.Type
	Reversed bool
	// Anchor is where the drag started; Pointer follows the cursor.
	Anchor  geom.Point
	Pointer geom.Point
	// Bends are kept in the order they were clicked.
	Bends []geom.Point
}

// Path returns the visual polyline from the edge's semantic source to its
// semantic target. A reversed hint swaps the visual endpoints.
func (p Provisional) Path() []geom.Point {
	path := make([]geom.Point, 0, len(p.Bends)+2)
	path = append(path, p.Anchor)
	path = append(path, p.Bends...)
	path = append(path, p.Pointer)
	if p.Reversed {
		slices.Reverse(path)
	}
	return path
}

// Options configures a Machine.
type Options struct {
	Model constraint.Model
	Sink  highlight.Sink
	// Nodes builds synthesized nodes. Defaults to FixedSizeFactory.
	Nodes NodeFactory
	// Configure is called on every synthesized node.
	Configure NodeConfigurer
	// Mode selects how candidates are shown while resolving.
	Mode ports.Mode
}

// Machine is the edge creation state machine. It is driven from a single
// event-dispatch goroutine and is not safe for concurrent use.
type Machine struct {
	model       constraint.Model
	highlighter *ports.Highlighter
	nodes       NodeFactory
	configure   NodeConfigurer

	state       State
	source      diagram.NodeID
	sourcePort  diagram.PortID
	hints       []diagram.EdgeCreationHint
	current     int
	provisional Provisional
	target      diagram.PortCandidate
	hasTarget   bool
	modifier    bool
}

// New creates an idle machine.
func New(opts Options) *Machine {
	if opts.Nodes == nil {
		opts.Nodes = FixedSizeFactory{}
	}
	if opts.Configure == nil {
		opts.Configure = NoopConfigurer{}
	}
	return &Machine{
		model:       opts.Model,
		highlighter: ports.NewHighlighter(ports.NewResolver(opts.Model), opts.Sink, opts.Mode),
		nodes:       opts.Nodes,
		configure:   opts.Configure,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Active reports whether a gesture is running.
func (m *Machine) Active() bool {
	return m.state == Creating || m.state == Resolving
}

// Hints returns the hint list of the running gesture.
func (m *Machine) Hints() []diagram.EdgeCreationHint { return slices.Clone(m.hints) }

// CurrentHint returns the selected hint.
func (m *Machine) CurrentHint() (diagram.EdgeCreationHint, bool) {
	if len(m.hints) == 0 {
		return diagram.EdgeCreationHint{}, false
	}
	return m.hints[m.current], true
}

// Provisional returns the dummy edge of the running gesture.
func (m *Machine) Provisional() Provisional {
	p := m.provisional
	p.Bends = slices.Clone(p.Bends)
	return p
}

// Target returns the candidate the edge would attach to if released now
// over the hovered node.
func (m *Machine) Target() (diagram.PortCandidate, bool) {
	return m.target, m.hasTarget
}

func (m *Machine) transition(ctx context.Context, to State) {
	ctxlog.FromContext(ctx).Debug("Edge creation state transition.", "from", m.state.String(), "to", to.String())
	m.state = to
}

// Begin starts a gesture at a connector: the source node itself, or one of
// its ports when sourcePort is set.
func (m *Machine) Begin(ctx context.Context, g graphstore.Reader, source diagram.NodeID, sourcePort diagram.PortID) error {
	ctx, logger := ctxlog.With(ctx, "gesture", "edge_creation", "source", source)
	if m.state != Idle {
		return ErrBusy
	}
	node, ok := g.Node(source)
	if !ok {
		return fmt.Errorf("begin edge creation at '%s': %w", source, graphstore.ErrNotFound)
	}
	anchor := node.Bounds.Center()
	if sourcePort != "" {
		p, ok := g.Port(sourcePort)
		if !ok || p.Owner != source {
			return fmt.Errorf("begin edge creation at port '%s' of '%s': %w", sourcePort, source, graphstore.ErrNotFound)
		}
		anchor = p.Location
	}

	m.transition(ctx, GestureStarting)
	hints := m.model.EdgeCreationHints(g, source, sourcePort)
	if len(hints) == 0 {
		logger.Error("Connector offers no edge creation hints; check the rule table.", "node_type", node.Type)
		m.transition(ctx, Idle)
		return fmt.Errorf("node '%s' of type '%s': %w", source, node.Type, ErrNoCreationHints)
	}

	m.source = source
	m.sourcePort = sourcePort
	m.hints = slices.Clone(hints)
	m.current = 0
	m.provisional = Provisional{
		Type:     hints[0].Type,
		Reversed: hints[0].Reversed,
		Anchor:   anchor,
		Pointer:  anchor,
	}
	logger.Debug("Edge creation started.", "hints", len(hints), "hint", hints[0].Type, "reversed", hints[0].Reversed)
	m.transition(ctx, Creating)
	return nil
}

// Cycle advances the current hint circularly and restyles the provisional
// edge. When the pointer is over a node, its candidates are re-evaluated
// against the new hint.
func (m *Machine) Cycle(ctx context.Context, g graphstore.Reader) (diagram.EdgeCreationHint, error) {
	if !m.Active() {
		return diagram.EdgeCreationHint{}, ErrNotCreating
	}
	m.current = (m.current + 1) % len(m.hints)
	hint := m.hints[m.current]
	m.provisional.Type = hint.Type
	m.provisional.Reversed = hint.Reversed
	ctxlog.FromContext(ctx).Debug("Edge creation hint cycled.", "index", m.current, "hint", hint.Type, "reversed", hint.Reversed)

	if m.highlighter.Installed() {
		m.resolveOver(ctx, g, m.highlighter.Node(), m.provisional.Pointer)
	}
	return hint, nil
}

// AddBend appends a bend point to the provisional edge.
func (m *Machine) AddBend(p geom.Point) {
	if !m.Active() {
		return
	}
	m.provisional.Bends = append(m.provisional.Bends, p)
}

// Move handles a pointer move. hovered is the node under the pointer, or
// empty over the canvas. Holding the modifier resolves dynamic candidates.
// Moves outside a gesture are ignored.
func (m *Machine) Move(ctx context.Context, g graphstore.Reader, pointer geom.Point, hovered diagram.NodeID, modifier bool) State {
	if !m.Active() {
		return m.state
	}
	m.provisional.Pointer = pointer
	m.modifier = modifier
	if hovered == "" {
		m.highlighter.Uninstall()
		m.target, m.hasTarget = diagram.PortCandidate{}, false
		if m.state != Creating {
			m.transition(ctx, Creating)
		}
		return m.state
	}
	m.resolveOver(ctx, g, hovered, pointer)
	return m.state
}

// resolveOver recomputes the candidates of hovered and moves between
// Creating and Resolving depending on whether a valid one exists.
func (m *Machine) resolveOver(ctx context.Context, g graphstore.Reader, hovered diagram.NodeID, pointer geom.Point) {
	// The predicate depends on the current hint, so install on every move
	// rather than reuse the one captured on the first.
	m.highlighter.Install(g, hovered, pointer, m.predicate(g, m.hints[m.current]), m.modifier)
	m.target, m.hasTarget = m.highlighter.Closest()
	next := Creating
	if m.hasTarget {
		next = Resolving
	}
	if next != m.state {
		m.transition(ctx, next)
	}
}

// predicate derives candidate validity from a hint. For a reversed hint the
// candidate becomes the semantic source of the edge.
func (m *Machine) predicate(g graphstore.Reader, hint diagram.EdgeCreationHint) ports.Predicate {
	return func(node diagram.Node, port diagram.PortID) bool {
		if hint.Reversed {
			return m.model.IsValidSource(g, m.source, hint.Type, node.ID, node.Type, port)
		}
		return m.model.IsValidTarget(g, m.source, hint.Type, node.ID, node.Type, port)
	}
}

// Cancel discards the gesture. It is safe to call at any time.
func (m *Machine) Cancel(ctx context.Context) {
	if m.state == Idle {
		return
	}
	ctxlog.FromContext(ctx).Debug("Edge creation canceled.", "source", m.source)
	m.transition(ctx, Canceled)
	m.reset(ctx)
}

func (m *Machine) reset(ctx context.Context) {
	m.highlighter.Uninstall()
	m.source, m.sourcePort = "", ""
	m.hints = nil
	m.current = 0
	m.provisional = Provisional{}
	m.target, m.hasTarget = diagram.PortCandidate{}, false
	m.modifier = false
	m.transition(ctx, Idle)
}
