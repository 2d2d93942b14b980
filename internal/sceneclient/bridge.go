package sceneclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/dragmerge"
	"github.com/specialistvlad/graphedit/internal/edgecreate"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/gesture"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"github.com/specialistvlad/graphedit/internal/script"
)

// Events sent by the host.
const (
	EventBeginEdge   = "edge:begin"
	EventCycleEdge   = "edge:cycle"
	EventMoveEdge    = "edge:move"
	EventBend        = "edge:bend"
	EventReleaseEdge = "edge:release"
	EventCancelEdge  = "edge:cancel"
	EventRetypeEdge  = "edge:retype"
	EventStartDrag   = "drag:start"
	EventDragMove    = "drag:move"
	EventDrop        = "drag:drop"
	EventCancelDrag  = "drag:cancel"
	EventFocusLost   = "focus:lost"
	// EventLoadGraph replaces the whole graph with the message's scene.
	EventLoadGraph = "graph:load"
)

// Events sent to the host.
const (
	EventHighlight      = "highlight"
	EventClearHighlight = "highlight:clear"
	EventResult         = "gesture:result"
	EventError          = "gesture:error"
)

// InboundEvents lists every event a Bridge handles.
var InboundEvents = []string{
	EventBeginEdge, EventCycleEdge, EventMoveEdge, EventBend, EventReleaseEdge,
	EventCancelEdge, EventRetypeEdge, EventStartDrag, EventDragMove, EventDrop,
	EventCancelDrag, EventFocusLost, EventLoadGraph,
}

var (
	// ErrBadMessage is returned for payloads that do not decode.
	ErrBadMessage = errors.New("sceneclient: malformed message")
	// ErrUnknownEvent is returned for event names the bridge does not handle.
	ErrUnknownEvent = errors.New("sceneclient: unknown event")
)

// Emitter is the part of a socket.io client the bridge writes to.
type Emitter interface {
	Emit(ev string, args ...any) error
}

// Message is the payload of every inbound event. Fields an event does not
// use are ignored.
type Message struct {
	Node     diagram.NodeID   `json:"node,omitempty"`
	Port     diagram.PortID   `json:"port,omitempty"`
	Nodes    []diagram.NodeID `json:"nodes,omitempty"`
	Edge     diagram.EdgeID   `json:"edge,omitempty"`
	At       geom.Point       `json:"at"`
	Modifier bool             `json:"modifier,omitempty"`

	Type     diagram.Type `json:"type,omitempty"`
	Reversed bool         `json:"reversed,omitempty"`

	Width     float64      `json:"width,omitempty"`
	Height    float64      `json:"height,omitempty"`
	Label     string       `json:"label,omitempty"`
	LabelType diagram.Type `json:"label_type,omitempty"`

	Scene *script.Scene `json:"scene,omitempty"`
}

// Reply is sent back as EventResult or EventError.
type Reply struct {
	Event       string                    `json:"event"`
	Code        string                    `json:"code,omitempty"`
	Error       string                    `json:"error,omitempty"`
	State       string                    `json:"state,omitempty"`
	Hint        *diagram.EdgeCreationHint `json:"hint,omitempty"`
	Edge        diagram.EdgeID            `json:"edge,omitempty"`
	NewNode     diagram.NodeID            `json:"new_node,omitempty"`
	MergedInto  diagram.NodeID            `json:"merged_into,omitempty"`
	Fallback    bool                      `json:"fallback,omitempty"`
	Fingerprint string                    `json:"fingerprint,omitempty"`
	// Provisional is the dummy edge to draw while an edge is dragged.
	Provisional *ProvisionalEdge `json:"provisional,omitempty"`
	// Nodes and Edges map scene names to store handles after EventLoadGraph.
	Nodes map[string]diagram.NodeID `json:"nodes,omitempty"`
	Edges map[string]diagram.EdgeID `json:"edges,omitempty"`
}

// ProvisionalEdge is the polyline of the edge being created, from its
// semantic source to its semantic target.
type ProvisionalEdge struct {
	Type     diagram.Type `json:"type"`
	Reversed bool         `json:"reversed,omitempty"`
	Path     []geom.Point `json:"path"`
	// Resolving is set while the pointer is over a valid attachment point.
	Resolving bool `json:"resolving,omitempty"`
}

// Bridge turns host events into Controller calls and reports the outcome of
// each gesture step back to the host.
type Bridge struct {
	ctrl *gesture.Controller
	out  Emitter
}

func NewBridge(ctrl *gesture.Controller, out Emitter) *Bridge {
	return &Bridge{ctrl: ctrl, out: out}
}

// Decode converts a socket.io payload into a Message. Unknown fields are
// rejected.
func Decode(args ...any) (Message, error) {
	var m Message
	if len(args) == 0 || args[0] == nil {
		return m, nil
	}
	var raw []byte
	switch v := args[0].(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return m, fmt.Errorf("%w: %w", ErrBadMessage, err)
		}
		raw = b
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return m, fmt.Errorf("%w: %w", ErrBadMessage, err)
	}
	return m, nil
}

// Handle applies one host event. Failures are reported to the host as
// EventError and returned.
func (b *Bridge) Handle(ctx context.Context, event string, args ...any) error {
	ctx, logger := ctxlog.With(ctx, "event", event)
	reply, err := b.dispatch(ctx, event, args...)
	if err != nil {
		code := gesture.ErrorName(err)
		switch {
		case errors.Is(err, ErrBadMessage):
			code = "bad_message"
		case errors.Is(err, ErrUnknownEvent):
			code = "unknown_event"
		}
		logger.Debug("Host event failed.", "code", code, "error", err)
		b.emit(ctx, EventError, Reply{Event: event, Code: code, Error: err.Error()})
		return err
	}
	if reply != nil {
		reply.Event = event
		b.emit(ctx, EventResult, *reply)
	}
	return nil
}

func (b *Bridge) dispatch(ctx context.Context, event string, args ...any) (*Reply, error) {
	m, err := Decode(args...)
	if err != nil {
		return nil, err
	}
	c := b.ctrl
	switch event {
	case EventBeginEdge:
		if err := c.BeginEdgeCreation(ctx, m.Node, m.Port); err != nil {
			return nil, err
		}
		return &Reply{State: gesture.EdgeCreation.String(), Provisional: b.provisional()}, nil
	case EventCycleEdge:
		hint, ok := c.CycleEdgeType(ctx)
		if !ok {
			return nil, nil
		}
		return &Reply{Hint: &hint, Provisional: b.provisional()}, nil
	case EventMoveEdge:
		c.MoveEdgeCreation(ctx, m.At, m.Modifier)
		if p := b.provisional(); p != nil {
			return &Reply{Provisional: p}, nil
		}
	case EventBend:
		c.AddBend(m.At)
		if p := b.provisional(); p != nil {
			return &Reply{Provisional: p}, nil
		}
	case EventReleaseEdge:
		res, err := c.CompleteEdgeCreation(ctx, m.At)
		if err != nil {
			return nil, err
		}
		return &Reply{
			Edge:        res.Edge,
			Hint:        &res.Hint,
			NewNode:     res.NewNode,
			Fingerprint: c.Store().Fingerprint(),
		}, nil
	case EventCancelEdge:
		c.CancelEdgeCreation(ctx)
	case EventRetypeEdge:
		hint := diagram.EdgeCreationHint{Type: m.Type, Reversed: m.Reversed}
		if err := c.RetypeEdge(ctx, m.Edge, hint); err != nil {
			return nil, err
		}
		return &Reply{Edge: m.Edge, Hint: &hint, Fingerprint: c.Store().Fingerprint()}, nil
	case EventStartDrag:
		if err := c.StartDrag(ctx, m.Nodes, m.At); err != nil {
			return nil, err
		}
		return &Reply{State: gesture.Drag.String()}, nil
	case EventDragMove:
		c.DragMove(ctx, m.At, m.Modifier)
	case EventDrop:
		res, err := c.Drop(ctx, m.At, dragmerge.DropOptions{
			Modifier:    m.Modifier,
			FinalWidth:  m.Width,
			FinalHeight: m.Height,
			LabelText:   m.Label,
			LabelType:   m.LabelType,
		})
		if err != nil && !res.Fallback {
			return nil, err
		}
		return &Reply{
			MergedInto:  res.Merged.Target,
			Fallback:    res.Fallback,
			Fingerprint: c.Store().Fingerprint(),
		}, nil
	case EventCancelDrag:
		c.CancelDrag(ctx)
	case EventFocusLost:
		c.CancelAll(ctx)
	case EventLoadGraph:
		return b.loadGraph(ctx, m)
	default:
		return nil, fmt.Errorf("%q: %w", event, ErrUnknownEvent)
	}
	return nil, nil
}

// provisional describes the running edge creation, or returns nil when none
// is running.
func (b *Bridge) provisional() *ProvisionalEdge {
	p, state := b.ctrl.Provisional()
	if state == edgecreate.Idle {
		return nil
	}
	return &ProvisionalEdge{
		Type:      p.Type,
		Reversed:  p.Reversed,
		Path:      p.Path(),
		Resolving: state == edgecreate.Resolving,
	}
}

// loadGraph replaces the graph with the scene of m in one transaction.
func (b *Bridge) loadGraph(ctx context.Context, m Message) (*Reply, error) {
	if m.Scene == nil {
		return nil, fmt.Errorf("%w: %s needs a scene", ErrBadMessage, EventLoadGraph)
	}
	if err := m.Scene.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadMessage, err)
	}
	var h script.Handles
	err := b.ctrl.Update(ctx, "load graph", func(g graphstore.Store) error {
		if err := graphstore.Clear(g); err != nil {
			return err
		}
		var err error
		h, err = m.Scene.AddTo(g)
		return err
	})
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("Graph loaded from host.", "nodes", len(h.Nodes), "edges", len(h.Edges))
	return &Reply{Nodes: h.Nodes, Edges: h.Edges, Fingerprint: b.ctrl.Store().Fingerprint()}, nil
}

func (b *Bridge) emit(ctx context.Context, event string, args ...any) {
	if err := b.out.Emit(event, args...); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to emit to host.", "emit", event, "error", err)
	}
}
