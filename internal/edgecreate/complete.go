package edgecreate

import (
	"context"
	"fmt"
	"slices"

	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
)

// Result describes a finalized edge in stored direction.
type Result struct {
	Edge   diagram.EdgeID
	Hint   diagram.EdgeCreationHint
	Source diagram.NodeID
	Target diagram.NodeID
	// NewNode is set when the release synthesized a node on the canvas.
	NewNode diagram.NodeID
}

// Complete finalizes the gesture at release. hovered is the node under the
// pointer, or empty for the canvas.
//
// Over a node the edge attaches to the best valid candidate at release; if
// there is none ErrNoValidTarget is returned and the gesture stays open. Over
// the canvas a node of the model's preferred type is synthesized. All graph
// mutations happen in one transaction that is rolled back on any error, in
// which case the gesture is canceled.
func (m *Machine) Complete(ctx context.Context, g graphstore.Store, release geom.Point, hovered diagram.NodeID) (Result, error) {
	if !m.Active() {
		return Result{}, ErrNotCreating
	}
	ctx, logger := ctxlog.With(ctx, "gesture", "edge_creation", "source", m.source)
	m.provisional.Pointer = release
	hint := m.hints[m.current]

	if hovered != "" {
		m.resolveOver(ctx, g, hovered, release)
		if !m.hasTarget {
			logger.Debug("Release over node without a valid candidate.", "node", hovered, "hint", hint.Type)
			return Result{}, fmt.Errorf("release over '%s' as %s: %w", hovered, hint.Type, ErrNoValidTarget)
		}
	} else if n, ok := graphstore.TopmostNodeAt(g, release, nil); ok {
		return Result{}, fmt.Errorf("release at %s over '%s': %w", release, n.ID, ErrCanvasOccupied)
	}

	tx, err := g.Begin("create " + string(hint.Type))
	if err != nil {
		return Result{}, fmt.Errorf("failed to open transaction for edge creation: %w", err)
	}
	res, err := m.finalize(g, hint, hovered, release)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to roll back edge creation.", "error", rbErr)
		}
		logger.Warn("Edge creation rolled back.", "hint", hint.Type, "error", err)
		m.transition(ctx, Canceled)
		m.reset(ctx)
		return Result{}, fmt.Errorf("failed to create %s edge from '%s': %w", hint.Type, res.Source, err)
	}
	m.transition(ctx, Completed)
	if err := tx.Commit(); err != nil {
		// The batch is applied; only its observers complained.
		logger.Warn("Commit observers failed after edge creation.", "error", err)
	}
	logger.Info("Edge created.", "edge", res.Edge, "type", res.Hint.Type, "from", res.Source, "to", res.Target, "new_node", res.NewNode)
	m.reset(ctx)
	return res, nil
}

// finalize performs the graph mutations of Complete inside the open
// transaction. The edge is first created in drag direction with its bends in
// drag order, then reversed as a whole when the hint asks for it.
func (m *Machine) finalize(g graphstore.Store, hint diagram.EdgeCreationHint, hovered diagram.NodeID, release geom.Point) (Result, error) {
	res := Result{Hint: hint, Source: m.source}

	startPort := m.sourcePort
	if startPort == "" {
		p, err := g.AddPort(m.source, constraint.DefaultPortType, m.provisional.Anchor)
		if err != nil {
			return res, err
		}
		startPort = p
	}

	var (
		endNode diagram.NodeID
		endPort diagram.PortID
		err     error
	)
	if hovered != "" {
		endNode, endPort = m.target.Owner, m.target.Port
		if endPort == "" {
			if endPort, err = g.AddPort(endNode, constraint.DefaultPortType, m.target.Location); err != nil {
				return res, err
			}
		}
	} else {
		if endNode, endPort, err = m.synthesize(g, hint, release); err != nil {
			return res, err
		}
		res.NewNode = endNode
	}

	edge, err := g.AddEdge(hint.Type, startPort, endPort)
	if err != nil {
		return res, err
	}
	if len(m.provisional.Bends) > 0 {
		if err := g.SetEdgeBends(edge, slices.Clone(m.provisional.Bends)); err != nil {
			return res, err
		}
	}
	res.Edge, res.Target = edge, endNode
	if hint.Reversed {
		if err := g.ReverseEdge(edge); err != nil {
			return res, err
		}
		res.Source, res.Target = res.Target, res.Source
	}
	return res, nil
}

// synthesize creates the node at the far end of a canvas release.
func (m *Machine) synthesize(g graphstore.Store, hint diagram.EdgeCreationHint, release geom.Point) (diagram.NodeID, diagram.PortID, error) {
	var typ diagram.Type
	if hint.Reversed {
		typ = m.model.PreferredSourceType(g, m.source, m.sourcePort, hint.Type)
	} else {
		typ = m.model.PreferredTargetType(g, m.source, m.sourcePort, hint.Type)
	}
	if typ == "" {
		return "", "", fmt.Errorf("%s edge: %w", hint.Type, ErrNoPreferredType)
	}
	id, err := g.AddNode(m.nodes.NodeSpec(typ, release))
	if err != nil {
		return "", "", err
	}
	node, _ := g.Node(id)
	port, err := m.configure.ConfigureNode(g, node, hint.Type)
	if err != nil {
		return "", "", fmt.Errorf("configure new %s node: %w", typ, err)
	}
	if port != "" {
		if owner, ok := g.PortOwner(port); !ok || owner != id {
			return "", "", fmt.Errorf("configured port '%s' of new node '%s': %w", port, id, graphstore.ErrNotFound)
		}
		return id, port, nil
	}
	// Re-read: the configurer may have resized the node.
	node, _ = g.Node(id)
	port, err = g.AddPort(id, constraint.DefaultPortType, node.Bounds.Center())
	if err != nil {
		return "", "", err
	}
	return id, port, nil
}

// Retype changes the type of an existing edge to one of the model's
// conversion hints, reversing it when the hint says so. It is refused while a
// gesture is running.
func (m *Machine) Retype(ctx context.Context, g graphstore.Store, edge diagram.EdgeID, hint diagram.EdgeCreationHint) error {
	if m.state != Idle {
		return ErrBusy
	}
	if _, ok := g.Edge(edge); !ok {
		return fmt.Errorf("retype edge '%s': %w", edge, graphstore.ErrNotFound)
	}
	if !slices.Contains(m.model.EdgeConversionHints(g, edge), hint) {
		return fmt.Errorf("retype edge '%s' to %s (reversed=%t): %w", edge, hint.Type, hint.Reversed, ErrIllegalConversion)
	}

	logger := ctxlog.FromContext(ctx)
	tx, err := g.Begin("retype " + string(edge))
	if err != nil {
		return fmt.Errorf("failed to open transaction for retype: %w", err)
	}
	err = g.SetEdgeType(edge, hint.Type)
	if err == nil && hint.Reversed {
		err = g.ReverseEdge(edge)
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to roll back edge retype.", "error", rbErr)
		}
		return fmt.Errorf("failed to retype edge '%s': %w", edge, err)
	}
	if err := tx.Commit(); err != nil {
		logger.Warn("Commit observers failed after edge retype.", "error", err)
	}
	logger.Info("Edge retyped.", "edge", edge, "type", hint.Type, "reversed", hint.Reversed)
	return nil
}
