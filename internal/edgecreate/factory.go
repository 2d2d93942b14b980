package edgecreate

import (
	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
)

// NodeFactory builds the spec of a node synthesized by an empty-canvas
// release. *constraint.Table implements it.
type NodeFactory interface {
	NodeSpec(typ diagram.Type, at geom.Point) graphstore.NodeSpec
}

var _ NodeFactory = (*constraint.Table)(nil)

// FixedSizeFactory centers every new node on the release point with the
// same size.
type FixedSizeFactory struct {
	W, H float64
}

func (f FixedSizeFactory) NodeSpec(typ diagram.Type, at geom.Point) graphstore.NodeSpec {
	w, h := f.W, f.H
	if w <= 0 || h <= 0 {
		w, h = constraint.FallbackSize, constraint.FallbackSize
	}
	return graphstore.NodeSpec{Type: typ, Bounds: geom.RectAround(at, w, h)}
}

// NodeConfigurer adjusts a synthesized node inside the completing
// transaction. It may return a port of the node for the edge to attach to;
// an empty PortID lets the machine create one at the node's center.
type NodeConfigurer interface {
	ConfigureNode(g graphstore.Store, node diagram.Node, edgeType diagram.Type) (diagram.PortID, error)
}

// NodeConfigurerFunc adapts a function to NodeConfigurer.
type NodeConfigurerFunc func(g graphstore.Store, node diagram.Node, edgeType diagram.Type) (diagram.PortID, error)

func (f NodeConfigurerFunc) ConfigureNode(g graphstore.Store, node diagram.Node, edgeType diagram.Type) (diagram.PortID, error) {
	return f(g, node, edgeType)
}

// NoopConfigurer leaves synthesized nodes untouched.
type NoopConfigurer struct{}

func (NoopConfigurer) ConfigureNode(graphstore.Store, diagram.Node, diagram.Type) (diagram.PortID, error) {
	return "", nil
}
