// Package constraint defines the rule oracle consulted by the editing core
// and a data-driven implementation of it.
//
// # Why Constraint Model Is an Interface
//
// The core decides, at pointer-move frequency, which edges may start at a
// connector, which endpoints are valid, what a dropped template may merge
// into and which nodes may contain which. None of those answers belong to
// the core: they belong to a notation. The Model interface captures the
// questions; Table answers them from a rule table that is usually loaded from
// HCL files by the rules package.
//
// # Purity
//
// Every Model method must be a pure, total function of the graph snapshot and
// its arguments. Results are recomputed on every pointer move and may be
// cached per tick, so hidden state would make the gesture engines
// nondeterministic. Empty results are well-defined answers, never errors.
package constraint

import (
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/graphstore"
)

// Model is the pluggable rule oracle.
type Model interface {
	// EdgeCreationHints returns the ordered edge types that may be created
	// from a connector. The first hint is the default. An empty result means
	// no edge may start here.
	EdgeCreationHints(g graphstore.Reader, source diagram.NodeID, sourcePort diagram.PortID) []diagram.EdgeCreationHint

	// IsValidSource reports whether candidate (of candidateType, optionally at
	// candidatePort) may be the source of an edge of edgeType whose other end
	// is otherEnd.
	IsValidSource(g graphstore.Reader, otherEnd diagram.NodeID, edgeType diagram.Type, candidate diagram.NodeID, candidateType diagram.Type, candidatePort diagram.PortID) bool

	// IsValidTarget is the symmetric counterpart of IsValidSource.
	IsValidTarget(g graphstore.Reader, otherEnd diagram.NodeID, edgeType diagram.Type, candidate diagram.NodeID, candidateType diagram.Type, candidatePort diagram.PortID) bool

	// PreferredSourceType returns the type of a node synthesized at the
	// source end of a new edge whose existing end is node.
	PreferredSourceType(g graphstore.Reader, node diagram.NodeID, port diagram.PortID, edgeType diagram.Type) diagram.Type

	// PreferredTargetType returns the type of a node synthesized at the
	// target end of a new edge starting at node.
	PreferredTargetType(g graphstore.Reader, node diagram.NodeID, port diagram.PortID, edgeType diagram.Type) diagram.Type

	// NodeConversionTypes returns the types a node may be morphed into by
	// dropping a template onto it, sorted.
	NodeConversionTypes(g graphstore.Reader, node diagram.NodeID) []diagram.Type

	// EdgeConversionHints returns the legal retypings of an existing edge.
	EdgeConversionHints(g graphstore.Reader, edge diagram.EdgeID) []diagram.EdgeCreationHint

	// IsValidChild reports whether child may live inside a node of parentType.
	IsValidChild(g graphstore.Reader, parentType diagram.Type, child diagram.NodeID) bool

	IsNodeAcceptingLabel(node diagram.Node, labelType diagram.Type) bool
	IsNodeAcceptingPort(node diagram.Node, portType diagram.Type) bool
}
