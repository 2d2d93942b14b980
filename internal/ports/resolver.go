// Package ports finds the connection points of a node, classifies them
// against a validity predicate and picks the one nearest to the pointer.
package ports

import (
	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
)

// Mode selects how invalid candidates are reported.
type Mode int

const (
	// MarkInvalid keeps invalid candidates, flagged, for visual feedback.
	MarkInvalid Mode = iota
	// FilterInvalid drops invalid candidates.
	FilterInvalid
)

// Predicate decides whether a candidate on node (at an existing port, or a
// new one when port is empty) is acceptable.
type Predicate func(node diagram.Node, port diagram.PortID) bool

// Options controls a single resolution.
type Options struct {
	Mode Mode
	// ResolveDynamic turns Dynamic candidates into concrete ones at the
	// pointer. When false they are skipped.
	ResolveDynamic bool
}

// Resolver produces port candidates using the constraint model to decide
// which implicit connection points a node offers.
type Resolver struct {
	model constraint.Model
}

// NewResolver creates a resolver backed by model.
func NewResolver(model constraint.Model) *Resolver {
	return &Resolver{model: model}
}

// Raw returns the unclassified candidate set of a node: its existing ports,
// then a center candidate if the node accepts a default port, then a Dynamic
// candidate if the model allows free placement on the node.
func (r *Resolver) Raw(g graphstore.Reader, node diagram.Node) []diagram.PortCandidate {
	var out []diagram.PortCandidate
	for _, p := range g.PortsOf(node.ID) {
		out = append(out, diagram.PortCandidate{
			Owner:    node.ID,
			Port:     p.ID,
			Location: p.Location,
			Validity: diagram.Valid,
		})
	}
	if r.model.IsNodeAcceptingPort(node, constraint.DefaultPortType) {
		out = append(out, diagram.PortCandidate{
			Owner:    node.ID,
			Location: node.Bounds.Center(),
			Validity: diagram.Valid,
		})
		if policy, ok := r.model.(constraint.DynamicPortPolicy); ok && policy.AllowsDynamicPorts(node) {
			out = append(out, diagram.PortCandidate{Owner: node.ID, Validity: diagram.Dynamic})
		}
	}
	return out
}

// Resolve returns the classified candidates of a node. Unknown nodes have
// no candidates.
func (r *Resolver) Resolve(g graphstore.Reader, id diagram.NodeID, pointer geom.Point, pred Predicate, opts Options) []diagram.PortCandidate {
	node, ok := g.Node(id)
	if !ok {
		return nil
	}
	raw := r.Raw(g, node)
	out := make([]diagram.PortCandidate, 0, len(raw))
	for _, c := range raw {
		if c.Validity == diagram.Dynamic {
			if !opts.ResolveDynamic {
				continue
			}
			c.Location = node.Bounds.Clamp(pointer)
			c.Validity = diagram.Valid
		}
		if pred != nil && !pred(node, c.Port) {
			if opts.Mode == FilterInvalid {
				continue
			}
			c.Validity = diagram.Invalid
		}
		out = append(out, c)
	}
	return out
}

// ClosestValid returns the Valid candidate nearest to pointer. Ties go to
// the first candidate in list order. Invalid and unresolved Dynamic
// candidates are never returned.
func ClosestValid(cands []diagram.PortCandidate, pointer geom.Point) (diagram.PortCandidate, bool) {
	var (
		best  diagram.PortCandidate
		bestD float64
		found bool
	)
	for _, c := range cands {
		if c.Validity != diagram.Valid {
			continue
		}
		d := c.Location.DistanceTo(pointer)
		if !found || d < bestD {
			best, bestD, found = c, d, true
		}
	}
	return best, found
}
