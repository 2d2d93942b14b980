package constraint

import (
	"fmt"
	"maps"
	"slices"

	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/graphstore"
)

// Wildcard matches every type in a rule list.
const Wildcard diagram.Type = "*"

// DefaultPortType is the type of ports created without an explicit type.
const DefaultPortType diagram.Type = ""

// NodeRule holds everything the table knows about one node type.
type NodeRule struct {
	Type diagram.Type
	// Children lists the types that may be placed inside this node.
	Children []diagram.Type
	// ConvertsTo lists the types this node may be morphed into by a merge.
	ConvertsTo    []diagram.Type
	AcceptsLabels []diagram.Type
	// AcceptsPorts lists accepted port types. Empty means only the default
	// port type.
	AcceptsPorts []diagram.Type
	// DynamicPorts offers an "anywhere on the node" candidate during edge
	// creation.
	DynamicPorts  bool
	DefaultWidth  float64
	DefaultHeight float64
	// Features are set on freshly synthesized nodes of this type.
	Features map[string]string
}

// EdgeRule holds everything the table knows about one edge type.
type EdgeRule struct {
	Type diagram.Type
	From []diagram.Type
	To   []diagram.Type
	// OfferReversed adds a reversed hint on nodes whose type appears in To.
	OfferReversed   bool
	AllowSelfLoop   bool
	PreferredSource diagram.Type
	PreferredTarget diagram.Type
	ConvertibleTo   []diagram.Type
}

// DynamicPortPolicy is implemented by models that can tell whether a node
// offers a free-placement connection point. The ports package checks for it
// with a type assertion.
type DynamicPortPolicy interface {
	AllowsDynamicPorts(node diagram.Node) bool
}

// Table is a Model backed by per-type rules. The zero value is not usable;
// create one with NewTable. A Table must not be modified once handed to a
// gesture engine.
type Table struct {
	nodes     map[diagram.Type]*NodeRule
	nodeOrder []diagram.Type
	edges     map[diagram.Type]*EdgeRule
	edgeOrder []diagram.Type
}

// NewTable creates an empty rule table.
func NewTable() *Table {
	return &Table{
		nodes: make(map[diagram.Type]*NodeRule),
		edges: make(map[diagram.Type]*EdgeRule),
	}
}

var (
	_ Model             = (*Table)(nil)
	_ DynamicPortPolicy = (*Table)(nil)
)

// AddNodeRule registers a node rule. Declaring the same type twice is an
// error.
func (t *Table) AddNodeRule(r NodeRule) error {
	if r.Type == "" {
		return fmt.Errorf("node rule must have a type")
	}
	if _, exists := t.nodes[r.Type]; exists {
		return fmt.Errorf("node rule for type '%s' declared twice", r.Type)
	}
	r.Features = maps.Clone(r.Features)
	t.nodes[r.Type] = &r
	t.nodeOrder = append(t.nodeOrder, r.Type)
	return nil
}

// AddEdgeRule registers an edge rule. Declaration order defines hint order.
func (t *Table) AddEdgeRule(r EdgeRule) error {
	if r.Type == "" {
		return fmt.Errorf("edge rule must have a type")
	}
	if _, exists := t.edges[r.Type]; exists {
		return fmt.Errorf("edge rule for type '%s' declared twice", r.Type)
	}
	t.edges[r.Type] = &r
	t.edgeOrder = append(t.edgeOrder, r.Type)
	return nil
}

// NodeRule returns the rule for a node type.
func (t *Table) NodeRule(typ diagram.Type) (NodeRule, bool) {
	r, ok := t.nodes[typ]
	if !ok {
		return NodeRule{}, false
	}
	return *r, true
}

// EdgeRule returns the rule for an edge type.
func (t *Table) EdgeRule(typ diagram.Type) (EdgeRule, bool) {
	r, ok := t.edges[typ]
	if !ok {
		return EdgeRule{}, false
	}
	return *r, true
}

// NodeTypes returns node types in declaration order.
func (t *Table) NodeTypes() []diagram.Type { return slices.Clone(t.nodeOrder) }

// EdgeTypes returns edge types in declaration order.
func (t *Table) EdgeTypes() []diagram.Type { return slices.Clone(t.edgeOrder) }

func matches(list []diagram.Type, typ diagram.Type) bool {
	return slices.Contains(list, Wildcard) || slices.Contains(list, typ)
}

func firstConcrete(list []diagram.Type) diagram.Type {
	for _, typ := range list {
		if typ != Wildcard {
			return typ
		}
	}
	return ""
}

func (t *Table) EdgeCreationHints(g graphstore.Reader, source diagram.NodeID, _ diagram.PortID) []diagram.EdgeCreationHint {
	n, ok := g.Node(source)
	if !ok {
		return nil
	}
	return t.HintsForType(n.Type)
}

// HintsForType returns the creation hints a connector on a node of type typ
// offers, in edge declaration order.
func (t *Table) HintsForType(typ diagram.Type) []diagram.EdgeCreationHint {
	var hints []diagram.EdgeCreationHint
	for _, et := range t.edgeOrder {
		r := t.edges[et]
		if matches(r.From, typ) {
			hints = append(hints, diagram.EdgeCreationHint{Type: et})
		}
		if r.OfferReversed && matches(r.To, typ) {
			hints = append(hints, diagram.EdgeCreationHint{Type: et, Reversed: true})
		}
	}
	return hints
}

func (t *Table) IsValidSource(g graphstore.Reader, otherEnd diagram.NodeID, edgeType diagram.Type, candidate diagram.NodeID, candidateType diagram.Type, _ diagram.PortID) bool {
	r, ok := t.edges[edgeType]
	if !ok {
		return false
	}
	target, ok := g.Node(otherEnd)
	if !ok {
		return false
	}
	if candidate == otherEnd && !r.AllowSelfLoop {
		return false
	}
	return matches(r.From, candidateType) && matches(r.To, target.Type)
}

func (t *Table) IsValidTarget(g graphstore.Reader, otherEnd diagram.NodeID, edgeType diagram.Type, candidate diagram.NodeID, candidateType diagram.Type, _ diagram.PortID) bool {
	r, ok := t.edges[edgeType]
	if !ok {
		return false
	}
	source, ok := g.Node(otherEnd)
	if !ok {
		return false
	}
	if candidate == otherEnd && !r.AllowSelfLoop {
		return false
	}
	return matches(r.From, source.Type) && matches(r.To, candidateType)
}

func (t *Table) PreferredSourceType(g graphstore.Reader, node diagram.NodeID, _ diagram.PortID, edgeType diagram.Type) diagram.Type {
	return t.preferred(g, node, edgeType, func(r *EdgeRule) (diagram.Type, []diagram.Type) {
		return r.PreferredSource, r.From
	})
}

func (t *Table) PreferredTargetType(g graphstore.Reader, node diagram.NodeID, _ diagram.PortID, edgeType diagram.Type) diagram.Type {
	return t.preferred(g, node, edgeType, func(r *EdgeRule) (diagram.Type, []diagram.Type) {
		return r.PreferredTarget, r.To
	})
}

// preferred falls back from the explicit preference to the first concrete
// type of the matching end, then to the type of the existing end.
func (t *Table) preferred(g graphstore.Reader, node diagram.NodeID, edgeType diagram.Type, pick func(*EdgeRule) (diagram.Type, []diagram.Type)) diagram.Type {
	if r, ok := t.edges[edgeType]; ok {
		explicit, list := pick(r)
		if explicit != "" {
			return explicit
		}
		if typ := firstConcrete(list); typ != "" {
			return typ
		}
	}
	if n, ok := g.Node(node); ok {
		return n.Type
	}
	return ""
}

func (t *Table) NodeConversionTypes(g graphstore.Reader, node diagram.NodeID) []diagram.Type {
	n, ok := g.Node(node)
	if !ok {
		return nil
	}
	r, ok := t.nodes[n.Type]
	if !ok || len(r.ConvertsTo) == 0 {
		return nil
	}
	out := slices.Clone(r.ConvertsTo)
	slices.Sort(out)
	return slices.Compact(out)
}

func (t *Table) EdgeConversionHints(g graphstore.Reader, edge diagram.EdgeID) []diagram.EdgeCreationHint {
	e, ok := g.Edge(edge)
	if !ok {
		return nil
	}
	current, ok := t.edges[e.Type]
	if !ok {
		return nil
	}
	srcOwner, ok1 := g.PortOwner(e.Source)
	tgtOwner, ok2 := g.PortOwner(e.Target)
	if !ok1 || !ok2 {
		return nil
	}
	src, _ := g.Node(srcOwner)
	tgt, _ := g.Node(tgtOwner)

	var hints []diagram.EdgeCreationHint
	for _, typ := range current.ConvertibleTo {
		r, ok := t.edges[typ]
		if !ok {
			continue
		}
		switch {
		case matches(r.From, src.Type) && matches(r.To, tgt.Type):
			hints = append(hints, diagram.EdgeCreationHint{Type: typ})
		case matches(r.From, tgt.Type) && matches(r.To, src.Type):
			hints = append(hints, diagram.EdgeCreationHint{Type: typ, Reversed: true})
		}
	}
	return hints
}

func (t *Table) IsValidChild(g graphstore.Reader, parentType diagram.Type, child diagram.NodeID) bool {
	r, ok := t.nodes[parentType]
	if !ok {
		return false
	}
	n, ok := g.Node(child)
	if !ok {
		return false
	}
	return matches(r.Children, n.Type)
}

func (t *Table) IsNodeAcceptingLabel(node diagram.Node, labelType diagram.Type) bool {
	r, ok := t.nodes[node.Type]
	return ok && matches(r.AcceptsLabels, labelType)
}

func (t *Table) IsNodeAcceptingPort(node diagram.Node, portType diagram.Type) bool {
	r, ok := t.nodes[node.Type]
	if !ok || len(r.AcceptsPorts) == 0 {
		return portType == DefaultPortType
	}
	return matches(r.AcceptsPorts, portType)
}

// AllowsDynamicPorts implements DynamicPortPolicy.
func (t *Table) AllowsDynamicPorts(node diagram.Node) bool {
	r, ok := t.nodes[node.Type]
	return ok && r.DynamicPorts
}
