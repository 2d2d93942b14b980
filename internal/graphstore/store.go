// Package graphstore defines the contract between the editing core and the
// store holding the diagram: nodes, edges, ports, labels, their geometry and
// their type tags.
//
// # Why Graph Store Is an Interface
//
// The editing core never owns the diagram. It reads geometry and connectivity
// at pointer-move frequency and writes only at two points: when an edge
// gesture completes and when a drag is dropped. Keeping the store behind an
// interface lets the core run against the reference in-memory store in tests
// and against a toolkit-backed store in an application.
//
// # Transactions
//
// Every write performed by a gesture happens inside a transaction opened with
// Begin. Commit publishes the whole batch; Rollback restores the store to the
// exact state it had before Begin (the Fingerprint is equal). Only one
// transaction may be open at a time. Writes outside a transaction are applied
// immediately and are not journaled; they are meant for setup code.
//
// # Threading
//
// The core runs on a single event-dispatch goroutine. Implementations are not
// required to be safe for concurrent mutation, but the reference
// implementation guards its maps so readers on other goroutines (e.g. a
// journal writer) see consistent snapshots.
package graphstore

import (
	"errors"
	"slices"

	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
)

var (
	// ErrNotFound is returned when a handle does not refer to a live item.
	ErrNotFound = errors.New("graphstore: not found")
	// ErrCyclicParent is returned when a reparent would create a cycle.
	ErrCyclicParent = errors.New("graphstore: parent would create a cycle")
	// ErrTransactionOpen is returned by Begin when a transaction is already open.
	ErrTransactionOpen = errors.New("graphstore: transaction already open")
	// ErrNoTransaction is returned when committing or rolling back a
	// transaction that is no longer open.
	ErrNoTransaction = errors.New("graphstore: no open transaction")
)

// Reader is the read-only view of the diagram. All results are snapshots;
// mutating them does not affect the store.
type Reader interface {
	// Node returns the node with the given handle.
	Node(id diagram.NodeID) (diagram.Node, bool)
	// Nodes returns every node in paint order (later nodes are on top).
	Nodes() []diagram.Node
	// Children returns the direct children of a node in paint order. An
	// empty id returns the top-level nodes.
	Children(id diagram.NodeID) []diagram.Node
	// Ancestors returns the parent chain of a node, innermost first.
	Ancestors(id diagram.NodeID) []diagram.NodeID

	Port(id diagram.PortID) (diagram.Port, bool)
	// PortsOf returns the ports owned by a node in creation order.
	PortsOf(id diagram.NodeID) []diagram.Port

	Edge(id diagram.EdgeID) (diagram.Edge, bool)
	Edges() []diagram.Edge
	// InEdges returns edges whose target port belongs to the node.
	InEdges(id diagram.NodeID) []diagram.Edge
	// OutEdges returns edges whose source port belongs to the node.
	OutEdges(id diagram.NodeID) []diagram.Edge
	// EdgesOf returns every edge incident to the node, each once.
	EdgesOf(id diagram.NodeID) []diagram.Edge
	// Degree returns len(EdgesOf(id)).
	Degree(id diagram.NodeID) int
	// PortOwner resolves the node owning a port.
	PortOwner(id diagram.PortID) (diagram.NodeID, bool)

	Label(id diagram.LabelID) (diagram.Label, bool)
	// LabelsOf returns the labels owned by a node or edge handle.
	LabelsOf(owner string) []diagram.Label

	// Fingerprint returns a digest of the complete store content. Two stores
	// with the same items, geometry, types and features have the same
	// fingerprint regardless of the order the items were created in.
	Fingerprint() string
}

// NodeSpec describes a node to create.
type NodeSpec struct {
	Type     diagram.Type
	Bounds   geom.Rect
	Parent   diagram.NodeID
	Features map[string]string
}

// Store is the mutable graph store.
type Store interface {
	Reader

	AddNode(spec NodeSpec) (diagram.NodeID, error)
	// RemoveNode deletes a node together with its ports, labels and incident
	// edges. Its children move to the removed node's parent.
	RemoveNode(id diagram.NodeID) error
	// SetParent moves a node into a new group. An empty parent makes the node
	// top-level. Returns ErrCyclicParent if parent is the node itself or one of
	// its descendants.
	SetParent(id, parent diagram.NodeID) error
	// SetBounds changes a node's geometry. Owned ports follow the node's
	// center.
	SetBounds(id diagram.NodeID, bounds geom.Rect) error
	SetNodeType(id diagram.NodeID, t diagram.Type) error
	// SetFeature sets a feature marker. An empty value removes it.
	SetFeature(id diagram.NodeID, key, value string) error

	AddPort(owner diagram.NodeID, t diagram.Type, at geom.Point) (diagram.PortID, error)
	// RemovePort deletes a port and every edge attached to it.
	RemovePort(id diagram.PortID) error

	AddEdge(t diagram.Type, source, target diagram.PortID) (diagram.EdgeID, error)
	RemoveEdge(id diagram.EdgeID) error
	SetEdgeType(id diagram.EdgeID, t diagram.Type) error
	SetEdgeEndpoints(id diagram.EdgeID, source, target diagram.PortID) error
	// ReverseEdge swaps source and target and reverses the bend order.
	ReverseEdge(id diagram.EdgeID) error
	SetEdgeBends(id diagram.EdgeID, bends []geom.Point) error

	// AddLabel attaches a label to a node or edge handle.
	AddLabel(owner string, t diagram.Type, text string) (diagram.LabelID, error)
	SetLabelText(id diagram.LabelID, text string) error

	// Begin opens the store's single transaction.
	Begin(name string) (Tx, error)
	// InTransaction reports whether a transaction is open.
	InTransaction() bool
}

// Tx is an open transaction. Exactly one of Commit or Rollback must be
// called; calling either a second time returns ErrNoTransaction.
type Tx interface {
	Name() string
	Commit() error
	Rollback() error
}

// OpKind names the kind of a journaled mutation.
type OpKind string

const (
	OpAddNode      OpKind = "add_node"
	OpRemoveNode   OpKind = "remove_node"
	OpSetParent    OpKind = "set_parent"
	OpSetBounds    OpKind = "set_bounds"
	OpSetNodeType  OpKind = "set_node_type"
	OpSetFeature   OpKind = "set_feature"
	OpAddPort      OpKind = "add_port"
	OpRemovePort   OpKind = "remove_port"
	OpAddEdge      OpKind = "add_edge"
	OpRemoveEdge   OpKind = "remove_edge"
	OpSetEdgeType  OpKind = "set_edge_type"
	OpSetEndpoints OpKind = "set_edge_endpoints"
	OpReverseEdge  OpKind = "reverse_edge"
	OpSetBends     OpKind = "set_edge_bends"
	OpAddLabel     OpKind = "add_label"
	OpSetLabelText OpKind = "set_label_text"
)

// Op is the serializable description of one journaled mutation.
type Op struct {
	Kind   OpKind `json:"kind"`
	ID     string `json:"id"`
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
}

// Batch is a committed transaction.
type Batch struct {
	Name string `json:"name"`
	Ops  []Op   `json:"ops"`
	// Before and After are store fingerprints around the batch.
	Before string `json:"before"`
	After  string `json:"after"`
}

// CommitObserver is notified after a transaction commits.
type CommitObserver interface {
	BatchCommitted(b Batch) error
}

// TopmostNodeAt returns the node hit at p: the most deeply nested node whose
// bounds contain p, with the later node in paint order winning between nodes
// at the same depth. Nodes listed in skip are ignored.
func TopmostNodeAt(r Reader, p geom.Point, skip map[diagram.NodeID]struct{}) (diagram.Node, bool) {
	var (
		hit   diagram.Node
		depth = -1
	)
	for _, n := range r.Nodes() {
		if _, skipped := skip[n.ID]; skipped {
			continue
		}
		if !n.Bounds.Contains(p) {
			continue
		}
		if d := len(r.Ancestors(n.ID)); d >= depth {
			hit, depth = n, d
		}
	}
	return hit, depth >= 0
}

// Clear removes every node, and with them all ports, edges and labels.
// Children go before their parents so no node is ever reparented.
func Clear(g Store) error {
	nodes := g.Nodes()
	depth := make(map[diagram.NodeID]int, len(nodes))
	for _, n := range nodes {
		depth[n.ID] = len(g.Ancestors(n.ID))
	}
	slices.SortStableFunc(nodes, func(a, b diagram.Node) int {
		return depth[b.ID] - depth[a.ID]
	})
	for _, n := range nodes {
		if err := g.RemoveNode(n.ID); err != nil {
			return err
		}
	}
	return nil
}

// IsAncestor reports whether anc is a strict ancestor of id.
func IsAncestor(r Reader, anc, id diagram.NodeID) bool {
	for _, a := range r.Ancestors(id) {
		if a == anc {
			return true
		}
	}
	return false
}
