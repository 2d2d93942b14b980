// Package diagram defines the records the editing core exchanges with the
// graph store and the constraint model: nodes, edges, ports, labels, and the
// transient values produced while a gesture is running.
package diagram

import (
	"maps"
	"slices"

	"github.com/specialistvlad/graphedit/internal/geom"
)

// Type is a tag from a domain-specific vocabulary (e.g. "task",
// "sequence_flow"). The core never interprets it; only the constraint model
// gives it meaning.
type Type string

// NodeID, EdgeID, PortID and LabelID are opaque handles into the graph store.
type (
	NodeID  string
	EdgeID  string
	PortID  string
	LabelID string
)

// Node is a snapshot of a vertex in the graph store.
type Node struct {
	ID     NodeID    `json:"id"`
	Type   Type      `json:"type"`
	Bounds geom.Rect `json:"bounds"`
	// Parent is the containing group, or empty for top-level nodes.
	Parent NodeID `json:"parent,omitempty"`
	// Features carries markers such as "trigger=timer" that make a node
	// distinct from other nodes of the same type.
	Features map[string]string `json:"features,omitempty"`
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	n.Features = maps.Clone(n.Features)
	return n
}

// Port is a connection point owned by a node.
type Port struct {
	ID       PortID     `json:"id"`
	Owner    NodeID     `json:"owner"`
	Type     Type       `json:"type,omitempty"`
	Location geom.Point `json:"location"`
}

// Edge connects a source port to a target port. Bends are ordered from
// source to target.
type Edge struct {
	ID     EdgeID       `json:"id"`
	Type   Type         `json:"type"`
	Source PortID       `json:"source"`
	Target PortID       `json:"target"`
	Bends  []geom.Point `json:"bends,omitempty"`
}

// Clone returns a deep copy of e.
func (e Edge) Clone() Edge {
	e.Bends = slices.Clone(e.Bends)
	return e
}

// Label is a text item owned by a node or an edge.
type Label struct {
	ID    LabelID `json:"id"`
	Owner string  `json:"owner"`
	Type  Type    `json:"type,omitempty"`
	Text  string  `json:"text"`
}

// EdgeCreationHint is one legal edge type offered from a connector. Reversed
// means the semantic source/target is inverted relative to the drag
// direction.
type EdgeCreationHint struct {
	Type     Type `json:"type" yaml:"type"`
	Reversed bool `json:"reversed" yaml:"reversed"`
}

func (h EdgeCreationHint) String() string {
	if h.Reversed {
		return string(h.Type) + " (reversed)"
	}
	return string(h.Type)
}

// Validity classifies a port candidate.
type Validity int

const (
	// Valid candidates may be used as an endpoint.
	Valid Validity = iota
	// Invalid candidates are shown but never selected.
	Invalid
	// Dynamic candidates have no concrete location until resolved.
	Dynamic
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case Dynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// PortCandidate is a possible connection point on a node. Port is empty for
// candidates that would require creating a new port.
type PortCandidate struct {
	Owner    NodeID
	Port     PortID
	Location geom.Point
	Validity Validity
}

// HasPort reports whether the candidate refers to an existing port.
func (c PortCandidate) HasPort() bool {
	return c.Port != ""
}

// MergePair is a (template, target) match found during a drag.
type MergePair struct {
	Template NodeID
	Target   NodeID
}

// IsZero reports whether no pair was found.
func (m MergePair) IsZero() bool {
	return m.Template == "" && m.Target == ""
}
