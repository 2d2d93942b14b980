package rules

import "github.com/hashicorp/hcl/v2"

// fileRoot is the top-level schema of a rule file. Unknown blocks and
// attributes are decode errors.
type fileRoot struct {
	Nodes []*NodeBlock `hcl:"node,block"`
	Edges []*EdgeBlock `hcl:"edge,block"`
}

// NodeBlock is the HCL schema of a `node "<type>"` block.
type NodeBlock struct {
	Type          string         `hcl:"type,label"`
	Children      []string       `hcl:"children,optional"`
	ConvertsTo    []string       `hcl:"converts_to,optional"`
	AcceptsLabels []string       `hcl:"accepts_labels,optional"`
	AcceptsPorts  []string       `hcl:"accepts_ports,optional"`
	DynamicPorts  bool           `hcl:"dynamic_ports,optional"`
	DefaultSize   hcl.Expression `hcl:"default_size,optional"`
	Features      hcl.Expression `hcl:"features,optional"`
}

// EdgeBlock is the HCL schema of an `edge "<type>"` block.
type EdgeBlock struct {
	Type            string   `hcl:"type,label"`
	From            []string `hcl:"from,optional"`
	To              []string `hcl:"to,optional"`
	OfferReversed   bool     `hcl:"offer_reversed,optional"`
	AllowSelfLoop   bool     `hcl:"allow_self_loop,optional"`
	PreferredSource string   `hcl:"preferred_source,optional"`
	PreferredTarget string   `hcl:"preferred_target,optional"`
	ConvertibleTo   []string `hcl:"convertible_to,optional"`
}
