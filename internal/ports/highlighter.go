package ports

import (
	"slices"

	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"github.com/specialistvlad/graphedit/internal/highlight"
)

// Highlighter shows the candidates of one node while the pointer hovers it.
// Install, Update and Uninstall may be called in any order; calls that make
// no sense in the current state are no-ops.
type Highlighter struct {
	resolver *Resolver
	sink     highlight.Sink
	mode     Mode

	installed  bool
	node       diagram.NodeID
	pred       Predicate
	cands      []diagram.PortCandidate
	closest    diagram.PortCandidate
	hasClosest bool
}

// NewHighlighter creates a highlighter rendering into sink.
func NewHighlighter(resolver *Resolver, sink highlight.Sink, mode Mode) *Highlighter {
	if sink == nil {
		sink = highlight.Discard
	}
	return &Highlighter{resolver: resolver, sink: sink, mode: mode}
}

// Install computes and renders the candidates of node. Installing over a
// previous node replaces its visuals.
func (h *Highlighter) Install(g graphstore.Reader, node diagram.NodeID, pointer geom.Point, pred Predicate, resolveDynamic bool) {
	h.installed = true
	h.node = node
	h.pred = pred
	h.refresh(g, pointer, resolveDynamic)
}

// Update re-evaluates the installed node after a pointer move or a modifier
// change. Holding the modifier resolves Dynamic candidates.
func (h *Highlighter) Update(g graphstore.Reader, pointer geom.Point, resolveDynamic bool) {
	if !h.installed {
		return
	}
	h.refresh(g, pointer, resolveDynamic)
}

// Uninstall removes every transient visual.
func (h *Highlighter) Uninstall() {
	if !h.installed {
		return
	}
	h.sink.Clear()
	*h = Highlighter{resolver: h.resolver, sink: h.sink, mode: h.mode}
}

// Installed reports whether a node is currently highlighted.
func (h *Highlighter) Installed() bool { return h.installed }

// Node returns the highlighted node.
func (h *Highlighter) Node() diagram.NodeID { return h.node }

// Candidates returns the candidates last rendered.
func (h *Highlighter) Candidates() []diagram.PortCandidate { return slices.Clone(h.cands) }

// Closest returns the best valid candidate, if any.
func (h *Highlighter) Closest() (diagram.PortCandidate, bool) {
	return h.closest, h.hasClosest
}

func (h *Highlighter) refresh(g graphstore.Reader, pointer geom.Point, resolveDynamic bool) {
	h.cands = h.resolver.Resolve(g, h.node, pointer, h.pred, Options{Mode: h.mode, ResolveDynamic: resolveDynamic})
	h.closest, h.hasClosest = ClosestValid(h.cands, pointer)

	h.sink.Clear()
	for _, c := range h.cands {
		label := highlight.PortValid
		if c.Validity == diagram.Invalid {
			label = highlight.PortInvalid
		}
		h.sink.Highlight(highlight.Request{Node: c.Owner, Port: c.Port, Location: c.Location, Label: label})
	}
	if h.hasClosest {
		c := h.closest
		h.sink.Highlight(highlight.Request{Node: c.Owner, Port: c.Port, Location: c.Location, Label: highlight.PortClosest})
	}
}
