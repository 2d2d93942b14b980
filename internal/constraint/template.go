package constraint

import (
	"maps"

	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
)

// FallbackSize is used for node types without a declared default size.
const FallbackSize = 40

// NodeSpec returns the spec of a fresh node of typ centered on at, sized and
// featured from its rule.
func (t *Table) NodeSpec(typ diagram.Type, at geom.Point) graphstore.NodeSpec {
	w, h := float64(FallbackSize), float64(FallbackSize)
	var features map[string]string
	if r, ok := t.nodes[typ]; ok {
		if r.DefaultWidth > 0 && r.DefaultHeight > 0 {
			w, h = r.DefaultWidth, r.DefaultHeight
		}
		features = maps.Clone(r.Features)
	}
	return graphstore.NodeSpec{
		Type:     typ,
		Bounds:   geom.RectAround(at, w, h),
		Features: features,
	}
}
