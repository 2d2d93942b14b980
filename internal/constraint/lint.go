package constraint

import (
	"fmt"

	"github.com/specialistvlad/graphedit/internal/diagram"
)

// Finding is a suspicious spot in a rule table. None of them stop a table
// from being used.
type Finding struct {
	Subject diagram.Type
	Message string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Subject, f.Message)
}

// Lint reports references to undeclared types and node types whose
// connectors would offer no edge creation hints. Findings follow
// declaration order.
func (t *Table) Lint() []Finding {
	var out []Finding
	add := func(subject diagram.Type, format string, args ...any) {
		out = append(out, Finding{Subject: subject, Message: fmt.Sprintf(format, args...)})
	}
	knownNode := func(typ diagram.Type) bool {
		_, ok := t.nodes[typ]
		return ok || typ == Wildcard
	}

	for _, nt := range t.nodeOrder {
		r := t.nodes[nt]
		for _, c := range r.Children {
			if !knownNode(c) {
				add(nt, "child type %q is not declared", c)
			}
		}
		for _, c := range r.ConvertsTo {
			if !knownNode(c) {
				add(nt, "conversion type %q is not declared", c)
			}
		}
		if len(t.HintsForType(nt)) == 0 {
			add(nt, "offers no edge creation hints")
		}
	}
	for _, et := range t.edgeOrder {
		r := t.edges[et]
		for _, typ := range append(append([]diagram.Type{}, r.From...), r.To...) {
			if !knownNode(typ) {
				add(et, "endpoint type %q is not declared", typ)
			}
		}
		for _, typ := range []diagram.Type{r.PreferredSource, r.PreferredTarget} {
			if typ != "" && !knownNode(typ) {
				add(et, "preferred type %q is not declared", typ)
			}
		}
		for _, typ := range r.ConvertibleTo {
			if _, ok := t.edges[typ]; !ok {
				add(et, "conversion edge type %q is not declared", typ)
			}
		}
	}
	return out
}
