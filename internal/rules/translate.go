// This file translates decoded HCL blocks into constraint rules, evaluating
// the typed attributes through cty.

package rules

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

func (l *Loader) translateNode(ctx context.Context, nb *NodeBlock) (constraint.NodeRule, error) {
	logger := ctxlog.FromContext(ctx).With("node_type", nb.Type)

	rule := constraint.NodeRule{
		Type:          diagram.Type(nb.Type),
		Children:      toTypes(nb.Children),
		ConvertsTo:    toTypes(nb.ConvertsTo),
		AcceptsLabels: toTypes(nb.AcceptsLabels),
		AcceptsPorts:  toTypes(nb.AcceptsPorts),
		DynamicPorts:  nb.DynamicPorts,
	}

	if isExprDefined(nb.DefaultSize) {
		var size []float64
		if err := decodeExpr(nb.DefaultSize, cty.List(cty.Number), &size); err != nil {
			return rule, fmt.Errorf("node '%s', default_size: %w", nb.Type, err)
		}
		if len(size) != 2 || size[0] <= 0 || size[1] <= 0 {
			return rule, fmt.Errorf("node '%s', default_size: want [width, height] with positive values, got %v", nb.Type, size)
		}
		rule.DefaultWidth, rule.DefaultHeight = size[0], size[1]
	}

	if isExprDefined(nb.Features) {
		var features map[string]string
		if err := decodeExpr(nb.Features, cty.Map(cty.String), &features); err != nil {
			return rule, fmt.Errorf("node '%s', features: %w", nb.Type, err)
		}
		rule.Features = features
	}

	logger.Debug("Translated node rule.", "children", len(rule.Children), "converts_to", len(rule.ConvertsTo), "dynamic_ports", rule.DynamicPorts)
	return rule, nil
}

func (l *Loader) translateEdge(eb *EdgeBlock) constraint.EdgeRule {
	return constraint.EdgeRule{
		Type:            diagram.Type(eb.Type),
		From:            toTypes(eb.From),
		To:              toTypes(eb.To),
		OfferReversed:   eb.OfferReversed,
		AllowSelfLoop:   eb.AllowSelfLoop,
		PreferredSource: diagram.Type(eb.PreferredSource),
		PreferredTarget: diagram.Type(eb.PreferredTarget),
		ConvertibleTo:   toTypes(eb.ConvertibleTo),
	}
}

// isExprDefined reports whether an optional attribute was written in the
// source. gohcl fills omitted optional expressions with a zero-width
// placeholder, so a nil check is not enough.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

// decodeExpr evaluates a constant expression, converts it to want and
// decodes it into the Go value pointed to by target.
func decodeExpr(expr hcl.Expression, want cty.Type, target any) error {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return diags
	}
	if val.IsNull() {
		return nil
	}
	converted, err := convert.Convert(val, want)
	if err != nil {
		return fmt.Errorf("cannot convert %s to %s: %w", val.Type().FriendlyName(), want.FriendlyName(), err)
	}
	return gocty.FromCtyValue(converted, target)
}
