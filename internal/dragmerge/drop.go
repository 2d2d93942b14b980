package dragmerge

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/geom"
	"github.com/specialistvlad/graphedit/internal/graphstore"
)

// DropOptions carries the optional inputs of a drop.
type DropOptions struct {
	Modifier bool
	// FinalWidth and FinalHeight resize a merge target around its center
	// when both are positive.
	FinalWidth, FinalHeight float64
	// LabelText replaces the text of the merge target's first label, or adds
	// a label of LabelType when it has none.
	LabelText string
	LabelType diagram.Type
}

// DropResult reports what a drop did.
type DropResult struct {
	Feedback
	Moved      []diagram.NodeID
	Reparented map[diagram.NodeID]diagram.NodeID
	// Merged is the applied merge pair; its template no longer exists.
	Merged      diagram.MergePair
	Transferred []diagram.EdgeID
	// Fallback is set when the full drop failed and only a plain move of the
	// selection was applied.
	Fallback bool
}

// Drop applies the drag at pointer in one transaction. Feedback is
// recomputed at pointer rather than taken from the last Move. The session
// and all highlights are cleared whatever happens.
//
// If the drop fails it is rolled back and a plain move of the selection is
// applied in a second transaction; the result then has Fallback set and the
// original error is returned. Drop without a session is a no-op.
func (e *Engine) Drop(ctx context.Context, g graphstore.Store, pointer geom.Point, opts DropOptions) (DropResult, error) {
	if e.session == nil {
		return DropResult{}, nil
	}
	defer e.clear()
	logger := ctxlog.FromContext(ctx)

	fb := e.detect(g, pointer, opts.Modifier)
	tx, err := g.Begin("drop")
	if err != nil {
		return DropResult{Feedback: fb}, fmt.Errorf("failed to open transaction for drop: %w", err)
	}
	res, err := e.apply(g, fb, opts)
	if err == nil {
		if err := tx.Commit(); err != nil {
			logger.Warn("Commit observers failed after drop.", "error", err)
		}
		logger.Info("Drop applied.",
			"moved", len(res.Moved), "reparented", len(res.Reparented),
			"merge_template", res.Merged.Template, "merge_target", res.Merged.Target,
			"transferred", len(res.Transferred))
		return res, nil
	}

	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("Failed to roll back drop.", "error", rbErr)
		return DropResult{Feedback: fb}, fmt.Errorf("drop failed: %w", err)
	}
	logger.Warn("Drop rolled back; falling back to a plain move.", "error", err)

	fallback := DropResult{Feedback: fb, Fallback: true}
	tx, txErr := g.Begin("move")
	if txErr != nil {
		return fallback, fmt.Errorf("drop failed: %w", err)
	}
	moved, mvErr := e.move(g, e.session.Roots, fb.Offset)
	if mvErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to roll back fallback move.", "error", rbErr)
		}
		return fallback, fmt.Errorf("drop failed: %w (fallback move: %v)", err, mvErr)
	}
	if cErr := tx.Commit(); cErr != nil {
		logger.Warn("Commit observers failed after fallback move.", "error", cErr)
	}
	fallback.Moved = moved
	return fallback, fmt.Errorf("drop fell back to a plain move: %w", err)
}

func (e *Engine) apply(g graphstore.Store, fb Feedback, opts DropOptions) (DropResult, error) {
	s := e.session
	res := DropResult{Feedback: fb, Reparented: make(map[diagram.NodeID]diagram.NodeID)}
	merge := fb.Merge
	var template diagram.Node
	if !merge.IsZero() {
		template, _ = g.Node(merge.Template)
	}

	// A template wired into the selection is deleted after its edges move to
	// the target, so the rest of the selection follows the template onto the
	// target's center.
	wired := !merge.IsZero() && g.Degree(merge.Template) > 0
	vector := fb.Offset
	if wired {
		target, _ := g.Node(merge.Target)
		landed := template.Bounds.Translate(fb.Offset).Center()
		vector = geom.Vector{
			DX: fb.Offset.DX + target.Bounds.Center().X - landed.X,
			DY: fb.Offset.DY + target.Bounds.Center().Y - landed.Y,
		}
	}

	roots := slices.DeleteFunc(slices.Clone(s.Roots), func(id diagram.NodeID) bool { return id == merge.Template })
	moved, err := e.move(g, roots, vector)
	if err != nil {
		return res, err
	}
	res.Moved = moved

	others := slices.DeleteFunc(slices.Clone(fb.ActiveParents), func(id diagram.NodeID) bool { return id == merge.Target })
	if merge.IsZero() || len(others) > 0 {
		for _, id := range roots {
			n, _ := g.Node(id)
			parent := fb.ParentOf[id]
			if n.Parent == parent {
				continue
			}
			if err := g.SetParent(id, parent); err != nil {
				return res, err
			}
			res.Reparented[id] = parent
		}
	}

	if merge.IsZero() {
		return res, nil
	}
	if wired {
		transferred, err := e.transferEdges(g, template, merge.Target, vector)
		if err != nil {
			return res, err
		}
		res.Transferred = transferred
	} else if err := e.absorb(g, template, merge.Target, opts); err != nil {
		return res, err
	}
	if err := g.RemoveNode(merge.Template); err != nil {
		return res, err
	}
	res.Merged = merge
	return res, nil
}

// move translates roots and everything nested in them by v. Bends of edges
// running entirely inside the moved set move along.
func (e *Engine) move(g graphstore.Store, roots []diagram.NodeID, v geom.Vector) ([]diagram.NodeID, error) {
	set := make(map[diagram.NodeID]struct{})
	var moved []diagram.NodeID
	for _, n := range g.Nodes() {
		in := slices.Contains(roots, n.ID)
		for _, a := range g.Ancestors(n.ID) {
			if in {
				break
			}
			in = slices.Contains(roots, a)
		}
		if in {
			set[n.ID] = struct{}{}
			moved = append(moved, n.ID)
		}
	}
	if v.IsZero() {
		return moved, nil
	}
	for _, id := range moved {
		n, _ := g.Node(id)
		if err := g.SetBounds(id, n.Bounds.Translate(v)); err != nil {
			return nil, err
		}
	}
	for _, edge := range g.Edges() {
		if len(edge.Bends) == 0 {
			continue
		}
		src, _ := g.PortOwner(edge.Source)
		tgt, _ := g.PortOwner(edge.Target)
		_, okS := set[src]
		_, okT := set[tgt]
		if !okS || !okT {
			continue
		}
		bends := make([]geom.Point, len(edge.Bends))
		for i, b := range edge.Bends {
			bends[i] = b.Add(v)
		}
		if err := g.SetEdgeBends(edge.ID, bends); err != nil {
			return nil, err
		}
	}
	return moved, nil
}

// absorb copies a pure adaptor onto target: its type, its features, and
// the optional presentation overrides.
func (e *Engine) absorb(g graphstore.Store, template diagram.Node, target diagram.NodeID, opts DropOptions) error {
	if err := g.SetNodeType(target, template.Type); err != nil {
		return err
	}
	for _, k := range slices.Sorted(maps.Keys(template.Features)) {
		if err := g.SetFeature(target, k, template.Features[k]); err != nil {
			return err
		}
	}
	if opts.FinalWidth > 0 && opts.FinalHeight > 0 {
		n, _ := g.Node(target)
		if err := g.SetBounds(target, n.Bounds.Resize(opts.FinalWidth, opts.FinalHeight)); err != nil {
			return err
		}
	}
	if opts.LabelText == "" {
		return nil
	}
	if labels := g.LabelsOf(string(target)); len(labels) > 0 {
		return g.SetLabelText(labels[0].ID, opts.LabelText)
	}
	n, _ := g.Node(target)
	if !e.model.IsNodeAcceptingLabel(n, opts.LabelType) {
		return nil
	}
	_, err := g.AddLabel(string(target), opts.LabelType, opts.LabelText)
	return err
}

// transferEdges reattaches every edge of template to fresh ports on target.
// Port positions keep their offset from the template's center, measured
// after the template has been moved onto the target. Both ends of such an
// edge move by v, so its bends do too.
func (e *Engine) transferEdges(g graphstore.Store, template diagram.Node, target diagram.NodeID, v geom.Vector) ([]diagram.EdgeID, error) {
	replaced := make(map[diagram.PortID]diagram.PortID)
	port := func(old diagram.PortID) (diagram.PortID, error) {
		if owner, _ := g.PortOwner(old); owner != template.ID {
			return old, nil
		}
		if p, ok := replaced[old]; ok {
			return p, nil
		}
		p, _ := g.Port(old)
		id, err := g.AddPort(target, p.Type, p.Location.Add(v))
		if err != nil {
			return "", err
		}
		replaced[old] = id
		return id, nil
	}

	var transferred []diagram.EdgeID
	for _, edge := range g.EdgesOf(template.ID) {
		src, err := port(edge.Source)
		if err != nil {
			return nil, err
		}
		tgt, err := port(edge.Target)
		if err != nil {
			return nil, err
		}
		if err := g.SetEdgeEndpoints(edge.ID, src, tgt); err != nil {
			return nil, err
		}
		if len(edge.Bends) > 0 {
			bends := make([]geom.Point, len(edge.Bends))
			for i, b := range edge.Bends {
				bends[i] = b.Add(v)
			}
			if err := g.SetEdgeBends(edge.ID, bends); err != nil {
				return nil, err
			}
		}
		transferred = append(transferred, edge.ID)
	}
	return transferred, nil
}
