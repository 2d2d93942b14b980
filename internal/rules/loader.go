package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/diagram"
)

// Loader reads HCL rule files into a constraint.Table.
type Loader struct{}

// NewLoader creates a new HCL rule loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load expands the given doublestar patterns, parses every matched .hcl file
// and merges all declarations into one table. A pattern naming a directory
// is treated as "<dir>/**/*.hcl".
func (l *Loader) Load(ctx context.Context, patterns ...string) (*constraint.Table, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Rule loader started.", "pattern_count", len(patterns))

	files, err := l.findRuleFiles(patterns)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no rule files matched %v", patterns)
	}
	logger.Debug("Discovered rule files.", "count", len(files))

	parser := hclparse.NewParser()
	table := constraint.NewTable()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse rule file %s: %w", file, diags)
		}
		if err := l.decodeInto(ctx, table, hclFile); err != nil {
			return nil, fmt.Errorf("rule file %s: %w", file, err)
		}
	}

	logger.Debug("Rule loading complete.", "node_types", len(table.NodeTypes()), "edge_types", len(table.EdgeTypes()))
	return table, nil
}

// LoadSource parses a single in-memory rule file.
func (l *Loader) LoadSource(ctx context.Context, filename string, src []byte) (*constraint.Table, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse rule source %s: %w", filename, diags)
	}
	table := constraint.NewTable()
	if err := l.decodeInto(ctx, table, hclFile); err != nil {
		return nil, fmt.Errorf("rule source %s: %w", filename, err)
	}
	return table, nil
}

func (l *Loader) decodeInto(ctx context.Context, table *constraint.Table, file *hcl.File) error {
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode: %w", diags)
	}
	for _, nb := range root.Nodes {
		rule, err := l.translateNode(ctx, nb)
		if err != nil {
			return err
		}
		if err := table.AddNodeRule(rule); err != nil {
			return err
		}
	}
	for _, eb := range root.Edges {
		if err := table.AddEdgeRule(l.translateEdge(eb)); err != nil {
			return err
		}
	}
	return nil
}

// findRuleFiles expands every pattern and returns a sorted, de-duplicated
// list of .hcl files.
func (l *Loader) findRuleFiles(patterns []string) ([]string, error) {
	var all []string
	for _, pattern := range patterns {
		if info, err := os.Stat(pattern); err == nil && info.IsDir() {
			pattern = filepath.Join(pattern, "**", "*.hcl")
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad rule file pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if filepath.Ext(m) == ".hcl" {
				all = append(all, m)
			}
		}
	}
	slices.Sort(all)
	return slices.Compact(all), nil
}

func toTypes(in []string) []diagram.Type {
	if len(in) == 0 {
		return nil
	}
	out := make([]diagram.Type, len(in))
	for i, s := range in {
		out[i] = diagram.Type(s)
	}
	return out
}
