package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/graphedit/internal/app"
	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/diagram"
	"github.com/specialistvlad/graphedit/internal/rules"
	"github.com/spf13/cobra"
)

func newRulesLoader() app.RulesLoader {
	return rules.NewLoader()
}

func rulesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect rule files",
	}
	cmd.AddCommand(rulesCheckCmd(g))
	return cmd
}

func rulesCheckCmd(g *globalFlags) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check [PATTERN...]",
		Short: "Load rule files, list the declared types and report suspicious rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd, func(c *app.Config) {
				if len(args) > 0 {
					c.RulesPatterns = args
				}
			})
			if err != nil {
				return err
			}
			table, err := newRulesLoader().Load(cmd.Context(), cfg.RulesPatterns...)
			if err != nil {
				return &ExitError{Code: 1, Message: err.Error()}
			}

			out := cmd.OutOrStdout()
			header(out, "rules check")
			printTable(out, table)

			findings := table.Lint()
			if len(findings) == 0 {
				fmt.Fprintf(out, "\n  %s no findings\n", statusIcon(true))
				return nil
			}
			fmt.Fprintf(out, "\n  Findings (%d)\n", len(findings))
			for _, f := range findings {
				fmt.Fprintf(out, "  %s %s\n", warn.Sprint("!"), f)
			}
			if strict {
				return &ExitError{Code: 1, Message: fmt.Sprintf("%d rule findings", len(findings))}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when there are findings.")
	return cmd
}

func printTable(out io.Writer, table *constraint.Table) {
	nodeTypes := table.NodeTypes()
	fmt.Fprintf(out, "  Node types (%d)\n", len(nodeTypes))
	width := 0
	for _, nt := range nodeTypes {
		width = max(width, len(nt))
	}
	for _, nt := range nodeTypes {
		hints := make([]string, 0)
		for _, h := range table.HintsForType(nt) {
			hints = append(hints, h.String())
		}
		r, _ := table.NodeRule(nt)
		fmt.Fprintf(out, "    %-*s  %s %s  %s %s\n", width, nt,
			subtle.Sprint("hints:"), orNone(hints),
			subtle.Sprint("children:"), orNone(typeNames(r.Children)))
	}

	edgeTypes := table.EdgeTypes()
	fmt.Fprintf(out, "\n  Edge types (%d)\n", len(edgeTypes))
	width = 0
	for _, et := range edgeTypes {
		width = max(width, len(et))
	}
	for _, et := range edgeTypes {
		r, _ := table.EdgeRule(et)
		fmt.Fprintf(out, "    %-*s  %s -> %s\n", width, et,
			orNone(typeNames(r.From)), orNone(typeNames(r.To)))
	}
}

func typeNames(types []diagram.Type) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

func orNone(items []string) string {
	if len(items) == 0 {
		return subtle.Sprint("none")
	}
	return strings.Join(items, ", ")
}
