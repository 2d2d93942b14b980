package cli

import (
	"fmt"

	"github.com/specialistvlad/graphedit/internal/app"
	"github.com/spf13/cobra"
)

func replayCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "replay SCRIPT...",
		Short: "Replay YAML event scripts through the gesture controller and check their expectations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			a := app.NewApp(cmd.ErrOrStderr(), cfg, newRulesLoader())
			defer a.Close()

			header(out, "replay")
			reports, runErr := a.Replay(cmd.Context(), args...)
			failed := 0
			for _, rep := range reports {
				ok := rep.Fingerprint != "" && len(rep.Failures) == 0
				if !ok {
					failed++
				}
				fmt.Fprintf(out, "  %s %s %s\n", statusIcon(ok), rep.Name, subtle.Sprintf("(%d steps)", rep.Steps))
				for _, f := range rep.Failures {
					fmt.Fprintf(out, "      %s\n", bad.Sprint(f))
				}
			}
			if runErr != nil {
				fmt.Fprintf(out, "\n  %s\n", bad.Sprint(runErr))
				return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d scripts failed", failed, len(reports))}
			}
			fmt.Fprintf(out, "\n  %d scripts passed\n", len(reports))
			return nil
		},
	}
}
