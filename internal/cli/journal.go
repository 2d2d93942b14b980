package cli

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/graphedit/internal/app"
	"github.com/specialistvlad/graphedit/internal/editlog"
	"github.com/spf13/cobra"
)

func journalCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the commit journal",
	}
	cmd.AddCommand(journalListCmd(g), journalVerifyCmd(g))
	return cmd
}

// openJournal opens the journal named by --journal, or by the config file.
func openJournal(g *globalFlags) (*editlog.Journal, error) {
	path := g.journal
	if path == "" && g.configPath != "" {
		cfg, err := app.LoadConfigFile(g.configPath)
		if err != nil {
			return nil, usageError(err)
		}
		path = cfg.JournalPath
	}
	if path == "" {
		return nil, usageError(errors.New("--journal is required"))
	}
	j, err := editlog.Open(path)
	if err != nil {
		return nil, &ExitError{Code: 1, Message: err.Error()}
	}
	return j, nil
}

func journalListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List journaled batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(g)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Entries(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			header(out, "journal")
			for _, e := range entries {
				fmt.Fprintf(out, "  %4d  %s  %-24s %3d ops  %s\n",
					e.ID, subtle.Sprint(e.CreatedAt.UTC().Format("2006-01-02 15:04:05")),
					e.Name, e.Ops, subtle.Sprint(shortFingerprint(e.After)))
			}
			fmt.Fprintf(out, "\n  %d entries\n", len(entries))
			return nil
		},
	}
}

func journalVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check journal checksums and fingerprint chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(g)
			if err != nil {
				return err
			}
			defer j.Close()

			out := cmd.OutOrStdout()
			n, err := j.Verify(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "  %s %v\n", statusIcon(false), err)
				return &ExitError{Code: 1, Message: fmt.Sprintf("journal invalid after %d entries", n)}
			}
			fmt.Fprintf(out, "  %s %d entries verified\n", statusIcon(true), n)
			return nil
		},
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
