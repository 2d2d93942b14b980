package cli

import (
	"errors"
	"io"

	"github.com/specialistvlad/graphedit/internal/app"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// usageError marks a mistake in the invocation itself.
func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// globalFlags are shared by every command that builds an App.
type globalFlags struct {
	configPath string
	rules      []string
	logLevel   string
	logFormat  string
	journal    string
}

// NewRootCommand builds the command tree writing to outW.
func NewRootCommand(outW io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "graphedit",
		Short: "Constraint-driven graph editing core",
		Long: "graphedit drives edge creation and drag/merge gestures over a graph\n" +
			"whose editing rules come from HCL rule files.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(outW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to a TOML config file.")
	pf.StringSliceVarP(&g.rules, "rules", "r", nil, "Rule file, directory or doublestar pattern (repeatable).")
	pf.StringVar(&g.logLevel, "log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log output format: 'text' or 'json'.")
	pf.StringVar(&g.journal, "journal", "", "SQLite commit journal path. Empty disables journaling.")

	root.AddCommand(
		rulesCmd(g),
		replayCmd(g),
		connectCmd(g),
		journalCmd(g),
	)
	return root
}

// Execute runs the command line in args. Errors that are not already an
// ExitError exit with code 1.
func Execute(args []string, outW io.Writer) error {
	root := NewRootCommand(outW)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: 1, Message: err.Error()}
}

// loadConfig starts from the config file, or the defaults, and applies the
// flags set explicitly on cmd.
func (g *globalFlags) loadConfig(cmd *cobra.Command, mutate func(*app.Config)) (*app.Config, error) {
	cfg := app.DefaultConfig()
	if g.configPath != "" {
		fileCfg, err := app.LoadConfigFile(g.configPath)
		if err != nil {
			return nil, usageError(err)
		}
		cfg = fileCfg
	}

	flags := cmd.Flags()
	if flags.Changed("rules") {
		cfg.RulesPatterns = g.rules
	}
	if flags.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("log-format") || cfg.LogFormat == "" {
		cfg.LogFormat = g.logFormat
	}
	if flags.Changed("journal") {
		cfg.JournalPath = g.journal
	}
	if mutate != nil {
		mutate(&cfg)
	}

	valid, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError(err)
	}
	return valid, nil
}
