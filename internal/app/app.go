package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/graphedit/internal/constraint"
	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/editlog"
	"github.com/specialistvlad/graphedit/internal/gesture"
	"github.com/specialistvlad/graphedit/internal/highlight"
	"github.com/specialistvlad/graphedit/internal/inmemorygraph"
	"github.com/specialistvlad/graphedit/internal/ports"
)

// RulesLoader builds the rule table from the configured patterns.
type RulesLoader interface {
	Load(ctx context.Context, patterns ...string) (*constraint.Table, error)
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	rules      *constraint.Table
	journal    *editlog.Journal
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App with its own isolated logger. Failing to load the rules
// or to open the journal is a fatal startup error and panics.
func NewApp(outW io.Writer, cfg *Config, loader RulesLoader) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	rules, err := loader.Load(ctx, cfg.RulesPatterns...)
	if err != nil {
		panic(fmt.Errorf("failed to load rules: %w", err))
	}
	logger.Debug("Rules loaded.", "node_types", len(rules.NodeTypes()), "edge_types", len(rules.EdgeTypes()))
	for _, f := range rules.Lint() {
		logger.Warn("Rule table finding.", "subject", f.Subject, "finding", f.Message)
	}

	a := &App{
		outW:   outW,
		ctx:    ctx,
		logger: logger,
		config: cfg,
		rules:  rules,
	}
	if cfg.JournalPath != "" {
		j, err := editlog.Open(cfg.JournalPath)
		if err != nil {
			panic(fmt.Errorf("failed to open journal: %w", err))
		}
		a.journal = j
		logger.Debug("Commit journal opened.", "path", cfg.JournalPath)
	}
	return a
}

// Context returns the app context carrying its logger.
func (a *App) Context() context.Context { return a.ctx }

func (a *App) Rules() *constraint.Table { return a.rules }

// Journal returns the commit journal, or nil when it is disabled.
func (a *App) Journal() *editlog.Journal { return a.journal }

// NewStore returns an empty store. With the journal enabled every commit of
// the store is recorded in its own journal session.
func (a *App) NewStore() *inmemorygraph.Store {
	s := inmemorygraph.New()
	if a.journal != nil {
		sess := a.journal.NewSession()
		s.Observe(sess)
		a.logger.Debug("Store attached to journal.", "session", sess.ID)
	}
	return s
}

// ControllerOptions returns the gesture options shared by every entry
// point, feeding highlights to sink.
func (a *App) ControllerOptions(sink highlight.Sink) gesture.Options {
	mode := ports.MarkInvalid
	if a.config.FilterInvalidPorts {
		mode = ports.FilterInvalid
	}
	return gesture.Options{Model: a.rules, Sink: sink, Mode: mode}
}

// Close releases the journal and stops the health check server.
func (a *App) Close() error {
	if err := a.closeHealthCheckServer(); err != nil {
		return err
	}
	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}
