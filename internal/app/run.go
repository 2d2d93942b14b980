package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/gesture"
	"github.com/specialistvlad/graphedit/internal/graphstore"
	"github.com/specialistvlad/graphedit/internal/highlight"
	"github.com/specialistvlad/graphedit/internal/sceneclient"
	"github.com/specialistvlad/graphedit/internal/script"
)

// Replay runs each script file against a fresh store. Every script runs
// even if an earlier one fails; the returned error joins all failures.
func (a *App) Replay(ctx context.Context, paths ...string) ([]script.Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("Replay started.", "scripts", len(paths))

	reports := make([]script.Report, 0, len(paths))
	var errs []error
	for _, path := range paths {
		s, err := script.LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			reports = append(reports, script.Report{Name: path})
			continue
		}
		runner := script.NewRunner(a.NewStore(), a.rules, a.ControllerOptions(highlight.LogSink{Ctx: ctx}))
		rep, err := runner.Run(ctx, s)
		reports = append(reports, rep)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	a.logger.Debug("Replay finished.", "failed", len(errs))
	return reports, errors.Join(errs...)
}

// NewController builds a controller over a new store, seeded with the
// configured scene file when there is one.
func (a *App) NewController(ctx context.Context, sink highlight.Sink) (*gesture.Controller, error) {
	opts := a.ControllerOptions(sink)
	opts.Store = a.NewStore()
	ctrl := gesture.New(opts)
	if a.config.ScenePath == "" {
		return ctrl, nil
	}

	scene, err := script.LoadSceneFile(a.config.ScenePath)
	if err != nil {
		return nil, err
	}
	err = ctrl.Update(ctx, "load scene", func(g graphstore.Store) error {
		_, err := scene.AddTo(g)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("Scene loaded.", "path", a.config.ScenePath, "nodes", len(scene.Nodes), "edges", len(scene.Edges))
	return ctrl, nil
}

// Connect serves a remote scene host until ctx is done or the host
// disconnects.
func (a *App) Connect(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if a.config.HostURL == "" {
		return errors.New("no scene host URL configured")
	}

	io, err := sceneclient.Dial(ctx, sceneclient.Config{
		URL:                a.config.HostURL,
		Namespace:          a.config.HostNamespace,
		InsecureSkipVerify: a.config.InsecureSkipVerify,
		Timeout:            a.config.ConnectTimeout,
	})
	if err != nil {
		return err
	}

	ctrl, err := a.NewController(ctx, sceneclient.NewSink(ctx, io))
	if err != nil {
		io.Disconnect()
		return err
	}

	if _, err := a.healthCheckServer(ctrl); err != nil {
		io.Disconnect()
		return err
	}
	defer func() {
		if err := a.closeHealthCheckServer(); err != nil {
			a.logger.Warn("Failed to stop health check server.", "error", err)
		}
	}()

	return sceneclient.Serve(ctx, io, ctrl)
}
