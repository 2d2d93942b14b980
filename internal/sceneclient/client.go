// Package sceneclient connects the gesture controller to a remote scene
// host over socket.io. The host loads its graph with graph:load and then
// sends pointer and keyboard events; the client answers with highlight
// requests and gesture results.
package sceneclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/graphedit/internal/ctxlog"
	"github.com/specialistvlad/graphedit/internal/gesture"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Config describes the host to connect to.
type Config struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// Timeout bounds the initial connection.
	Timeout time.Duration
}

const defaultTimeout = 15 * time.Second

// Dial connects to the host and waits for the namespace handshake.
func Dial(ctx context.Context, cfg Config) (*socket.Socket, error) {
	logger := ctxlog.FromContext(ctx).With("url", cfg.URL, "namespace", cfg.Namespace)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connected := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		connected <- connectError(errs...)
	})

	logger.Debug("Connecting to scene host...")
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		logger.Info("Connected to scene host", "sid", io.Id())
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("waiting for scene host: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for scene host", timeout)
	}
}

// connectError turns the arguments of a connect_error event into an error.
func connectError(args ...any) error {
	if len(args) == 0 || args[0] == nil {
		return errors.New("connect_error without details")
	}
	if err, ok := args[0].(error); ok {
		return err
	}
	return fmt.Errorf("%v", args[0])
}

// Serve routes host events on io through ctrl until ctx is done or the host
// disconnects. Whatever gesture is running when Serve returns is canceled.
func Serve(ctx context.Context, io *socket.Socket, ctrl *gesture.Controller) error {
	ctx, logger := ctxlog.With(ctx, "sid", io.Id())
	b := NewBridge(ctrl, io)

	for _, name := range InboundEvents {
		io.On(types.EventName(name), func(args ...any) {
			// Errors are already reported to the host.
			_ = b.Handle(ctx, name, args...)
		})
	}

	disconnected := make(chan string, 1)
	io.Once(types.EventName("disconnect"), func(args ...any) {
		reason := ""
		if len(args) > 0 {
			reason = fmt.Sprint(args[0])
		}
		disconnected <- reason
	})
	defer ctrl.CancelAll(ctx)

	logger.Info("Serving scene host events.")
	select {
	case reason := <-disconnected:
		logger.Info("Scene host disconnected.", "reason", reason)
		return nil
	case <-ctx.Done():
		io.Disconnect()
		return ctx.Err()
	}
}
