package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/specialistvlad/graphedit/internal/app"
	"github.com/spf13/cobra"
)

func connectCmd(g *globalFlags) *cobra.Command {
	var (
		url       string
		namespace string
		insecure  bool
		timeout   time.Duration
		health    int
		filter    bool
		scene     string
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Serve gestures for a remote scene host over socket.io",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, err := g.loadConfig(cmd, func(c *app.Config) {
				if flags.Changed("url") {
					c.HostURL = url
				}
				if flags.Changed("namespace") {
					c.HostNamespace = namespace
				}
				if flags.Changed("insecure-skip-verify") {
					c.InsecureSkipVerify = insecure
				}
				if flags.Changed("timeout") {
					c.ConnectTimeout = timeout
				}
				if flags.Changed("healthcheck-port") {
					c.HealthcheckPort = health
				}
				if flags.Changed("filter-invalid-ports") {
					c.FilterInvalidPorts = filter
				}
				if flags.Changed("scene") {
					c.ScenePath = scene
				}
			})
			if err != nil {
				return err
			}
			if cfg.HostURL == "" {
				return &ExitError{Code: 2, Message: "a scene host URL is required (--url or host_url)"}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := app.NewApp(cmd.ErrOrStderr(), cfg, newRulesLoader())
			defer a.Close()
			return a.Connect(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&url, "url", "", "Scene host socket.io URL, e.g. http://localhost:3000/socket.io/.")
	f.StringVar(&namespace, "namespace", "/", "socket.io namespace.")
	f.BoolVar(&insecure, "insecure-skip-verify", false, "Skip TLS certificate verification.")
	f.DurationVar(&timeout, "timeout", 15*time.Second, "Connection timeout.")
	f.IntVar(&health, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	f.BoolVar(&filter, "filter-invalid-ports", false, "Hide invalid connection candidates instead of marking them.")
	f.StringVar(&scene, "scene", "", "YAML scene to load before serving. The host can also send graph:load.")
	return cmd
}
