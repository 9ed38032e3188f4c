package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hedeqiang/chainprobe"
	"github.com/hedeqiang/chainprobe/internal/syncutil"
	"github.com/hedeqiang/chainprobe/middleware"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config
	logger  zerolog.Logger

	registry *prometheus.Registry
	metrics  *middleware.Metrics
	group    *syncutil.Group
}

// execute runs the CLI with args and logs a failure to stderr. An
// interrupt cancels the running command.
func execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, a := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if terr := a.teardown(); terr != nil && err == nil {
		err = terr
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("chainprobe failed")
	}
	return err
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{
		v:      newViper(),
		logger: newLogger(os.Stderr, zerolog.InfoLevel),
	}

	root := &cobra.Command{
		Use:   "chainprobe",
		Short: "Probe a Substrate node over JSON-RPC",
		Long: `chainprobe opens one RPC connection to a Substrate node, issues read-only
queries or samples new block headers, prints the results and exits.

Settings come from flags, CHAINPROBE_* environment variables and an optional
YAML config file, in that order of precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	defaults := chainprobe.DefaultConfig()
	flags.StringVar(&a.cfgFile, "config", "", "YAML config file")
	flags.String("endpoint", chainprobe.DefaultEndpoint, "node RPC endpoint (ws, wss, http or https)")
	flags.Duration("timeout", defaults.RequestTimeout, "per-request timeout, 0 disables")
	flags.Duration("dial-timeout", defaults.DialTimeout, "connection timeout, 0 disables")
	flags.Int("dial-retries", defaults.DialRetries, "extra connection attempts with exponential backoff")
	flags.Duration("keepalive", defaults.KeepAlive, "WebSocket ping period, 0 disables")
	flags.Duration("call-interval", 0, "minimum spacing between requests, 0 disables")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.StringP("output", "o", outputText, "output format (text, json, yaml)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.Uint16("ss58-prefix", 42, "SS58 network prefix for printed addresses")

	a.bindFlags(root, map[string]string{
		"endpoint":      "endpoint",
		"timeout":       "timeout",
		"dial_timeout":  "dial-timeout",
		"dial_retries":  "dial-retries",
		"keepalive":     "keepalive",
		"call_interval": "call-interval",
		"log_level":     "log-level",
		"output":        "output",
		"metrics_addr":  "metrics-addr",
		"ss58_prefix":   "ss58-prefix",
	}, true)

	root.AddCommand(
		newMethodsCmd(a),
		newChainCmd(a),
		newVersionCmd(a),
		newInfoCmd(a),
		newHeadsCmd(a),
		newStorageCmd(a),
	)
	return root, a
}

// bindFlags maps viper keys to flag names on cmd.
func (a *app) bindFlags(cmd *cobra.Command, keys map[string]string, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	for key, name := range keys {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "log level %q", cfg.LogLevel)
	}
	a.logger = newLogger(cmd.ErrOrStderr(), level)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector())
	a.metrics = middleware.NewMetrics(a.registry)

	a.group = syncutil.NewGroup(cmd.Context())
	if cfg.MetricsAddr != "" {
		a.group.Go(func(ctx context.Context) error {
			return serveMetrics(ctx, cfg.MetricsAddr, a.registry, a.logger, nil)
		})
	}
	return nil
}

// teardown stops the metrics server, if any.
func (a *app) teardown() error {
	if a.group == nil {
		return nil
	}
	return a.group.Stop()
}

// connect opens a probe with the middleware stack built from the config.
func (a *app) connect(ctx context.Context) (*chainprobe.Probe, error) {
	mws := []middleware.Middleware{
		middleware.NewLogger(a.logger),
		a.metrics,
	}
	if a.cfg.CallInterval > 0 {
		mws = append(mws, middleware.NewRateLimit(a.cfg.CallInterval))
	}

	return chainprobe.Connect(ctx, a.cfg.Endpoint,
		chainprobe.WithConfig(a.cfg.Config),
		chainprobe.WithLogger(a.logger),
		chainprobe.WithMiddleware(mws...),
	)
}

// run connects, calls fn and always closes the probe.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, p *chainprobe.Probe, out printer) error) (err error) {
	ctx := cmd.Context()
	p, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, p, printer{w: cmd.OutOrStdout(), format: a.cfg.Output})
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
