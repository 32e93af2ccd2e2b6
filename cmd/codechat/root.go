package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nstogner/codechat/pkg/config"
	"github.com/nstogner/codechat/pkg/controller"
	"github.com/nstogner/codechat/pkg/events"
	"github.com/nstogner/codechat/pkg/sandbox"
	"github.com/nstogner/codechat/pkg/sandbox/docker"
	"github.com/nstogner/codechat/pkg/sandbox/jsvm"
)

var (
	cfgFile string
	cfg     *config.Config
	version = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "codechat",
	Short: "Multi-session chat with an isolated JavaScript sandbox",
	Long: `codechat keeps several independent chat sessions and, in code mode,
runs JavaScript snippets in a disposable sandbox and attaches the captured
output of the #output element to the conversation.

Configuration is read from --config, $XDG_CONFIG_HOME/codechat/config.yaml
or ./config.yaml, and CODECHAT_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.New(), cfgFile)
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/codechat/config.yaml)")
}

func setupLogging(w io.Writer, level slog.Level) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", level)
}

func buildExecutor(ctx context.Context, cfg *config.Config) (*sandbox.Executor, error) {
	var backend sandbox.Backend
	switch cfg.Sandbox.Backend {
	case config.BackendDocker:
		b, err := docker.New(docker.Config{Image: cfg.Sandbox.Image, Memory: cfg.Sandbox.Memory})
		if err != nil {
			return nil, err
		}
		if _, err := b.Prune(ctx); err != nil {
			slog.Warn("Failed to prune sandbox containers", "error", err)
		}
		backend = b
	default:
		backend = jsvm.New()
	}
	slog.Info("Sandbox ready", "backend", cfg.Sandbox.Backend, "timeout", cfg.Sandbox.Timeout)
	return sandbox.New(backend, sandbox.WithTimeout(cfg.Sandbox.Timeout)), nil
}

func buildController(cfg *config.Config, exec controller.Executor) (*controller.Controller, error) {
	responder, err := controller.NewResponder(cfg.Responder, nil)
	if err != nil {
		return nil, err
	}
	return controller.New(exec,
		controller.WithLatency(cfg.Latency),
		controller.WithResponder(responder),
	), nil
}

// startRelay mirrors controller events to Redis when events.redis_addr is set.
// The returned function stops the relay.
func startRelay(ctx context.Context, cfg *config.Config, ctrl *controller.Controller) (func(), error) {
	if cfg.Events.RedisAddr == "" {
		return func() {}, nil
	}
	pub, err := events.DialRedis(ctx, cfg.Events.RedisAddr, cfg.Events.RedisChannel)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	ch, unsubscribe := ctrl.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		events.Relay(ctx, ch, pub)
	}()
	slog.Info("Relaying events to redis", "addr", cfg.Events.RedisAddr, "channel", pub.Channel())

	return func() {
		cancel()
		unsubscribe()
		<-done
		if err := pub.Close(); err != nil {
			slog.Warn("Failed to close redis client", "error", err)
		}
	}, nil
}
