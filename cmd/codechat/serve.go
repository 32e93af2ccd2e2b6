package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nstogner/codechat/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat over HTTP and websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(cmd.ErrOrStderr(), cfg.SlogLevel())

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		exec, err := buildExecutor(ctx, cfg)
		if err != nil {
			return err
		}
		defer exec.Close()

		ctrl, err := buildController(cfg, exec)
		if err != nil {
			return err
		}
		defer ctrl.Close()

		stopRelay, err := startRelay(ctx, cfg, ctrl)
		if err != nil {
			return err
		}
		defer stopRelay()

		srv := server.New(ctrl, exec)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(addr)
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			slog.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Server shutdown failed", "error", err)
			}
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
