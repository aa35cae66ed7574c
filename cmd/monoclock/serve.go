package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"go.sazak.io/monoclock/cmd/monoclock/api"
	"go.sazak.io/monoclock/cmd/monoclock/backend"
	"go.sazak.io/monoclock/internal/log"
	"go.sazak.io/monoclock/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve clock readings, reports and metrics over HTTP",
	Long: `serve exposes the backends over HTTP:

  GET  /api/elapsed?backend=NAME   one reading
  GET  /api/backends               health of every enabled backend
  GET  /api/report?backend=NAME    last probe report (POST runs a new one)
  POST /api/bench?backend=NAME     timed reads, feeds the call histogram
  GET  /metrics                    Prometheus metrics
  GET  /ws                         websocket stream of readings`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "port for the HTTP API server")
	serveCmd.Flags().Duration("interval", time.Second, "websocket tick interval, 0 disables the stream")
	serveCmd.Flags().StringSlice("backends", backend.Names, "backends to serve; unavailable ones are skipped")

	viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("serve.interval", serveCmd.Flags().Lookup("interval"))
	viper.BindPFlag("serve.backends", serveCmd.Flags().Lookup("backends"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := log.Logger().Named("serve")
	metrics.InitializeMetrics()

	// Unavailable backends are logged by OpenSet; serving carries on without them.
	set, err := backend.OpenSet(viper.GetStringSlice("serve.backends"))
	if set.Len() == 0 {
		return fmt.Errorf("no backend could be opened: %w", err)
	}
	defer func() {
		if err := set.Close(); err != nil {
			logger.Error("Error closing backends", zap.Error(err))
		}
	}()

	port := viper.GetInt("serve.port")
	server := api.NewServer(set, port, viper.GetDuration("serve.interval"), checkOptions())

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("Web mode enabled", zap.String("url", fmt.Sprintf("http://localhost:%d", port)))

	select {
	case <-cmd.Context().Done():
		logger.Info("Received stop signal, shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("Error stopping API server", zap.Error(err))
	}
	return nil
}
