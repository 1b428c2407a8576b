package main

import (
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/machado-saude/sector-priority/internal/observability"
	"github.com/machado-saude/sector-priority/internal/pipeline"
	"github.com/machado-saude/sector-priority/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the latest ranking over HTTP",
	Long: "Runs the pipeline once at startup and serves the result to map and dashboard consumers. " +
		"POST /refresh recomputes it from the configured sources.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applySourceFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		metrics := observability.NewMetrics()
		srv := server.New(pipeline.New(cfg, nil, st, metrics), cfg.Server, prometheus.DefaultGatherer)

		// a failed first run leaves the data endpoints at 503 until a refresh succeeds
		if _, err := srv.Refresh(ctx); err != nil {
			zap.L().Warn("initial prioritization run failed", zap.Error(err))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return srv.ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	addSourceFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
