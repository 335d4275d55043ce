package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/httpapi"
	"github.com/cumplo-spotter/cumplo-spotter/internal/secrets"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the funding requests HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() {
	ctx, stop := signalContext()
	defer stop()

	d := mustDeps()
	defer d.Close(context.Background())
	logger := d.logger

	svc, _, queue, err := d.service(ctx)
	if err != nil {
		logger.Fatal("building the service", zap.Error(err))
	}
	d.localWorker(ctx, queue)

	token, err := secrets.Optional(secrets.Source{
		Name:  "internal token",
		Value: d.cfg.API.InternalToken,
		File:  d.cfg.API.InternalTokenFile,
	})
	if err != nil {
		logger.Fatal("loading internal token", zap.Error(err))
	}
	if token == "" {
		logger.Warn("internal routes are disabled", zap.String("hint", "set api.internal-token-file"))
	}

	handler := httpapi.NewHandler(logger.Named("api"), svc, token, d.cfg.API.Timeout)
	if err := httpapi.Serve(ctx, logger, d.cfg.API.Addr, handler.InitRouter()); err != nil {
		logger.Fatal("serving the api", zap.Error(err))
	}
}
