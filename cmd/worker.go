package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/dispatch"
	"github.com/cumplo-spotter/cumplo-spotter/internal/metrics"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deliver queued webhook tasks",
	Run: func(cmd *cobra.Command, _ []string) {
		attempts, _ := cmd.Flags().GetInt("attempts")
		worker(attempts)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().Int("attempts", 3, "delivery attempts per task")
}

func worker(attempts int) {
	ctx, stop := signalContext()
	defer stop()

	d := mustDeps()
	defer d.Close(context.Background())
	logger := d.logger

	if d.cfg.Dispatch.Driver == dispatch.DriverMemory || d.cfg.Dispatch.Driver == "" {
		logger.Fatal("worker needs a shared queue", zap.String("hint", "set dispatch.driver to redis or rabbitmq"))
	}

	queue, err := d.queue(ctx)
	if err != nil {
		logger.Fatal("building the queue", zap.Error(err))
	}

	if d.cfg.Metrics.Addr != "" {
		metrics.StartServer(ctx, logger, d.cfg.Metrics.Addr)
	}

	w := dispatch.NewWorker(logger.Named("worker"), queue, nil)
	if attempts > 0 {
		w.Attempts = attempts
	}
	if err := w.Run(ctx); err != nil {
		logger.Fatal("running the worker", zap.Error(err))
	}
}
