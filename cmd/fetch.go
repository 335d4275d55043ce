package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cumplo-spotter/cumplo-spotter/internal/metrics"
	"github.com/cumplo-spotter/cumplo-spotter/internal/utils"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the available funding requests and notify every user with a webhook",
	Run: func(cmd *cobra.Command, _ []string) {
		interval, _ := cmd.Flags().GetDuration("interval")
		fetch(interval)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().DurationP("interval", "i", 0, "repeat the fetch with this interval. Default is a single run.")
}

func fetch(interval time.Duration) {
	ctx, stop := signalContext()
	defer stop()

	d := mustDeps()
	defer d.Close(context.Background())
	logger := d.logger

	svc, _, queue, err := d.service(ctx)
	if err != nil {
		logger.Fatal("building the service", zap.Error(err))
	}
	if interval > 0 {
		d.localWorker(ctx, queue)
	} else {
		defer d.flush(ctx, queue)
	}

	if d.cfg.Metrics.Addr != "" {
		metrics.StartServer(ctx, logger, d.cfg.Metrics.Addr)
	}

	err = utils.Every(ctx, interval, func(ctx context.Context) error {
		n, err := svc.NotifyAll(ctx)
		if err != nil {
			// one failing user must not stop the loop
			logger.Error("notifying users", zap.Int("notified", n), zap.Error(err))
			return nil
		}
		logger.Info("fetch finished", zap.Int("notified", n))
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("fetching", zap.Error(err))
	}
}
