package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Print live location predictions",
	Long: `Scan continuously and send the latest sample to the prediction endpoint
once per interval. Each new prediction is printed until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := newController(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := svc.StartScanning(); err != nil {
			return fmt.Errorf("failed to start scanning: %w", err)
		}
		svc.StartPrediction()

		slog.Info("Predicting... Press Ctrl+C to stop", "server", cfg.Server.BaseURL, "interval", cfg.Prediction.Interval)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		ticker := time.NewTicker(cfg.Prediction.Interval)
		defer ticker.Stop()

		var lastSeen time.Time
		for {
			select {
			case <-sigChan:
				return nil
			case <-ticker.C:
				location, at := svc.Prediction()
				if at.IsZero() || at.Equal(lastSeen) {
					continue
				}
				lastSeen = at
				fmt.Printf("%s  %s\n", at.Format("15:04:05"), location)
			}
		}
	},
}
