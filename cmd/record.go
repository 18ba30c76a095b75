package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [label]",
	Short: "Record labeled fingerprints without the terminal UI",
	Long: `Scan nearby access points and append one dataset entry per completed scan
under the given label until interrupted. Pipeline steps given with -p run
after recording stops.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := args[0]
		outputFile, _ := cmd.Flags().GetString("output")
		slog.Info("Record command started", "label", label)

		svc, cleanup, err := newController(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := svc.StartScanning(); err != nil {
			return fmt.Errorf("failed to start scanning: %w", err)
		}
		if _, err := svc.StartRecording(label); err != nil {
			return err
		}

		slog.Info("Recording... Press Ctrl+C to stop", "label", label, "interval", cfg.Scan.Interval)

		// Handle interruption
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		<-sigChan
		slog.Info("Stopping recording...")

		svc.StopRecording()
		svc.StopScanning()
		fmt.Printf("Recorded %d entries for %q\n", svc.DatasetLen(), label)

		return executePipeline(svc, outputFile)
	},
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "dataset file written by the 's' pipeline step")
}
