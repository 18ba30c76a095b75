package cmd

import (
	"fmt"
	"log/slog"

	"github.com/iottest/wifiposition/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Interactive fingerprint collector",
	Long: `Open the terminal UI. Scanning and live prediction start immediately;
Space toggles recording under a label, u uploads the dataset, c clears it
and p pauses both loops.

Logs are written to --log-file when given, otherwise discarded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		closeLog, err := redirectLogging()
		if err != nil {
			return err
		}
		defer closeLog()

		svc, cleanup, err := newController(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := svc.StartScanning(); err != nil {
			return fmt.Errorf("failed to start scanning: %w", err)
		}
		svc.StartPrediction()

		p := tea.NewProgram(tui.New(svc), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running TUI: %w", err)
		}

		slog.Info("Collector closed", "entries", svc.DatasetLen())
		return nil
	},
}
