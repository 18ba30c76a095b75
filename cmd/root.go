package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/iottest/wifiposition/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	pipeline     string
	profile      string
	logFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "wifipos [label]",
	Short: "WiFi fingerprint collector for indoor positioning",
	Long: `wifipos scans nearby access points, records labeled fingerprints while
recording is active and pushes them to a remote positioning service.

The latest scan is also sent to the service once per interval and the
returned location is shown as the live prediction.

When a label is provided, it acts as 'wifipos record [label]'.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel, os.Stderr)

		if cfgFile == "" {
			cfgFile = config.DefaultConfigFile()
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "file", cfgFile, "profile", cfg.Profile)

		if err := validatePipeline(cmd == runCmd); err != nil {
			return err
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return recordCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/wifiposition.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "steps after recording: s=save, u=upload, c=clear (e.g., 'su')")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file (the collect UI discards logs otherwise)")

	rootCmd.Flags().StringP("output", "o", "", "dataset file written by the 's' pipeline step")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int, w io.Writer) {
	var slogLevel slog.Level
	switch {
	case level >= 1:
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(w, opts)
	slog.SetDefault(slog.New(handler))
}

// redirectLogging sends logs to --log-file, or drops them, so they do not
// draw over the terminal UI. The returned function closes the file.
func redirectLogging() (func(), error) {
	if logFile == "" {
		setupLogging(verboseLevel, io.Discard)
		return func() {}, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	setupLogging(verboseLevel, f)
	return func() { f.Close() }, nil
}
