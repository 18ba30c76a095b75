package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iottest/wifiposition/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the collector with a web interface so recording can be controlled
from a phone or any device on the same network.

The server will display the local network URL for easy access from mobile devices.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		svc, cleanup, err := newController(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := svc.StartScanning(); err != nil {
			return fmt.Errorf("failed to start scanning: %w", err)
		}
		svc.StartPrediction()

		srv := server.New(svc, cfgFile, port)
		slog.Info("wifipos web server starting", "port", port, "config", cfgFile, "profile", cfg.Profile)

		errChan := make(chan error, 1)
		go func() {
			errChan <- srv.Start()
		}()

		// Handle interruption
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-sigChan:
		}

		slog.Info("Shutting down web server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return <-errChan
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
}
