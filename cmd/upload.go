package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/iottest/wifiposition/internal/fingerprint"
	"github.com/iottest/wifiposition/internal/syncclient"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [dataset-file]",
	Short: "Upload a saved dataset file",
	Long: `Validate a dataset previously written with the 's' pipeline step and post
it to the feed endpoint of the configured server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read dataset: %w", err)
		}

		ds, err := fingerprint.DecodeDataset(data)
		if err != nil {
			return fmt.Errorf("invalid dataset file: %w", err)
		}

		client, err := syncclient.New(cfg.Server.BaseURL, cfg.Server.Timeout)
		if err != nil {
			return err
		}

		body, err := fingerprint.EncodeDataset(ds)
		if err != nil {
			return err
		}

		fmt.Printf("Uploading %d entries to %s%s...\n", len(ds), client.BaseURL(), cfg.Server.FeedPath)
		resp, err := client.Post(context.Background(), cfg.Server.FeedPath, body)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}

		fmt.Println(strings.TrimSpace(string(resp)))
		return nil
	},
}
