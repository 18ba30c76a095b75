package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iottest/wifiposition/internal/fingerprint"
	"github.com/iottest/wifiposition/internal/scan"

	"github.com/spf13/cobra"
)

const scanTimeout = 30 * time.Second

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan and list visible access points",
	Long: `Run one scan with the configured backend and print every visible access
point, strongest first. Use --json to print the sample exactly as it is sent
to the prediction endpoint.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listBackends, _ := cmd.Flags().GetBool("backends"); listBackends {
			fmt.Println("Available scan backends:")
			for i, b := range scan.GetAvailableBackends() {
				fmt.Printf("  %d. %s\n", i+1, b)
			}
			return nil
		}

		scanner, err := scan.NewScanner(&cfg.Scan)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()

		networks, err := scanner.Scan(ctx)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		sort.SliceStable(networks, func(i, j int) bool {
			return networks[i].Level > networks[j].Level
		})

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			sample := make(fingerprint.Sample, 0, len(networks))
			for _, n := range networks {
				sample = append(sample, fingerprint.AccessPointReading{
					Identifier:     fingerprint.Identifier(n.SSID, n.BSSID),
					SignalStrength: n.Level,
				})
			}
			data, err := fingerprint.EncodeSample(sample)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("%d access points (%s on %s)\n", len(networks), cfg.Scan.Backend, cfg.Scan.Interface)
		for _, n := range networks {
			ssid := n.SSID
			if ssid == "" {
				ssid = "<hidden>"
			}
			fmt.Printf("  %-32s %s %4d dBm\n", ssid, n.BSSID, n.Level)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().Bool("json", false, "print the scan in the prediction wire format")
	scanCmd.Flags().Bool("backends", false, "list the supported scan backends")
}
