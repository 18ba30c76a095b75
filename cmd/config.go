package cmd

import (
	"fmt"

	"github.com/iottest/wifiposition/internal/config"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage wifipos configuration settings and profiles.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration with inheritance indicators",
	Long:  `Display the resolved configuration and mark which values are inherited from the base section and which come from the selected profile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cfg.Inheritance
		ind := func(key string) string { return getInheritanceIndicator(in.Source(key)) }

		fmt.Printf("=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Profile)
		fmt.Printf("file: %s\n", cfgFile)

		fmt.Printf("\n[Server]\n")
		fmt.Printf("base_url: %s %s\n", cfg.Server.BaseURL, ind("server.base_url"))
		fmt.Printf("feed_path: %s %s\n", cfg.Server.FeedPath, ind("server.feed_path"))
		fmt.Printf("predict_path: %s %s\n", cfg.Server.PredictPath, ind("server.predict_path"))
		fmt.Printf("timeout: %s %s\n", cfg.Server.Timeout, ind("server.timeout"))

		fmt.Printf("\n[Scan]\n")
		fmt.Printf("backend: %s %s\n", cfg.Scan.Backend, ind("scan.backend"))
		fmt.Printf("interface: %s %s\n", cfg.Scan.Interface, ind("scan.interface"))
		fmt.Printf("interval: %s %s\n", cfg.Scan.Interval, ind("scan.interval"))
		if cfg.Scan.ReplayFile != "" {
			fmt.Printf("replay_file: %s %s\n", cfg.Scan.ReplayFile, ind("scan.replay_file"))
		}

		fmt.Printf("\n[Prediction]\n")
		fmt.Printf("interval: %s %s\n", cfg.Prediction.Interval, ind("prediction.interval"))

		fmt.Printf("\n[MQTT]\n")
		if !cfg.MQTT.Enabled() {
			fmt.Printf("disabled\n")
		} else {
			fmt.Printf("broker: %s %s\n", cfg.MQTT.Broker, ind("mqtt.broker"))
			fmt.Printf("topic: %s %s\n", cfg.MQTT.Topic, ind("mqtt.topic"))
			fmt.Printf("device_id: %s %s\n", cfg.MQTT.DeviceID, ind("mqtt.device_id"))
		}

		fmt.Printf("\n[Metrics]\n")
		fmt.Printf("enabled: %t %s\n", cfg.Metrics.Enabled, ind("metrics.enabled"))

		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use [profile]",
	Short: "Set the active profile in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UpdateActiveConfig(cfgFile, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active profile set to %s\n", args[0])
		return nil
	},
}

var configProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the profiles defined in the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := config.ProfileNames(cfgFile)
		if err != nil {
			return err
		}
		for _, name := range names {
			marker := " "
			if name == cfg.Profile {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInfoCmd)
	configCmd.AddCommand(configUseCmd)
	configCmd.AddCommand(configProfilesCmd)
}
