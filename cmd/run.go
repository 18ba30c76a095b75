package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [label]",
	Short: "Execute pipeline steps for a label",
	Long: `Execute the specified pipeline steps in order. Use -p to specify which steps to run:
r=record until Enter, s=save dataset, u=upload, c=clear.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := args[0]
		outputFile, _ := cmd.Flags().GetString("output")

		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rsu)")
		}

		svc, cleanup, err := newController(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		steps := []rune(strings.ToLower(pipeline))
		for i, step := range steps {
			fmt.Printf("Pipeline: executing step %d/%d: '%c'...\n", i+1, len(steps), step)

			switch step {
			case 'r':
				if err := svc.StartScanning(); err != nil {
					return fmt.Errorf("pipeline record failed: %w", err)
				}
				if _, err := svc.StartRecording(label); err != nil {
					return fmt.Errorf("pipeline record failed: %w", err)
				}

				// Wait for user input to stop recording
				fmt.Printf("Pipeline: recording %q - Press Enter to stop...\n", label)
				scanner := bufio.NewScanner(os.Stdin)
				scanner.Scan()

				svc.StopRecording()
				svc.StopScanning()
				fmt.Printf("Pipeline: recording completed, %d entries\n", svc.DatasetLen())

			case 's':
				if err := saveDataset(svc.Dataset(), outputFile); err != nil {
					return fmt.Errorf("pipeline save failed: %w", err)
				}
				fmt.Printf("Pipeline: dataset saved to %s\n", outputFile)

			case 'u':
				resp, err := svc.Upload(context.Background())
				if err != nil {
					return fmt.Errorf("pipeline upload failed: %w", err)
				}
				fmt.Printf("Pipeline: upload completed: %s\n", strings.TrimSpace(resp))

			case 'c':
				svc.Clear()
				fmt.Println("Pipeline: dataset cleared")

			default:
				return fmt.Errorf("unknown pipeline step: '%c' (valid: r=record, s=save, u=upload, c=clear)", step)
			}
		}

		return nil
	},
}

func init() {
	runCmd.Flags().StringP("output", "o", "", "dataset file written by the 's' step")
}
