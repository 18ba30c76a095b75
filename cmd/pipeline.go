package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/iottest/wifiposition/internal/fingerprint"
	"github.com/iottest/wifiposition/internal/service"
)

// executePipeline runs the post-recording steps given with -p in order.
func executePipeline(svc service.Service, outputFile string) error {
	if pipeline == "" {
		return nil
	}

	steps := []rune(strings.ToLower(pipeline))
	for i, step := range steps {
		fmt.Printf("Pipeline: executing step %d/%d: '%c'...\n", i+1, len(steps), step)

		switch step {
		case 's':
			if err := saveDataset(svc.Dataset(), outputFile); err != nil {
				return fmt.Errorf("pipeline save failed: %w", err)
			}
			fmt.Printf("Pipeline: %d entries saved to %s\n", svc.DatasetLen(), outputFile)

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
			return fmt.Errorf("unknown pipeline step: '%c' (valid: s=save, u=upload, c=clear)", step)
		}
	}

	return nil
}

// validatePipeline checks -p before any work starts. The record step is only
// meaningful for the run command.
func validatePipeline(allowRecord bool) error {
	if pipeline == "" {
		return nil
	}

	validSteps := map[rune]bool{
		's': true, // save
		'u': true, // upload
		'c': true, // clear
		'r': allowRecord,
	}

	steps := []rune(strings.ToLower(pipeline))
	for _, step := range steps {
		if !validSteps[step] {
			if allowRecord {
				return fmt.Errorf("invalid pipeline step: '%c' (valid: r=record, s=save, u=upload, c=clear)", step)
			}
			return fmt.Errorf("invalid pipeline step: '%c' (valid: s=save, u=upload, c=clear)", step)
		}
	}

	return nil
}

// saveDataset writes the dataset in the feed wire format.
func saveDataset(ds fingerprint.Dataset, path string) error {
	if path == "" {
		return fmt.Errorf("no output file, use --output")
	}
	data, err := fingerprint.EncodeDataset(ds)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
