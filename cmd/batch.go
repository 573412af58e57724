package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangedl/internal/output"
	"github.com/tanq16/rangedl/internal/utils"
	"gopkg.in/yaml.v3"
)

// readBatchFile parses a YAML list of {link, category, dir} entries, dropping
// entries without a link.
func readBatchFile(path string) ([]utils.DownloadEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	var raw []utils.DownloadEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %v", err)
	}
	var entries []utils.DownloadEntry
	for i, entry := range raw {
		if entry.URL == "" {
			output.PrintWarning(fmt.Sprintf("Warning: entry %d has no link, skipping...", i+1))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [YAML_FILE] [OPTIONS]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := readBatchFile(args[0])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if len(entries) == 0 {
				output.PrintError("No valid entries found in the batch file")
				os.Exit(1)
			}
			if err := runDownloads(settings, entries); err != nil {
				output.PrintError("Encountered failed download(s)")
				os.Exit(1)
			}
		},
	}
}
