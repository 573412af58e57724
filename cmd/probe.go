package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangedl/internal/output"
	"github.com/tanq16/rangedl/internal/utils"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [URL]",
		Short: "Show size, range support and content type without downloading",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), settings.Timeout)
			defer cancel()
			info, err := newEngine(settings).Probe(ctx, args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Probe failed: %v", err))
				os.Exit(1)
			}
			output.PrintHeader(utils.ResolveFileName(args[0]))
			fmt.Printf("  %s %s\n", output.FDebug("size:"), output.FDetail(fmt.Sprintf("%s (%d bytes)", utils.FormatBytes(uint64(info.Size)), info.Size)))
			fmt.Printf("  %s %s\n", output.FDebug("ranges:"), output.FDetail(fmt.Sprintf("%t", info.AcceptsRanges)))
			if info.ContentType != "" {
				fmt.Printf("  %s %s\n", output.FDebug("type:"), output.FDetail(info.ContentType))
			}
			if info.AcceptsRanges && settings.Segments > 1 && info.Size/int64(settings.Segments) >= settings.MinSegmentSize {
				output.PrintInfo(fmt.Sprintf("  would download in %d segments", settings.Segments))
			} else {
				output.PrintInfo("  would download as a single stream")
			}
		},
	}
}
