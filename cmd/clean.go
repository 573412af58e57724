package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangedl/internal/output"
	"github.com/tanq16/rangedl/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [DIR]",
		Short: "Delete leftover partial files (.temp, .partN.temp)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := settings.DownloadDir
			if len(args) == 1 {
				dir = args[0]
			}
			removed, err := utils.CleanDir(dir)
			for _, name := range removed {
				output.PrintDetail("  removed " + name)
			}
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up temporary files: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Temporary files cleaned up (%d removed)", len(removed)))
		},
	}
}
