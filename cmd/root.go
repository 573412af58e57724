package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangedl/internal/config"
	"github.com/tanq16/rangedl/internal/output"
	"github.com/tanq16/rangedl/internal/utils"
)

var (
	configPath string
	envFile    string
	debug      bool
	segments   int
	workers    int
	timeout    time.Duration
	kaTimeout  time.Duration
	userAgent  string
	headers    []string
	outputDir  string
	category   string
	settings   config.Settings
)

var RangedlVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "rangedl [URL]",
	Short:   "rangedl is a resumable, segmented HTTP download manager",
	Version: RangedlVersion,
	Args:    cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		settings = s
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			return
		}
		entries := []utils.DownloadEntry{{URL: args[0], Category: category}}
		if err := runDownloads(settings, entries); err != nil {
			output.PrintError(fmt.Sprintf("Encountered failed download: %v", err))
			os.Exit(1)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSettings layers the config file, the environment, and explicitly set flags.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	s := config.Default()
	if configPath != "" {
		var err error
		if s, err = config.LoadFromFile(configPath); err != nil {
			return config.Settings{}, err
		}
	}
	if err := s.LoadFromEnv(envFile); err != nil {
		return config.Settings{}, err
	}

	var override config.Settings
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		override.DownloadDir = outputDir
	}
	if flags.Changed("segments") {
		override.Segments = segments
	}
	if flags.Changed("workers") {
		override.Workers = workers
	}
	if flags.Changed("timeout") {
		override.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		override.KeepAliveTimeout = kaTimeout
	}
	if flags.Changed("user-agent") {
		override.UserAgent = userAgent
		if userAgent == "randomize" {
			override.UserAgent = utils.GetRandomUserAgent()
		}
	}
	s = s.Merge(override)
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML settings file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file seeding RANGEDL_* variables (ignored if missing)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", "", "Base download directory")
	rootCmd.PersistentFlags().IntVarP(&segments, "segments", "c", 4, "Number of concurrent segments per download")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 1, "Number of downloads to run in parallel")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 5*time.Minute, "Per-request stall timeout (eg. 30s, 5m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Referer: https://example.com'); can be specified multiple times")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&category, "category", "", "Category sub-directory for the download")

	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newCleanCmd())
}
