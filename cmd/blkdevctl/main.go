package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sigreer/blkdevctl/internal/blkdev"
	"github.com/sigreer/blkdevctl/internal/config"
	"github.com/sigreer/blkdevctl/internal/logging"
	"github.com/sigreer/blkdevctl/internal/version"
)

var (
	cfgFile   string
	rootDir   string
	logLevel  string
	logFormat string

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "blkdevctl",
	Short: "Block device resolution and enclosure LED control",
	Long: `blkdevctl resolves block device paths to their whole-disk base device,
reads queue attributes, finds devices by filesystem tag, and drives the
locate LED of a disk through a storage management endpoint.

Errors exit with the errno of the failure (ENODEV when no managed volume
or disk matches, EOPNOTSUPP when the endpoint cannot answer).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  exactArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		printResult(cmd, map[string]string{"version": version.Version}, func() {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		})
	},
}

// setup loads the configuration and builds the logger; flags override the file.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("root") {
		cfg.Root = rootDir
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	log, err = logging.New(cfg.Log.Level, cfg.Log.Format)
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/blkdevctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "prefix for /sys and /dev lookups")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (default when stdout is not a terminal)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usagef("%v", err)
	})

	rootCmd.AddCommand(versionCmd)
}

// exitCode is the positive errno behind err, capped to a valid exit status.
func exitCode(err error) int {
	code := -blkdev.Code(err)
	if code <= 0 || code > 255 {
		return 1
	}
	return code
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var usage *usageError
		if errors.As(err, &usage) {
			os.Exit(2)
		}
		os.Exit(exitCode(err))
	}
}
