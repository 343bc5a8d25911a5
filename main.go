package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/config"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/logging"
)

var (
	configPath string
	debugMode  bool
	logPath    string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "riftsnap",
		Short:         "Identify trading cards from a live camera feed",
		Long:          "riftsnap indexes reference card images into a catalog, then identifies physical cards pointed at the camera in real time.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "riftsnap.toml", "path to the TOML config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&logPath, "logfile", "", "override the log file path")

	cmd.AddCommand(newIndexCommand())
	cmd.AddCommand(newScanCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newCollectionCommand())
	return cmd
}

// loadConfig resolves the effective configuration and sets up logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if debugMode {
		cfg.Debug = true
	}
	if logPath != "" {
		cfg.LogFile = logPath
	}

	if cfg.Debug {
		if err := logging.SetupLogger(cfg.LogFile); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", cfg.LogFile)
		}
	}
	return cfg, nil
}
