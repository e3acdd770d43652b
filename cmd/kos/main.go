package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kaedeos/kos/internal/config"
	"github.com/kaedeos/kos/internal/klog"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "kos",
	Short:   "KOS - a user-space process supervisor and job scheduler",
	Version: Version,
}

var cfg config.Config

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("kos version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("root", "", "Storage root override (default /tmp/kos)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config overlay")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(invokeCmd)
}

func initConfig() {
	configFile, _ := rootCmd.PersistentFlags().GetString("config")
	loaded, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded

	if v, _ := rootCmd.PersistentFlags().GetString("log-level"); v != "" {
		cfg.LogLevel = klog.Level(v)
	}
	if v, _ := rootCmd.PersistentFlags().GetBool("log-json"); v {
		cfg.LogJSON = true
	}
	if v, _ := rootCmd.PersistentFlags().GetString("root"); v != "" {
		cfg.Root = v
	}
}
