// Package main is the command-line entry point of the listing monitor.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Real-estate listing monitor for Chapecó agencies",
	Long:  "Collects rental and sale listings from local agency sites, records new ones and keeps a history of runs. The HTTP API lives in cmd/api.",
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/monitor.yaml", "Path to YAML config (defaults apply when missing)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
