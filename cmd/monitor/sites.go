package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"imovel-monitor/internal/config"
	"imovel-monitor/internal/scraper"
)

var sitesCommand = &cobra.Command{
	Use:   "sites",
	Short: "Print the agency sites that a run would visit",
	Long:  "Prints the effective site list as YAML: the config's sites when present, the built-in agencies otherwise. The output can be pasted into the config and edited.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(map[string]any{"sites": scraper.ConfiguredSites(cfg)})
	},
}

func init() {
	rootCmd.AddCommand(sitesCommand)
}
