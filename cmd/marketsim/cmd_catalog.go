package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atmx/market-sim/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the effective catalog as YAML",
		Long: `Print the stock universe, event catalogs, tax regimes, neuron
vocabularies and investor roster the engine will run on, after loading
--catalog (or CATALOG_PATH) and validating it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			cat, err := catalog.Load(cfg.CatalogPath)
			if err != nil {
				return err
			}
			data, err := cat.Marshal()
			if err != nil {
				return fmt.Errorf("render catalog: %w", err)
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}
