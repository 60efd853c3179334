package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "factoryctl",
		Short: "Offline tools for factory grid catalogs and layouts",
		Long: `factoryctl validates recipe catalogs, runs layouts headless and moves
layouts between files and the server's save slots.

Examples:
  factoryctl catalog validate configs/recipes.json
  factoryctl simulate --layout base.json --ticks 100
  factoryctl export --db data/index/factory.sqlite --slot default --format yaml
  factoryctl import --db data/index/factory.sqlite --slot default --file base.yaml
  factoryctl saves --db data/index/factory.sqlite`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.AddCommand(newCatalogCommand())
	root.AddCommand(newSimulateCommand())
	root.AddCommand(newExportCommand())
	root.AddCommand(newImportCommand())
	root.AddCommand(newSavesCommand())
	return root
}
