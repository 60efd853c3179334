package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"factorygrid.ai/internal/sim/catalogs"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect recipe catalogs",
	}
	cmd.AddCommand(newCatalogValidateCommand())
	return cmd
}

func newCatalogValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a recipes JSON file against the schema and recipe rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := catalogs.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ok: %d kinds, digest %s\n", len(cats.Kinds()), cats.Digest)
			for _, kind := range cats.Kinds() {
				r, _ := cats.Recipe(kind)
				fmt.Fprintf(out, "  %-12s %-9s tick=%g", kind, r.Role, r.TickInterval)
				if len(r.Consumption) > 0 {
					fmt.Fprintf(out, " in=%s", formatAmounts(r.Consumption))
				}
				if len(r.Production) > 0 {
					fmt.Fprintf(out, " out=%s", formatAmounts(r.Production))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func formatAmounts(a catalogs.Amounts) string {
	s := ""
	for i, r := range a {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s:%g", r.Resource, r.Amount)
	}
	return s
}
