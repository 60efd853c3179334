package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/spf13/cobra"

	"factorygrid.ai/internal/sim/catalogs"
	"factorygrid.ai/internal/sim/factory"
)

type simulateResult struct {
	Ticks    uint64        `json:"ticks"`
	Cells    int           `json:"cells"`
	InFlight int           `json:"in_flight"`
	Digest   string        `json:"digest"`
	Stats    factory.Stats `json:"stats"`
}

func newSimulateCommand() *cobra.Command {
	var (
		layoutPath  string
		catalogPath string
		ticks       int
		elapsed     float64
		width       int
		height      int
		asJSON      bool
		verbose     bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a layout headless for a number of ticks",
		Long: `Restore a layout (.json, .yaml or .layout.zst) into a fresh engine and step it
with a fixed elapsed value per tick, then print totals and the state digest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ticks <= 0 {
				return fmt.Errorf("--ticks must be positive")
			}
			cats, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}
			var logger *log.Logger
			if verbose {
				logger = log.New(cmd.ErrOrStderr(), "[engine] ", 0)
			}
			e, err := factory.New(factory.Config{Width: width, Height: height}, cats, logger)
			if err != nil {
				return err
			}
			if layoutPath != "" {
				l, dropped, err := readLayout(layoutPath)
				if err != nil {
					return err
				}
				for _, d := range dropped {
					fmt.Fprintf(cmd.ErrOrStderr(), "drop %q: %s\n", d.Key, d.Reason)
				}
				rep, err := e.Restore(l)
				if err != nil {
					return err
				}
				for _, d := range rep.Dropped {
					fmt.Fprintf(cmd.ErrOrStderr(), "drop %q: %s\n", d.Key, d.Reason)
				}
			}
			if err := e.Start(); err != nil {
				return err
			}
			res, err := simulate(e, ticks, elapsed, verboseWriter(cmd, verbose))
			if err != nil {
				return err
			}
			return printSimulateResult(cmd.OutOrStdout(), res, asJSON)
		},
	}
	cmd.Flags().StringVar(&layoutPath, "layout", "", "layout file to restore (.json, .yaml, .layout.zst)")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "recipes JSON file (default: built-in catalog)")
	cmd.Flags().IntVar(&ticks, "ticks", 10, "number of ticks to run")
	cmd.Flags().Float64Var(&elapsed, "elapsed", 1, "simulation ticks elapsed per step")
	cmd.Flags().IntVar(&width, "width", 0, "grid half-width (default 6)")
	cmd.Flags().IntVar(&height, "height", 0, "grid half-height (default 6)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every tick summary to stderr")
	return cmd
}

func verboseWriter(cmd *cobra.Command, on bool) io.Writer {
	if !on {
		return nil
	}
	return cmd.ErrOrStderr()
}

func simulate(e *factory.Engine, ticks int, elapsed float64, trace io.Writer) (simulateResult, error) {
	var last factory.TickSummary
	for i := 0; i < ticks; i++ {
		sum, ok := e.Tick(elapsed)
		if !ok {
			return simulateResult{}, fmt.Errorf("tick %d not executed (elapsed %g)", i+1, elapsed)
		}
		if trace != nil {
			fmt.Fprintf(trace, "tick=%d cycles=%v exported=%d delivered=%d fell_off=%d in_flight=%d\n",
				sum.Tick, sum.Cycles, sum.Exported, sum.Delivered, sum.FellOff, sum.InFlight)
		}
		last = sum
	}
	return simulateResult{
		Ticks:    last.Tick,
		Cells:    last.Cells,
		InFlight: last.InFlight,
		Digest:   e.StateDigest(),
		Stats:    e.Stats(),
	}, nil
}

func printSimulateResult(w io.Writer, res simulateResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "ticks:      %d\n", res.Ticks)
	fmt.Fprintf(w, "cells:      %d\n", res.Cells)
	fmt.Fprintf(w, "in flight:  %d\n", res.InFlight)
	fmt.Fprintf(w, "exported:   %d\n", res.Stats.Exported)
	fmt.Fprintf(w, "delivered:  %d\n", res.Stats.Delivered)
	fmt.Fprintf(w, "discarded:  %d\n", res.Stats.Discarded)
	fmt.Fprintf(w, "fell off:   %d\n", res.Stats.FellOff)
	kinds := make([]string, 0, len(res.Stats.Cycles))
	for k := range res.Stats.Cycles {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "cycles %-8s %d\n", k+":", res.Stats.Cycles[k])
	}
	fmt.Fprintf(w, "digest:     %s\n", res.Digest)
	return nil
}

func loadCatalog(path string) (*catalogs.Catalog, error) {
	if path == "" {
		return catalogs.Builtin(nil)
	}
	return catalogs.Load(path)
}
