package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"factorygrid.ai/internal/persistence/indexdb"
	"factorygrid.ai/internal/persistence/snapshot"
)

const dbTimeout = 10 * time.Second

func openExistingIndex(path string) (*indexdb.SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("--db is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return indexdb.OpenSQLite(path)
}

func newExportCommand() *cobra.Command {
	var (
		dbPath string
		slot   string
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the latest layout of a save slot to a file or stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := layoutFormat(format, out)
			if err != nil {
				return err
			}
			idx, err := openExistingIndex(dbPath)
			if err != nil {
				return err
			}
			defer idx.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), dbTimeout)
			defer cancel()
			info, l, dropped, err := idx.LoadLayout(ctx, slot)
			if err != nil {
				return fmt.Errorf("load slot %s: %w", slot, err)
			}
			for _, d := range dropped {
				fmt.Fprintf(cmd.ErrOrStderr(), "drop %q: %s\n", d.Key, d.Reason)
			}
			file := snapshot.File{
				Header: snapshot.Header{
					Version:       snapshot.Version,
					Tick:          info.Tick,
					CatalogDigest: info.CatalogDigest,
					SavedAt:       info.SavedAt,
				},
				Layout: l,
			}
			if out == "" {
				return writeLayout(cmd.OutOrStdout(), f, file)
			}
			if f == "zst" {
				if err := snapshot.WriteFile(out, file); err != nil {
					return err
				}
			} else {
				w, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := writeLayout(w, f, file); err != nil {
					w.Close()
					return err
				}
				if err := w.Close(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported slot %s (tick %d, %d cells) to %s\n", slot, info.Tick, len(l), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the server's sqlite index")
	cmd.Flags().StringVar(&slot, "slot", "default", "save slot")
	cmd.Flags().StringVar(&format, "format", "", "json, yaml or zst (default: from --out, else json)")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: stdout)")
	return cmd
}

func newImportCommand() *cobra.Command {
	var (
		dbPath string
		slot   string
		file   string
		tick   uint64
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a layout file as the newest save of a slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			l, dropped, err := readLayout(file)
			if err != nil {
				return err
			}
			for _, d := range dropped {
				fmt.Fprintf(cmd.ErrOrStderr(), "drop %q: %s\n", d.Key, d.Reason)
			}
			if dbPath == "" {
				return fmt.Errorf("--db is required")
			}
			idx, err := indexdb.OpenSQLite(dbPath)
			if err != nil {
				return err
			}
			defer idx.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), dbTimeout)
			defer cancel()
			info, err := idx.SaveLayout(ctx, slot, tick, "", l)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d cells into slot %s as %s\n", info.Cells, info.Slot, info.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the server's sqlite index (created if missing)")
	cmd.Flags().StringVar(&slot, "slot", "default", "save slot")
	cmd.Flags().StringVar(&file, "file", "", "layout file (.json, .yaml, .layout.zst)")
	cmd.Flags().Uint64Var(&tick, "tick", 0, "tick recorded with the save")
	return cmd
}

func newSavesCommand() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "saves",
		Short: "List stored layouts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := openExistingIndex(dbPath)
			if err != nil {
				return err
			}
			defer idx.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), dbTimeout)
			defer cancel()
			saves, err := idx.ListSaves(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLOT\tTICK\tCELLS\tSAVED AT\tID")
			for _, s := range saves {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.Slot, s.Tick, s.Cells, s.SavedAt.Format(time.RFC3339), s.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the server's sqlite index")
	return cmd
}
