package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"packsync/internal/preflight"
	"packsync/internal/state"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var checks bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List synced items recorded in the state store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if checks {
				if err := cfg.EnsureDirectories(); err != nil {
					return fmt.Errorf("ensure directories: %w", err)
				}
				results := []preflight.Result{
					preflight.CheckCatalog(cmd.Context(), cfg.Catalog.BaseURL, cfg.Catalog.UserAgent, cfg.CatalogTimeout()),
				}
				results = append(results, preflight.RunAll(cmd.Context(), cfg)...)
				renderPreflight(out, results, colorize)
				fmt.Fprintln(out)
			}

			if _, err := os.Stat(cfg.StatePath()); os.IsNotExist(err) {
				fmt.Fprintf(out, "No state database at %s; run `packsync sync` first\n", cfg.StatePath())
				return nil
			}
			store, err := state.OpenFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer store.Close()

			records, err := collectRecords(cmd.Context(), store)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No items synced yet")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				name := rec.DisplayName
				if name == "" {
					name = "-"
				}
				rows = append(rows, []string{rec.ItemID, name, formatTime(rec.LastSyncedAt), rec.Fingerprint})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Last Synced", "Fingerprint"}, rows, nil))
			fmt.Fprintf(out, "%d item(s) synced into %s\n", len(records), cfg.Paths.TargetDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&checks, "check", false, "Also probe the catalog and target directories")
	return cmd
}

func collectRecords(ctx context.Context, store state.Store) ([]state.Record, error) {
	var records []state.Record
	err := store.Iterate(ctx, func(rec state.Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read state store: %w", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ItemID < records[j].ItemID })
	return records, nil
}
