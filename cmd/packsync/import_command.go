package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"packsync/internal/config"
	"packsync/internal/state"
)

func newImportLegacyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import-legacy <meta.json>",
		Short: "Seed the state store from the previous downloader's metadata file",
		Long: "Reads a JSON object mapping item ids to their last download time and records each\n" +
			"id as synced, so existing downloads are only fetched again when the catalog reports\n" +
			"a newer upload. Ids that already have a record are left alone.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve metadata path: %w", err)
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open metadata file: %w", err)
			}
			defer file.Close()

			store, err := state.OpenFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer store.Close()

			result, err := state.ImportLegacy(cmd.Context(), file, store)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d item(s) into %s\n", result.Imported, store.Path())
			if len(result.Skipped) > 0 {
				fmt.Fprintf(out, "Skipped %d: %s\n", len(result.Skipped), strings.Join(result.Skipped, ", "))
			}
			return nil
		},
	}
}
