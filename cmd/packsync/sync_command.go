package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"packsync/internal/config"
	"packsync/internal/extract"
	"packsync/internal/services/nautica"
	"packsync/internal/state"
	"packsync/internal/workflow"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var targetFlag string
	var concurrency int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync [target-dir]",
		Short: "Download and extract new or updated catalog items",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			target := strings.TrimSpace(targetFlag)
			if len(args) == 1 {
				if target != "" && target != args[0] {
					return errors.New("target directory given both as argument and --target")
				}
				target = args[0]
			}
			if target != "" {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve target directory: %w", err)
				}
				cfg.Paths.TargetDir = expanded
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Sync.Concurrency = concurrency
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			store, err := state.OpenFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer store.Close()

			lister, err := nautica.NewConfiguredClient(cfg, logger)
			if err != nil {
				return err
			}
			pipeline, err := extract.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			manager, err := workflow.NewManager(cfg, lister, store, pipeline, logger)
			if err != nil {
				return err
			}

			summary, err := manager.RunPass(cmd.Context(), workflow.Options{DryRun: dryRun})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "Dry run: nothing was downloaded (target %s)\n", cfg.Paths.TargetDir)
				renderPlan(out, summary)
				return nil
			}
			renderSummary(out, summary, shouldColorize(out))
			if summary.HasFailures() {
				return fmt.Errorf("%d item(s) failed to sync", len(summary.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetFlag, "target", "t", "", "Directory to extract into (overrides paths.target_dir)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Items processed in parallel (overrides sync.concurrency)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and list changes without downloading")
	return cmd
}
