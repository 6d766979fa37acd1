package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bidon15/rollupctl/internal/journal"
)

func (a *app) runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run journal",
		Long: `Show past runs and the components they recorded. Results are limited to
--chain-id when it is set.

Examples:
  rollupctl runs list
  rollupctl runs instances --chain-id 11155111`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJournal(cmd.Context(), func(repo journal.Repository, chainID int64) error {
				runs, err := repo.ListRuns(cmd.Context(), chainID)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(a.out, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(a.out, "No runs recorded.")
					return nil
				}

				t := newTable(a.out)
				printTableHeader(t, a.out, "ID", "MODE", "CHAIN", "STATUS", "PHASE", "STARTED", "ERROR")
				for _, r := range runs {
					fmt.Fprintf(t, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
						r.ID, r.Mode, r.ChainID, a.status(r.Status), deref(r.Phase),
						r.CreatedAt.Format(time.RFC3339), truncate(deref(r.Error), 60))
				}
				return t.Flush()
			})
		},
	}

	instancesCmd := &cobra.Command{
		Use:   "instances",
		Short: "List recorded component instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withJournal(cmd.Context(), func(repo journal.Repository, chainID int64) error {
				instances, err := repo.ListInstances(cmd.Context(), chainID)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return printJSON(a.out, instances)
				}
				if len(instances) == 0 {
					fmt.Fprintln(a.out, "No instances recorded.")
					return nil
				}

				t := newTable(a.out)
				printTableHeader(t, a.out, "NAME", "CHAIN", "ADDRESS", "IMPLEMENTATION", "INITIALIZED", "UPDATED")
				for _, inst := range instances {
					fmt.Fprintf(t, "%s\t%d\t%s\t%s\t%t\t%s\n",
						inst.Name, inst.ChainID, inst.Address, deref(inst.Implementation),
						inst.Initialized, inst.UpdatedAt.Format(time.RFC3339))
				}
				return t.Flush()
			})
		},
	}

	cmd.AddCommand(listCmd, instancesCmd)
	return cmd
}

func (a *app) withJournal(ctx context.Context, fn func(repo journal.Repository, chainID int64) error) error {
	cfg, err := a.config(false)
	if err != nil {
		return err
	}
	repo, err := journal.Open(ctx, cfg.State)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(repo, int64(cfg.ChainID))
}

func (a *app) status(s journal.Status) string {
	switch s {
	case journal.StatusCompleted:
		return colorGreen(a.out, string(s))
	case journal.StatusFailed:
		return colorRed(a.out, string(s))
	default:
		return colorYellow(a.out, string(s))
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
