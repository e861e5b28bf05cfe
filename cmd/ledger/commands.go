package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"olympspa/internal/config"
	"olympspa/internal/database"
	"olympspa/internal/domain"
	"olympspa/internal/export"
	"olympspa/internal/interval"
	"olympspa/internal/models"
	"olympspa/internal/service"
	"olympspa/internal/storage/postgres/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	c := &cobra.Command{
		Use:   "list",
		Short: "List confirmed reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			reservations, err := store.ListAll(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), reservations)
			}
			return printReservations(cmd.OutOrStdout(), reservations)
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return c
}

func newConflictsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	c := &cobra.Command{
		Use:   "conflicts",
		Short: "List paid sessions that lost their range and need a refund",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			conflicts, err := store.ListConflicts(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), conflicts)
			}
			return printConflicts(cmd.OutOrStdout(), conflicts)
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return c
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var from, to string

	c := &cobra.Command{
		Use:   "check",
		Short: "Tell whether a range is free",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := interval.Parse(from, to)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			_, store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			nop := zerolog.Nop()
			err = service.NewAvailabilityService(store, &nop).CheckAvailability(ctx, rng)
			switch {
			case err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "%s available\n", rng)
				return nil
			case errors.Is(err, domain.ErrConflict):
				fmt.Fprintf(cmd.OutOrStdout(), "%s unavailable\n", rng)
				return err
			default:
				return err
			}
		},
	}
	c.Flags().StringVar(&from, "from", "", "check-in (YYYY-MM-DD or RFC 3339)")
	c.Flags().StringVar(&to, "to", "", "check-out (YYYY-MM-DD or RFC 3339)")
	_ = c.MarkFlagRequired("from")
	_ = c.MarkFlagRequired("to")
	return c
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var dir string

	c := &cobra.Command{
		Use:   "export",
		Short: "Write reservations and conflicts to an XLSX workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			reservations, err := store.ListAll(ctx)
			if err != nil {
				return err
			}
			conflicts, err := store.ListConflicts(ctx)
			if err != nil {
				return err
			}

			if dir == "" {
				dir = cfg.Exports.Path
			}
			path, err := export.SaveToDir(dir, time.Now(), reservations, conflicts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	c.Flags().StringVar(&dir, "dir", "", "output directory (defaults to exports.path)")
	return c
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			if cfg.Database.Driver != config.DriverPostgres {
				// SQLite creates its schema on open.
				db, err := database.NewDB(cfg.Database.Path, logger)
				if err != nil {
					return err
				}
				defer db.Close()
				fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema ready at %s\n", db.Path())
				return nil
			}

			pool, err := pgxpool.New(ctx, cfg.Database.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			applied, err := migrations.Apply(ctx, pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}

func newBackupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the SQLite store and prune old snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver == config.DriverPostgres {
				return errors.New("backup only supports the sqlite driver; use pg_dump for postgres")
			}

			backupCfg := cfg.Backup
			backupCfg.Enabled = true
			svc := database.NewBackupService(cfg.Database.Path, backupCfg, logger)
			path, err := svc.PerformBackup(cmd.Context())
			if err != nil {
				return err
			}
			svc.CleanupOldBackups()
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func printReservations(w io.Writer, reservations []*models.Reservation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCHECK-IN\tCHECK-OUT\tGUESTS\tSESSION")
	for _, r := range reservations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, interval.Format(r.From), interval.Format(r.To), r.Guests, r.SessionID)
	}
	return tw.Flush()
}

func newSyncFailuresCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	c := &cobra.Command{
		Use:   "sync-failures",
		Short: "List spreadsheet sync tasks that exhausted their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			tasks, err := store.GetFailedSyncTasks(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), tasks)
			}
			return printSyncTasks(cmd.OutOrStdout(), tasks)
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return c
}

func printSyncTasks(w io.Writer, tasks []models.SyncTask) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tRESERVATION\tRETRIES\tCREATED\tLAST ERROR")
	for _, t := range tasks {
		lastErr := ""
		if t.LastError != nil {
			lastErr = *t.LastError
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			t.ID, t.TaskType, t.ReservationID, t.RetryCount, t.CreatedAt.UTC().Format(time.RFC3339), lastErr)
	}
	return tw.Flush()
}

func printConflicts(w io.Writer, conflicts []*models.Conflict) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSESSION\tEVENT\tCHECK-IN\tCHECK-OUT\tGUESTS\tDETECTED")
	for _, c := range conflicts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			c.ID, c.SessionID, c.EventID, interval.Format(c.From), interval.Format(c.To), c.Guests,
			c.DetectedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
