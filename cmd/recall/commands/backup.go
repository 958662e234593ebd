package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/backup"
	"github.com/scrypster/recall/internal/config"
)

func newBackupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up and restore the SQLite database",
	}
	cmd.AddCommand(
		newBackupCreateCmd(opts),
		newBackupListCmd(opts),
		newBackupVerifyCmd(opts),
		newBackupRestoreCmd(opts),
	)
	return cmd
}

func (a *app) backupService(keep int) (*backup.Service, error) {
	if a.sqlDB == nil {
		return nil, fmt.Errorf("backups require the %s storage engine", config.EngineSQLite)
	}
	if keep == 0 {
		keep = a.cfg.Backup.Keep
	}
	return backup.NewService(a.sqlDB, backup.Config{Dir: a.cfg.BackupDir(), Keep: keep}, a.logger)
}

func newBackupCreateCmd(opts *rootOptions) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a verified backup and prune old ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				// Flush first so the backup holds every indexed vector.
				if err := a.indices.SaveAll(ctx); err != nil {
					return err
				}
				svc, err := a.backupService(keep)
				if err != nil {
					return err
				}
				result, err := svc.BackupNow(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes, %d pruned)\n", result.Path, result.Size, result.Pruned)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "Backups to retain (0 uses the configured value, negative keeps all)")
	return cmd
}

func newBackupListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(_ context.Context, a *app) error {
				svc, err := a.backupService(0)
				if err != nil {
					return err
				}
				backups, err := svc.List()
				if err != nil {
					return err
				}
				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), backups)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "TIMESTAMP\tSIZE\tPATH\n")
				for _, b := range backups {
					fmt.Fprintf(w, "%s\t%d\t%s\n", b.Timestamp.Format("2006-01-02 15:04:05"), b.Size, b.Path)
				}
				return w.Flush()
			})
		},
	}
}

func newBackupVerifyCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <backup-file>",
		Short: "Check a backup's integrity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := backup.Verify(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}

func newBackupRestoreCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Replace the database with a backup",
		Long: `Replace the SQLite database with a verified backup. No other recall
process may be using the database. Requires --force.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("restore overwrites the current database; pass --force to continue")
			}
			cfg, err := config.Load(opts.configPath, opts.envFile)
			if err != nil {
				return err
			}
			if cfg.Storage.Engine != config.EngineSQLite {
				return fmt.Errorf("backups require the %s storage engine", config.EngineSQLite)
			}
			if err := backup.Restore(cmd.Context(), args[0], cfg.DataFile()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", cfg.DataFile(), args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite the current database")
	return cmd
}
