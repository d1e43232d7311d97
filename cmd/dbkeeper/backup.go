package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/semmidev/dbkeeper/internal/usecase"
)

// interruptible cancels on SIGINT or SIGTERM so a running tool is killed.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func (c *cli) backupCmd() *cobra.Command {
	var (
		outputDir string
		noUpload  bool
	)

	cmd := &cobra.Command{
		Use:   "backup NAME",
		Short: "Dump a connection's database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible(cmd.Context())
			defer cancel()

			a, err := c.open(ctx, !noUpload)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			progress, stop := progressPrinter(c.out)
			outcome, err := a.Orchestrator.CreateBackup(ctx, usecase.BackupRequest{
				Connection: args[0],
				OutputDir:  outputDir,
				Progress:   progress,
			})
			stop()
			if err != nil {
				return err
			}

			success.Fprintf(c.out, "✓ Backup saved to %s (%s)\n", outcome.FilePath, humanize.Bytes(uint64(outcome.SizeBytes)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "directory for the artifact (backup root when omitted)")
	cmd.Flags().BoolVar(&noUpload, "no-upload", false, "skip the configured upload targets")
	return cmd
}

func (c *cli) listBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-backups NAME",
		Short: "Show the backup history of a connection, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			records, err := a.Orchestrator.ListBackups(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printBackups(c.out, records)
			return nil
		},
	}
}

func (c *cli) restoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore NAME FILE",
		Short: "Load a backup file into a connection's database",
		Long: `Load FILE into the database of connection NAME, overwriting its contents.
Gzip compressed artifacts are decompressed first. Without --force you are
asked to type "yes".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, file := args[0], args[1]

			ctx, cancel := interruptible(cmd.Context())
			defer cancel()

			a, err := c.open(ctx, false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			profile, err := a.Connections.Get(ctx, name)
			if err != nil {
				return err
			}
			if err := usecase.CheckRestoreSource(profile.Name, file); err != nil {
				return err
			}

			confirmed := force
			if !confirmed {
				prompt := fmt.Sprintf("⚠️ This overwrites %s on %s:%d.", profile.Database, profile.Host, profile.Port)
				confirmed, err = confirm(c.in, c.err, prompt)
				if err != nil {
					return err
				}
			}

			progress, stop := progressPrinter(c.out)
			_, err = a.Orchestrator.RestoreBackup(ctx, usecase.RestoreRequest{
				Connection: name,
				File:       file,
				Confirmed:  confirmed,
				Progress:   progress,
			})
			stop()
			if err != nil {
				return err
			}

			success.Fprintf(c.out, "✓ Restored %s into %s\n", file, name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}
