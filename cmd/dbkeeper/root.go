package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/semmidev/dbkeeper/internal/app"
	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
)

var version = "dev"

// cli carries the streams and global flags shared by every command.
type cli struct {
	in  io.Reader
	out io.Writer
	err io.Writer

	configPath string
	noColor    bool
}

func execute(args []string, in io.Reader, out, errOut io.Writer) int {
	c := &cli{in: in, out: out, err: errOut}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(context.Background())
	if err != nil {
		failure.Fprintf(errOut, "✗ %v\n", err)
	}
	return exitCode(err)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dbkeeper",
		Short: "Back up and restore PostgreSQL, MySQL, MariaDB and SQL Server databases",
		Long: `dbkeeper keeps a catalog of database connections and drives the native
dump and restore tools for each engine. Every backup attempt is recorded in
the catalog's history.

Examples:
  # Register a connection (the password is prompted for when omitted)
  dbkeeper db add prod_pg --engine postgres --host db.internal --database app --user admin

  # Back up and list backups
  dbkeeper backup prod_pg
  dbkeeper list-backups prod_pg

  # Restore without the interactive confirmation
  dbkeeper restore prod_pg backups/prod_pg_20240601_123045.sql --force

  # Run the configured schedules until interrupted
  dbkeeper run`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "configs/config.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable color output")

	root.AddCommand(
		c.dbCmd(),
		c.backupCmd(),
		c.listBackupsCmd(),
		c.restoreCmd(),
		c.runCmd(),
		c.cleanupCmd(),
		c.authCmd(),
	)
	return root
}

// open loads the config and wires the application. Upload targets are only
// connected when replicate is set.
func (c *cli) open(ctx context.Context, replicate bool) (*app.App, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(ctx, cfg, app.Options{Console: c.err, Replicate: replicate})
	if err != nil {
		return nil, fmt.Errorf("initialize app: %w", err)
	}
	return application, nil
}

var errUnreachable = errors.New("connection test failed")

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	switch domain.KindOf(err) {
	case domain.KindInvalidProfile, domain.KindDuplicateName:
		return 2
	case domain.KindConnectionNotFound:
		return 3
	case domain.KindConnectionBusy:
		return 4
	case domain.KindBackupFileNotFound:
		return 5
	case domain.KindDumpFailed, domain.KindRestoreFailed:
		return 6
	case domain.KindRestoreNotConfirmed:
		return 7
	case domain.KindEngineUnsupported:
		return 8
	case domain.KindTimeout:
		return 124
	case domain.KindCancelled:
		return 130
	}

	if errors.Is(err, errUnreachable) {
		return 9
	}
	return 1
}
