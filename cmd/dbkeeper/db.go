package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/semmidev/dbkeeper/internal/domain"
	"github.com/semmidev/dbkeeper/internal/usecase"
)

func (c *cli) dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage registered database connections",
	}
	cmd.AddCommand(c.dbAddCmd(), c.dbListCmd(), c.dbTestCmd(), c.dbDeleteCmd(), c.dbInfoCmd())
	return cmd
}

func (c *cli) dbAddCmd() *cobra.Command {
	var in usecase.NewConnection

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a connection",
		Long: `Register a connection under NAME. The port defaults to the engine's
standard port. When --password is omitted it is prompted for.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			if !cmd.Flags().Changed("password") {
				pw, err := readPassword(c.in, c.err, "Password: ")
				if err != nil {
					return err
				}
				in.Password = pw
			}

			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			profile, err := a.Connections.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			success.Fprintf(c.out, "✓ Added %s (%s %s:%d/%s)\n",
				profile.Name, profile.Engine, profile.Host, profile.Port, profile.Database)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Engine, "engine", "", "postgres, mysql, mariadb or sqlserver")
	f.StringVar(&in.Host, "host", "localhost", "server host")
	f.IntVar(&in.Port, "port", 0, "server port (engine default when omitted)")
	f.StringVar(&in.Database, "database", "", "database name")
	f.StringVar(&in.Username, "user", "", "user name")
	f.StringVar(&in.Password, "password", "", "password")
	_ = cmd.MarkFlagRequired("engine")
	_ = cmd.MarkFlagRequired("database")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (c *cli) dbListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			profiles, err := a.Connections.List(cmd.Context())
			if err != nil {
				return err
			}
			printConnections(c.out, profiles)
			return nil
		},
	}
}

func (c *cli) dbTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test NAME",
		Short: "Check that a connection's server accepts the stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			ok, err := a.Orchestrator.TestConnection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", args[0], errUnreachable)
			}
			success.Fprintf(c.out, "✓ %s is reachable\n", args[0])
			return nil
		},
	}
}

func (c *cli) dbDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove a connection, keeping its backup history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			removed, err := a.Connections.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return domain.NewError(domain.KindConnectionNotFound, args[0], "no connection with this name is registered", nil)
			}
			success.Fprintf(c.out, "✓ Deleted %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) dbInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show where the catalog and logs live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			cfg := a.Config
			exists := "no"
			if _, err := os.Stat(cfg.Registry.Path); err == nil {
				exists = "yes"
			}
			logDest := cfg.App.LogFile
			if logDest == "" {
				logDest = "stderr"
			}

			bold.Fprintln(c.out, "dbkeeper "+version)
			fmt.Fprintf(c.out, "Catalog:      %s (exists: %s)\n", cfg.Registry.Path, exists)
			fmt.Fprintf(c.out, "Key file:     %s\n", cfg.Registry.KeyFile)
			fmt.Fprintf(c.out, "Backup root:  %s\n", cfg.Backup.Root)
			fmt.Fprintf(c.out, "Log output:   %s\n", logDest)
			fmt.Fprintf(c.out, "Retention:    %d day(s)\n", cfg.Backup.RetentionDays)
			return nil
		},
	}
}
