package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/semmidev/dbkeeper/internal/app"
)

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run scheduled backups and retention cleanup until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible(cmd.Context())
			defer cancel()

			a, err := c.open(ctx, true)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			return a.Run(ctx)
		},
	}
}

func (c *cli) cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete artifacts older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible(cmd.Context())
			defer cancel()

			a, err := c.open(ctx, true)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			report, err := a.Cleanup.Run(ctx)

			locations := make([]string, 0, len(report))
			for location := range report {
				locations = append(locations, location)
			}
			sort.Strings(locations)
			for _, location := range locations {
				for _, name := range report[location] {
					fmt.Fprintf(c.out, "  %s: deleted %s\n", location, name)
				}
			}
			if err != nil {
				return err
			}

			success.Fprintf(c.out, "✓ Cleanup removed %d file(s)\n", report.Total())
			return nil
		},
	}
}

func (c *cli) authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize upload targets",
	}
	cmd.AddCommand(c.authGDriveCmd())
	return cmd
}

func (c *cli) authGDriveCmd() *cobra.Command {
	var (
		clientSecret string
		output       string
		addr         string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "gdrive",
		Short: "Create Google Drive credentials through the browser consent flow",
		Long: `Starts a local server, prints the URL to open, and writes an authorized_user
credentials file once consent is given. Point an upload target's
credentials_file at the result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible(cmd.Context())
			defer cancel()
			ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
			defer cancelTimeout()

			a, err := c.open(ctx, false)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			if output == "" {
				output = filepath.Join(filepath.Dir(a.Config.Registry.Path), "gdrive_credentials.json")
			}

			auth, err := app.NewDriveAuthorizer(a.Logger, clientSecret, output)
			if err != nil {
				return err
			}
			url, err := auth.Start(addr)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = auth.Shutdown(shutdownCtx)
			}()

			bold.Fprintf(c.out, "Open %s in a browser to authorize Google Drive access.\n", url)
			if err := auth.Wait(ctx); err != nil {
				return err
			}
			success.Fprintf(c.out, "✓ Credentials written to %s\n", output)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&clientSecret, "client-secret", "client_secret.json", "OAuth client secret downloaded from Google Cloud")
	f.StringVar(&output, "output", "", "credentials file to write (next to the catalog when omitted)")
	f.StringVar(&addr, "addr", "127.0.0.1:8085", "address of the local callback server")
	f.DurationVar(&timeout, "timeout", 10*time.Minute, "how long to wait for consent")
	return cmd
}
