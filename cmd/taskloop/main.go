// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lrbcloud/taskloop/internal/app"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "taskloop",
	Short: "Work delegation and recurring checklist tracker",
	Long:  `taskloop is a multi-tenant work delegation platform with recurring checklists, deadline scoring, and per-tenant working calendars.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := app.LoadConfig(cfgFile)
		if err != nil {
			return err
		}

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}

		if err := a.Seed(ctx); err != nil {
			a.Close()
			return err
		}

		return a.Run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration commands",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := app.MigrateUp(cmd.Context(), cfg); err != nil {
			return err
		}
		fmt.Println("Migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down VERSION",
	Short: "Roll back a single migration version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := app.MigrateDown(cmd.Context(), cfg, args[0]); err != nil {
			return err
		}
		fmt.Printf("Rolled back %s\n", args[0])
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		rows, err := app.MigrationStatus(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No migrations applied")
			return nil
		}
		for _, row := range rows {
			fmt.Printf("%s  applied %s\n", row.Version, row.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskloop %s (commit %s", app.Version, app.Commit)
		if app.BuildTime != "" {
			fmt.Printf(", built %s", app.BuildTime)
		}
		fmt.Println(")")
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Println("Configuration is valid")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration (sensitive values masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		cfg.PrintMasked()
		return nil
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Admin management commands",
}

var adminResetPasswordCmd = &cobra.Command{
	Use:   "reset-password SUBDOMAIN USERNAME [NEW_PASSWORD]",
	Short: "Reset an employee's password",
	Long: `Reset the password for an employee, looked up by tenant subdomain
and username.

If no password is provided, a secure random password is generated
and printed to stderr.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) > 2 {
			password = args[2]
		} else {
			b := make([]byte, 16)
			if _, err := rand.Read(b); err != nil {
				return fmt.Errorf("generate random password: %w", err)
			}
			password = hex.EncodeToString(b)
			fmt.Fprintf(os.Stderr, "Generated password: %s\n", password)
			fmt.Fprintf(os.Stderr, "Save this password, it will not be shown again.\n")
		}
		if len(password) < 8 {
			return fmt.Errorf("password must be at least 8 characters")
		}

		cfg, err := app.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		return app.ResetPassword(cmd.Context(), cfg, args[0], args[1], password)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: /etc/taskloop/config.yaml or ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)

	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)

	adminCmd.AddCommand(adminResetPasswordCmd)
	rootCmd.AddCommand(adminCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
