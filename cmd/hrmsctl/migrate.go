package main

import (
	"fmt"

	"github.com/cmlabs-hris/hrms-payroll-core/db"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/app"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if _, err := a.DB.Exec(cmd.Context(), db.Schema); err != nil {
					return fmt.Errorf("apply schema: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}
