package main

import (
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/app"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/validator"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/service/probation"
	"github.com/spf13/cobra"
)

func newTransitionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transitions",
		Short: "Probation transitions",
	}
	cmd.AddCommand(newTransitionsRunCmd())
	return cmd
}

func newTransitionsRunCmd() *cobra.Command {
	var (
		req          employment.TransitionRunRequest
		employmentID string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Pass or fail every probation ending on --as-of",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.AsOf == "" {
				req.AsOf = time.Now().UTC().Format(validator.DateLayout)
			}
			if cmd.Flags().Changed("employment-id") {
				req.EmploymentID = &employmentID
			}
			if err := req.Validate(); err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Probation.ProcessDailyTransitions(cmd.Context(), probation.RunOptions{
					AsOf:         req.Date(),
					EmploymentID: req.EmploymentID,
					DryRun:       req.DryRun,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report.Response())
			})
		},
	}
	cmd.Flags().StringVar(&req.AsOf, "as-of", "", "run date in YYYY-MM-DD (default today, UTC)")
	cmd.Flags().StringVar(&employmentID, "employment-id", "", "restrict the run to one employment")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "report outcomes without writing")
	return cmd
}
