package main

import (
	"fmt"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/app"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/payroll"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/validator"
	payrollService "github.com/cmlabs-hris/hrms-payroll-core/internal/service/payroll"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newPayrollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payroll",
		Short: "Payroll generation and reversal",
	}
	cmd.AddCommand(newPayrollGenerateCmd(), newPayrollReverseCmd())
	return cmd
}

func newPayrollGenerateCmd() *cobra.Command {
	var (
		req     payroll.GenerateBatchRequest
		batchID string
		bonuses map[string]string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate payroll lines for a pay period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Bonuses = make(map[string]decimal.Decimal, len(bonuses))
			for id, raw := range bonuses {
				amount, ok := validator.IsValidDecimal(raw)
				if !ok {
					return validator.ValidationErrors{{Field: "bonus." + id, Message: "must be a decimal amount"}}
				}
				req.Bonuses[id] = amount
			}
			if err := req.Validate(); err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Payroll.GenerateForPeriod(cmd.Context(), req.Period(), req.EmploymentIDs, payrollService.RunOptions{
					BatchID: batchID,
					Bonuses: req.BonusAmounts(),
				})
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), payroll.ToBatchResponse(result)); err != nil {
					return err
				}
				if len(result.Failed) > 0 {
					return fmt.Errorf("%d employment(s) failed", len(result.Failed))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.PayPeriod, "period", "", "pay period in YYYY-MM")
	cmd.Flags().StringSliceVar(&req.EmploymentIDs, "employment", nil, "employment ids (default all active)")
	cmd.Flags().StringVar(&batchID, "batch-id", "", "batch id (generated when empty)")
	cmd.Flags().StringToStringVar(&bonuses, "bonus", nil, "bonus per employment, id=amount")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func newPayrollReverseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reverse <line-id>",
		Short: "Post an offsetting line for a posted payroll line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				line, err := a.Payroll.ReverseLine(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), payroll.ToLineResponse(line))
			})
		},
	}
}
