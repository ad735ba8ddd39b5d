package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/app"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "hrmsctl",
		Short:        "Operate the funding allocation, probation and payroll core",
		SilenceUsage: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newTransitionsCmd(),
		newPayrollCmd(),
		newFixturesCmd(),
	)
	return root
}

// withApp loads configuration, wires the application and hands it to fn.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app.NewLogger(cfg)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
