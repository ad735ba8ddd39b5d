package main

import (
	"fmt"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/app"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/fixtures"
	"github.com/spf13/cobra"
)

func newFixturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Reference data",
	}
	cmd.AddCommand(newFixturesLoadCmd())
	return cmd
}

func newFixturesLoadCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load tax brackets, benefit settings, funding sources and employments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, err := loadFixtures(file)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				counts, err := set.Apply(cmd.Context(), fixtures.Target{
					Settings:       a.Settings,
					FundingSources: a.FundingSources,
					Employments:    a.Employments,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %d tax brackets, %d benefit settings, %d funding sources, %d employments\n",
					counts.Brackets, counts.Benefits, counts.FundingSources, counts.Employments)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML fixture file (default embedded reference data)")
	return cmd
}

func loadFixtures(file string) (fixtures.Set, error) {
	if file == "" {
		return fixtures.Defaults()
	}
	return fixtures.LoadFile(file)
}
