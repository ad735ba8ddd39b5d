package payroll

import (
	"context"
	"time"
)

// Repository stores payroll lines. Lines are never updated in place apart from
// the posted to reversed status flip.
type Repository interface {
	// ExistsForAllocationPeriod reports a posted line for the allocation and period.
	ExistsForAllocationPeriod(ctx context.Context, allocationID string, period time.Time) (bool, error)
	CreateLines(ctx context.Context, lines []PayrollLine) error
	GetByID(ctx context.Context, id string) (PayrollLine, error)
	ListByBatch(ctx context.Context, batchID string) ([]PayrollLine, error)
	ListByEmploymentPeriod(ctx context.Context, employmentID string, period time.Time) ([]PayrollLine, error)
	// SumYearToDate totals gross by FTE and tax for the employment in the tax
	// year of period, before period. Reversal lines cancel what they reverse.
	SumYearToDate(ctx context.Context, employmentID string, period time.Time) (YearToDate, error)
	MarkReversed(ctx context.Context, id string) error
}
