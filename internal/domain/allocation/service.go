package allocation

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
)

// Engine is the allocation contract offered to employment workflows.
type Engine interface {
	ValidateAllocationSet(ctx context.Context, emp employment.Employment, requests []Request, effectiveDate time.Time) error
	CreateAllocations(ctx context.Context, emp employment.Employment, requests []Request, effectiveDate time.Time) ([]FundingAllocation, error)
	ReplaceAllocations(ctx context.Context, emp employment.Employment, requests []Request, effectiveDate time.Time) ([]FundingAllocation, error)
	ResolveSalaryForDate(emp employment.Employment, date time.Time) (money.Money, SalaryType)
}
