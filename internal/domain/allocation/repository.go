package allocation

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
)

type Repository interface {
	ListByEmployment(ctx context.Context, employmentID string) ([]FundingAllocation, error)
	ListActiveByEmployment(ctx context.Context, employmentID string) ([]FundingAllocation, error)
	// ListValidOn returns allocations of any status whose validity window
	// contains date. Superseded and terminated rows close their window, so at
	// most one set is valid on a given day.
	ListValidOn(ctx context.Context, employmentID string, date time.Time) ([]FundingAllocation, error)
	// CountActiveBySource counts employments other than excludeEmploymentID
	// holding an active allocation against source whose window has not closed
	// before asOf.
	CountActiveBySource(ctx context.Context, source fundingsource.Source, excludeEmploymentID string, asOf time.Time) (int, error)

	Create(ctx context.Context, a FundingAllocation) (FundingAllocation, error)
	// UpdateStatus moves an active allocation to status and closes its window at endDate.
	UpdateStatus(ctx context.Context, id string, status Status, endDate time.Time) error
	// CloseWindow sets the end date of an allocation that stays active.
	CloseWindow(ctx context.Context, id string, endDate time.Time) error
}
