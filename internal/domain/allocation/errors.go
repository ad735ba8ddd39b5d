package allocation

import (
	"errors"
	"fmt"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/shopspring/decimal"
)

var (
	ErrAllocationNotFound  = errors.New("funding allocation not found")
	ErrAllocationImbalance = errors.New("allocation fte does not sum to 100%")
	ErrCapacityExceeded    = errors.New("funding source capacity exceeded")
	ErrEmptyAllocationSet  = errors.New("allocation set must not be empty")
	ErrInvalidFTE          = errors.New("fte must be greater than 0 and at most 100")
	ErrDuplicateSource     = errors.New("funding source appears more than once in the set")
	ErrNoActiveAllocations = errors.New("employment has no active allocations")
	ErrActiveSetExists     = errors.New("employment already has active allocations, replace them instead")
	ErrEffectiveDate       = errors.New("effective date must be after the start of the current allocations")
	ErrEmploymentEnded     = errors.New("employment has ended before the effective date")
)

// AllocationImbalanceError carries the detail needed to explain an FTE sum
// outside tolerance.
type AllocationImbalanceError struct {
	Sum         decimal.Decimal
	Required    decimal.Decimal
	Tolerance   decimal.Decimal
	Allocations []Request
}

func (e *AllocationImbalanceError) Error() string {
	return fmt.Sprintf("total FTE must equal %s%%, got %s%%", e.Required.String(), e.Sum.String())
}

func (e *AllocationImbalanceError) Is(target error) bool {
	return target == ErrAllocationImbalance
}

// CapacityExceededError reports an oversubscribed grant item.
type CapacityExceededError struct {
	Source    fundingsource.Source
	Capacity  int
	InUse     int
	Requested int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("funding source %s has %d of %d slots in use, cannot add %d",
		e.Source, e.InUse, e.Capacity, e.Requested)
}

func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
