package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinTransaction_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.Allocations().Create(ctx, allocation.FundingAllocation{
		ID: "a-1", EmploymentID: "e-1", Source: fundingsource.OrgFunded("o-1"),
		FTE: decimal.NewFromInt(100), Status: allocation.StatusActive, StartDate: start,
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := store.Allocations().UpdateStatus(ctx, "a-1", allocation.StatusHistorical, start); err != nil {
			return err
		}
		if _, err := store.Allocations().Create(ctx, allocation.FundingAllocation{
			ID: "a-2", EmploymentID: "e-1", Status: allocation.StatusActive, StartDate: start,
		}); err != nil {
			return err
		}
		if _, err := store.ProbationEvents().Append(ctx, employment.NewEvent("e-1", employment.EventPassed, start, nil, nil)); err != nil {
			return err
		}
		// nested calls join the outer transaction
		return store.WithinTransaction(ctx, func(ctx context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	all, err := store.Allocations().ListByEmployment(ctx, "e-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, allocation.StatusActive, all[0].Status)
	assert.Nil(t, all[0].EndDate)

	events, err := store.ProbationEvents().ListByEmployment(ctx, "e-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFaultInjection(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.SetFault(Fault{Op: OpAllocationCreate, EmploymentID: "e-2", After: 1, Err: errors.New("disk full")})

	_, err := store.Allocations().Create(ctx, allocation.FundingAllocation{ID: "x", EmploymentID: "e-1"})
	assert.NoError(t, err)
	_, err = store.Allocations().Create(ctx, allocation.FundingAllocation{ID: "y", EmploymentID: "e-2"})
	assert.NoError(t, err)
	_, err = store.Allocations().Create(ctx, allocation.FundingAllocation{ID: "z", EmploymentID: "e-2"})
	assert.EqualError(t, err, "disk full")

	store.ClearFaults()
	_, err = store.Allocations().Create(ctx, allocation.FundingAllocation{ID: "z", EmploymentID: "e-2"})
	assert.NoError(t, err)
}

func TestEmploymentVersionCheck(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	e, err := store.Employments().Create(ctx, employment.Employment{ID: "e-1"})
	require.NoError(t, err)

	end := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	updated, err := store.Employments().SetEndDate(ctx, e.ID, end, e.Version)
	require.NoError(t, err)
	assert.Equal(t, e.Version+1, updated.Version)

	_, err = store.Employments().SetEndDate(ctx, e.ID, end, e.Version)
	assert.ErrorIs(t, err, employment.ErrVersionConflict)
}

func TestAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ev := employment.NewEvent("e-1", employment.EventPassed, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), nil, nil)

	inserted, err := store.ProbationEvents().Append(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.ProbationEvents().Append(ctx, ev)
	require.NoError(t, err)
	assert.False(t, inserted)
}
