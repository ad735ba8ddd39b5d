package allocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/lock"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	grantA    = fundingsource.GrantItem("grant-a")
	orgFunded = fundingsource.OrgFunded("org-slot-1")
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func fte(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testEmployment(id string) employment.Employment {
	probationEnd := day("2024-03-31")
	probationSalary := money.FromInt(24000)
	return employment.Employment{
		ID:                  id,
		EmployeeID:          "emp-" + id,
		OrganizationID:      "org-home",
		StartDate:           day("2024-01-01"),
		ProbationEndDate:    &probationEnd,
		ProbationSalary:     &probationSalary,
		PassProbationSalary: money.FromInt(30000),
		IsActive:            true,
		Version:             1,
	}
}

type fixture struct {
	store  *memory.Store
	engine *Engine
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	capacity := 2
	require.NoError(t, store.FundingSources().Upsert(ctx, fundingsource.Details{
		Source: grantA, OrganizationID: "org-funder", Capacity: &capacity, StartDate: day("2023-01-01"),
	}))
	require.NoError(t, store.FundingSources().Upsert(ctx, fundingsource.Details{
		Source: orgFunded, OrganizationID: "org-home", StartDate: day("2023-01-01"),
	}))

	return fixture{
		store:  store,
		engine: NewEngine(store, store.Allocations(), store.FundingSources(), lock.NewLocalLocker(), DefaultOptions()),
	}
}

func split(grant, org string) []allocation.Request {
	return []allocation.Request{
		{Source: grantA, FTE: fte(grant)},
		{Source: orgFunded, FTE: fte(org)},
	}
}

func TestResolveSalaryForDate(t *testing.T) {
	emp := testEmployment("e1")

	amount, st := ResolveSalaryForDate(emp, day("2024-03-30"))
	assert.Equal(t, "24000.00", amount.String())
	assert.Equal(t, allocation.SalaryTypeProbation, st)

	amount, st = ResolveSalaryForDate(emp, day("2024-03-31"))
	assert.Equal(t, "30000.00", amount.String())
	assert.Equal(t, allocation.SalaryTypePassProbation, st)

	t.Run("no probation salary falls back", func(t *testing.T) {
		e := emp
		e.ProbationSalary = nil
		amount, st := ResolveSalaryForDate(e, day("2024-02-01"))
		assert.Equal(t, "30000.00", amount.String())
		assert.Equal(t, allocation.SalaryTypeProbation, st)
	})

	t.Run("no probation period", func(t *testing.T) {
		e := emp
		e.ProbationEndDate = nil
		_, st := ResolveSalaryForDate(e, day("2024-02-01"))
		assert.Equal(t, allocation.SalaryTypePassProbation, st)
	})
}

func TestComputeAllocatedAmount(t *testing.T) {
	base := money.FromInt(30000)
	assert.Equal(t, "18000.00", ComputeAllocatedAmount(base, fte("60"), 2).String())
	assert.Equal(t, "10000.00", ComputeAllocatedAmount(base, fte("33.333333"), 2).String())
	assert.Equal(t, "0.01", ComputeAllocatedAmount(money.MustParse("1.00"), fte("0.5"), 2).String())

	t.Run("monotonic in fte", func(t *testing.T) {
		prev := money.Zero()
		for i := 1; i <= 100; i++ {
			got := ComputeAllocatedAmount(base, decimal.NewFromInt(int64(i)), 2)
			assert.True(t, got.GreaterThan(prev), "fte %d", i)
			prev = got
		}
	})
}

func TestCreateAllocations_AfterProbation(t *testing.T) {
	f := setup(t)
	emp := testEmployment("e1")

	created, err := f.engine.CreateAllocations(context.Background(), emp, split("60", "40"), day("2024-04-15"))
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, "18000.00", created[0].AllocatedAmount.String())
	assert.Equal(t, "12000.00", created[1].AllocatedAmount.String())
	for _, a := range created {
		assert.Equal(t, allocation.SalaryTypePassProbation, a.SalaryType)
		assert.Equal(t, allocation.StatusActive, a.Status)
		assert.Equal(t, day("2024-04-15"), a.StartDate)
	}
}

func TestCreateAllocations_DuringProbation(t *testing.T) {
	f := setup(t)
	emp := testEmployment("e1")

	created, err := f.engine.CreateAllocations(context.Background(), emp, split("60", "40"), day("2024-02-01"))
	require.NoError(t, err)

	assert.Equal(t, "14400.00", created[0].AllocatedAmount.String())
	assert.Equal(t, "9600.00", created[1].AllocatedAmount.String())
	assert.Equal(t, allocation.SalaryTypeProbation, created[0].SalaryType)
	assert.Equal(t, allocation.SalaryTypeProbation, created[1].SalaryType)
}

func TestCreateAllocations_Imbalance(t *testing.T) {
	f := setup(t)
	emp := testEmployment("e1")

	_, err := f.engine.CreateAllocations(context.Background(), emp, split("60", "39.5"), day("2024-02-01"))

	var imbalance *allocation.AllocationImbalanceError
	require.ErrorAs(t, err, &imbalance)
	assert.True(t, imbalance.Sum.Equal(fte("99.5")))
	assert.True(t, imbalance.Required.Equal(fte("100")))
	assert.Len(t, imbalance.Allocations, 2)
	assert.ErrorIs(t, err, allocation.ErrAllocationImbalance)

	rows, err := f.store.Allocations().ListByEmployment(context.Background(), emp.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestValidateAllocationSet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	emp := testEmployment("e1")

	tests := []struct {
		name     string
		requests []allocation.Request
		wantErr  error
	}{
		{"within tolerance", split("60", "39.995"), nil},
		{"just beyond tolerance", split("60", "39.98"), allocation.ErrAllocationImbalance},
		{"over 100", split("60", "40.5"), allocation.ErrAllocationImbalance},
		{"empty", nil, allocation.ErrEmptyAllocationSet},
		{"zero fte", []allocation.Request{{Source: grantA, FTE: fte("100")}, {Source: orgFunded, FTE: fte("0")}}, allocation.ErrInvalidFTE},
		{"fte above 100", []allocation.Request{{Source: grantA, FTE: fte("100.5")}}, allocation.ErrInvalidFTE},
		{"duplicate source", []allocation.Request{{Source: grantA, FTE: fte("50")}, {Source: grantA, FTE: fte("50")}}, allocation.ErrDuplicateSource},
		{"unknown source", []allocation.Request{{Source: fundingsource.OrgFunded("ghost"), FTE: fte("100")}}, fundingsource.ErrFundingSourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.ValidateAllocationSet(ctx, emp, tt.requests, day("2024-04-01"))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateAllocations_CapacityExceeded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// grant-a has two slots
	for _, id := range []string{"e1", "e2"} {
		_, err := f.engine.CreateAllocations(ctx, testEmployment(id), split("50", "50"), day("2024-04-01"))
		require.NoError(t, err)
	}

	_, err := f.engine.CreateAllocations(ctx, testEmployment("e3"), split("50", "50"), day("2024-04-01"))
	var capErr *allocation.CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, grantA, capErr.Source)
	assert.Equal(t, 2, capErr.Capacity)
	assert.Equal(t, 2, capErr.InUse)
	assert.ErrorIs(t, err, allocation.ErrCapacityExceeded)

	// uncapped org-funded slots accept any number of employments
	_, err = f.engine.CreateAllocations(ctx, testEmployment("e3"), []allocation.Request{{Source: orgFunded, FTE: fte("100")}}, day("2024-04-01"))
	assert.NoError(t, err)
}

func TestCreateAllocations_CapacityFreedWhenWindowCloses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.engine.CreateAllocations(ctx, testEmployment("e1"), split("50", "50"), day("2024-04-01"))
	require.NoError(t, err)
	_, err = f.engine.CreateAllocations(ctx, testEmployment("e2"), split("50", "50"), day("2024-04-01"))
	require.NoError(t, err)

	// e1 leaves on 2024-05-31; its rows stay active with a closed window.
	for _, a := range first {
		require.NoError(t, f.store.Allocations().CloseWindow(ctx, a.ID, day("2024-05-31")))
	}

	_, err = f.engine.CreateAllocations(ctx, testEmployment("e3"), split("50", "50"), day("2024-05-15"))
	require.ErrorIs(t, err, allocation.ErrCapacityExceeded)

	_, err = f.engine.CreateAllocations(ctx, testEmployment("e3"), split("50", "50"), day("2024-06-01"))
	assert.NoError(t, err)
}

func TestCreateAllocations_FixedTermWindowEndsWithEmployment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	emp := testEmployment("e1")
	end := day("2024-12-31")
	emp.EndDate = &end

	created, err := f.engine.CreateAllocations(ctx, emp, split("60", "40"), day("2024-04-01"))
	require.NoError(t, err)
	for _, a := range created {
		require.NotNil(t, a.EndDate)
		assert.Equal(t, end, *a.EndDate)
	}

	_, err = f.engine.CreateAllocations(ctx, testEmployment("e2"), split("50", "50"), day("2025-01-01"))
	require.NoError(t, err)
	_, err = f.engine.CreateAllocations(ctx, testEmployment("e3"), split("50", "50"), day("2025-01-01"))
	assert.NoError(t, err, "e1's slot is free once its employment has ended")
}

// slowCounter widens the gap between the capacity count and the insert.
type slowCounter struct {
	allocation.Repository
	delay time.Duration
}

func (s slowCounter) CountActiveBySource(ctx context.Context, source fundingsource.Source, excludeEmploymentID string, asOf time.Time) (int, error) {
	n, err := s.Repository.CountActiveBySource(ctx, source, excludeEmploymentID, asOf)
	time.Sleep(s.delay)
	return n, err
}

func TestCreateAllocations_ConcurrentCapacity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	single := fundingsource.GrantItem("grant-single")
	capacity := 1
	require.NoError(t, store.FundingSources().Upsert(ctx, fundingsource.Details{
		Source: single, OrganizationID: "org-funder", Capacity: &capacity, StartDate: day("2023-01-01"),
	}))

	repo := slowCounter{Repository: store.Allocations(), delay: 50 * time.Millisecond}
	engine := NewEngine(store, repo, store.FundingSources(), lock.NewLocalLocker(), DefaultOptions())

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, id := range []string{"e1", "e2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = engine.CreateAllocations(ctx, testEmployment(id), []allocation.Request{{Source: single, FTE: fte("100")}}, day("2024-04-01"))
		}(i, id)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, allocation.ErrCapacityExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	count, err := store.Allocations().CountActiveBySource(ctx, single, "", day("2024-04-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateAllocations_AllOrNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	emp := testEmployment("e1")

	f.store.SetFault(memory.Fault{Op: memory.OpAllocationCreate, After: 1, Err: errors.New("write failed")})

	_, err := f.engine.CreateAllocations(ctx, emp, split("60", "40"), day("2024-04-01"))
	require.Error(t, err)

	rows, err := f.store.Allocations().ListByEmployment(ctx, emp.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCreateAllocations_RejectsSecondActiveSet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	emp := testEmployment("e1")

	_, err := f.engine.CreateAllocations(ctx, emp, split("60", "40"), day("2024-04-01"))
	require.NoError(t, err)

	_, err = f.engine.CreateAllocations(ctx, emp, split("60", "40"), day("2024-05-01"))
	assert.ErrorIs(t, err, allocation.ErrActiveSetExists)
}

func TestReplaceAllocations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	emp := testEmployment("e1")

	_, err := f.engine.CreateAllocations(ctx, emp, split("60", "40"), day("2024-04-01"))
	require.NoError(t, err)

	created, err := f.engine.ReplaceAllocations(ctx, emp, split("25", "75"), day("2024-06-01"))
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "7500.00", created[0].AllocatedAmount.String())
	assert.Equal(t, "22500.00", created[1].AllocatedAmount.String())

	all, err := f.store.Allocations().ListByEmployment(ctx, emp.ID)
	require.NoError(t, err)
	require.Len(t, all, 4)

	active := decimal.Zero
	for _, a := range all {
		switch a.Status {
		case allocation.StatusHistorical:
			require.NotNil(t, a.EndDate)
			assert.Equal(t, day("2024-05-31"), *a.EndDate)
		case allocation.StatusActive:
			active = active.Add(a.FTE)
		}
	}
	assert.True(t, active.Equal(fte("100")))

	t.Run("effective date not after current start", func(t *testing.T) {
		_, err := f.engine.ReplaceAllocations(ctx, emp, split("50", "50"), day("2024-06-01"))
		assert.ErrorIs(t, err, allocation.ErrEffectiveDate)
	})

	t.Run("rejected replacement keeps the current set", func(t *testing.T) {
		_, err := f.engine.ReplaceAllocations(ctx, emp, split("50", "49"), day("2024-07-01"))
		require.ErrorIs(t, err, allocation.ErrAllocationImbalance)

		active, err := f.store.Allocations().ListActiveByEmployment(ctx, emp.ID)
		require.NoError(t, err)
		assert.True(t, allocation.SumFTE(allocation.RequestsFrom(active)).Equal(fte("100")))
		assert.Nil(t, active[0].EndDate)
	})
}

func TestCreateAllocations_EmploymentEnded(t *testing.T) {
	f := setup(t)
	emp := testEmployment("e1")
	end := day("2024-02-15")
	emp.EndDate = &end

	_, err := f.engine.CreateAllocations(context.Background(), emp, split("60", "40"), day("2024-03-01"))
	assert.ErrorIs(t, err, allocation.ErrEmploymentEnded)
}
