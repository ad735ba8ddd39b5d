package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/database"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/lock"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Options struct {
	FTETolerance decimal.Decimal
	AmountScale  int32
}

func DefaultOptions() Options {
	return Options{
		FTETolerance: decimal.RequireFromString("0.01"),
		AmountScale:  money.DefaultScale,
	}
}

type Engine struct {
	tx        database.Transactor
	allocRepo allocation.Repository
	resolver  fundingsource.Resolver
	locker    lock.Locker
	opts      Options
}

func NewEngine(
	tx database.Transactor,
	allocRepo allocation.Repository,
	resolver fundingsource.Resolver,
	locker lock.Locker,
	opts Options,
) *Engine {
	return &Engine{
		tx:        tx,
		allocRepo: allocRepo,
		resolver:  resolver,
		locker:    locker,
		opts:      opts,
	}
}

// ResolveSalaryForDate is the single rule for which base salary applies on
// date. Probation salary applies strictly before the probation end date and
// falls back to the pass-probation salary when none was set.
func ResolveSalaryForDate(emp employment.Employment, date time.Time) (money.Money, allocation.SalaryType) {
	if emp.ProbationEndDate == nil || !date.Before(*emp.ProbationEndDate) {
		return emp.PassProbationSalary, allocation.SalaryTypePassProbation
	}
	if emp.ProbationSalary != nil {
		return *emp.ProbationSalary, allocation.SalaryTypeProbation
	}
	return emp.PassProbationSalary, allocation.SalaryTypeProbation
}

// ComputeAllocatedAmount is round-half-up(base * fte / 100) at scale.
func ComputeAllocatedAmount(base money.Money, fte decimal.Decimal, scale int32) money.Money {
	return base.Percent(fte).RoundHalfUp(scale)
}

func (e *Engine) ResolveSalaryForDate(emp employment.Employment, date time.Time) (money.Money, allocation.SalaryType) {
	return ResolveSalaryForDate(emp, date)
}

func (e *Engine) ComputeAllocatedAmount(base money.Money, fte decimal.Decimal) money.Money {
	return ComputeAllocatedAmount(base, fte, e.opts.AmountScale)
}

// ValidateAllocationSet checks a proposed set effective on effectiveDate
// without writing anything.
func (e *Engine) ValidateAllocationSet(ctx context.Context, emp employment.Employment, requests []allocation.Request, effectiveDate time.Time) error {
	if len(requests) == 0 {
		return allocation.ErrEmptyAllocationSet
	}

	seen := make(map[fundingsource.Source]struct{}, len(requests))
	for _, r := range requests {
		if r.Source.IsZero() {
			return fundingsource.ErrMissingSourceID
		}
		if !r.FTE.IsPositive() || r.FTE.GreaterThan(allocation.FullTime) {
			return fmt.Errorf("%w: got %s", allocation.ErrInvalidFTE, r.FTE.String())
		}
		if _, dup := seen[r.Source]; dup {
			return fmt.Errorf("%w: %s", allocation.ErrDuplicateSource, r.Source)
		}
		seen[r.Source] = struct{}{}
	}

	sum := allocation.SumFTE(requests)
	if sum.Sub(allocation.FullTime).Abs().GreaterThan(e.opts.FTETolerance) {
		return &allocation.AllocationImbalanceError{
			Sum:         sum,
			Required:    allocation.FullTime,
			Tolerance:   e.opts.FTETolerance,
			Allocations: requests,
		}
	}

	for _, r := range requests {
		details, err := e.resolver.Resolve(ctx, r.Source)
		if err != nil {
			return fmt.Errorf("failed to resolve funding source %s: %w", r.Source, err)
		}
		if !r.Source.IsGrantItem() || details.Capacity == nil {
			continue
		}

		inUse, err := e.allocRepo.CountActiveBySource(ctx, r.Source, emp.ID, effectiveDate)
		if err != nil {
			return fmt.Errorf("failed to count allocations for %s: %w", r.Source, err)
		}
		if inUse+1 > *details.Capacity {
			return &allocation.CapacityExceededError{
				Source:    r.Source,
				Capacity:  *details.Capacity,
				InUse:     inUse,
				Requested: 1,
			}
		}
	}

	return nil
}

// CreateAllocations opens the first active set of an employment. All rows are
// written or none are.
func (e *Engine) CreateAllocations(ctx context.Context, emp employment.Employment, requests []allocation.Request, effectiveDate time.Time) ([]allocation.FundingAllocation, error) {
	ctx, release, err := lock.Hold(ctx, e.locker, lock.EmploymentKey(emp.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, releaseSources, err := e.holdSources(ctx, requests)
	if err != nil {
		return nil, err
	}
	defer releaseSources()

	var created []allocation.FundingAllocation
	err = e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := e.allocRepo.ListActiveByEmployment(ctx, emp.ID)
		if err != nil {
			return fmt.Errorf("failed to load active allocations: %w", err)
		}
		if len(current) > 0 {
			return allocation.ErrActiveSetExists
		}

		created, err = e.createSet(ctx, emp, requests, effectiveDate)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Allocations created",
		"employment_id", emp.ID,
		"count", len(created),
		"effective_date", effectiveDate.Format("2006-01-02"),
	)
	return created, nil
}

// ReplaceAllocations supersedes the active set with a new one effective on
// effectiveDate. The old rows become historical, ending the day before.
func (e *Engine) ReplaceAllocations(ctx context.Context, emp employment.Employment, requests []allocation.Request, effectiveDate time.Time) ([]allocation.FundingAllocation, error) {
	ctx, release, err := lock.Hold(ctx, e.locker, lock.EmploymentKey(emp.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, releaseSources, err := e.holdSources(ctx, requests)
	if err != nil {
		return nil, err
	}
	defer releaseSources()

	var created []allocation.FundingAllocation
	err = e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := e.SupersedeActive(ctx, emp.ID, allocation.StatusHistorical, effectiveDate.AddDate(0, 0, -1)); err != nil {
			return err
		}

		created, err = e.createSet(ctx, emp, requests, effectiveDate)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Allocations replaced",
		"employment_id", emp.ID,
		"count", len(created),
		"effective_date", effectiveDate.Format("2006-01-02"),
	)
	return created, nil
}

// SupersedeActive moves every active allocation to status with end date
// endDate and returns the superseded rows. Callers hold the employment lock
// and a transaction.
func (e *Engine) SupersedeActive(ctx context.Context, employmentID string, status allocation.Status, endDate time.Time) ([]allocation.FundingAllocation, error) {
	current, err := e.allocRepo.ListActiveByEmployment(ctx, employmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active allocations: %w", err)
	}

	for _, a := range current {
		if endDate.Before(a.StartDate) {
			return nil, fmt.Errorf("%w: allocation %s starts %s", allocation.ErrEffectiveDate, a.ID, a.StartDate.Format("2006-01-02"))
		}
		if err := e.allocRepo.UpdateStatus(ctx, a.ID, status, endDate); err != nil {
			return nil, fmt.Errorf("failed to mark allocation %s %s: %w", a.ID, status, err)
		}
	}
	return current, nil
}

func (e *Engine) createSet(ctx context.Context, emp employment.Employment, requests []allocation.Request, effectiveDate time.Time) ([]allocation.FundingAllocation, error) {
	if emp.EndDate != nil && emp.EndDate.Before(effectiveDate) {
		return nil, allocation.ErrEmploymentEnded
	}
	if locker, ok := e.resolver.(SourceLocker); ok {
		for _, src := range grantSources(requests) {
			if err := locker.LockSource(ctx, src); err != nil {
				return nil, fmt.Errorf("failed to lock funding source %s: %w", src, err)
			}
		}
	}
	if err := e.ValidateAllocationSet(ctx, emp, requests, effectiveDate); err != nil {
		return nil, err
	}

	base, salaryType := ResolveSalaryForDate(emp, effectiveDate)

	// Windows of a fixed-term employment close with it.
	var windowEnd *time.Time
	if emp.EndDate != nil {
		end := *emp.EndDate
		windowEnd = &end
	}

	created := make([]allocation.FundingAllocation, 0, len(requests))
	for _, r := range requests {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate allocation id: %w", err)
		}

		a, err := e.allocRepo.Create(ctx, allocation.FundingAllocation{
			ID:              id.String(),
			EmploymentID:    emp.ID,
			Source:          r.Source,
			FTE:             r.FTE,
			AllocatedAmount: e.ComputeAllocatedAmount(base, r.FTE),
			SalaryType:      salaryType,
			Status:          allocation.StatusActive,
			StartDate:       effectiveDate,
			EndDate:         windowEnd,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create allocation for %s: %w", r.Source, err)
		}
		created = append(created, a)
	}
	return created, nil
}

// SourceLocker is implemented by resolvers that can pin a funding source for
// the rest of the current transaction, so capacity counts stay valid until
// commit.
type SourceLocker interface {
	LockSource(ctx context.Context, source fundingsource.Source) error
}

// holdSources takes the process or cluster lock of every grant item in
// requests, in a fixed order. Callers already hold the employment lock.
func (e *Engine) holdSources(ctx context.Context, requests []allocation.Request) (context.Context, func(), error) {
	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, src := range grantSources(requests) {
		var (
			release func()
			err     error
		)
		ctx, release, err = lock.Hold(ctx, e.locker, lock.FundingSourceKey(src.String()))
		if err != nil {
			releaseAll()
			return ctx, nil, err
		}
		releases = append(releases, release)
	}
	return ctx, releaseAll, nil
}

func grantSources(requests []allocation.Request) []fundingsource.Source {
	var out []fundingsource.Source
	for _, r := range requests {
		if r.Source.IsGrantItem() {
			out = append(out, r.Source)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
