package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/payroll"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/events"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/messaging/kafka"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/database"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/lock"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	allocsvc "github.com/cmlabs-hris/hrms-payroll-core/internal/service/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/service/calculator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const periodLayout = "2006-01"

var twelve = decimal.NewFromInt(12)

// SnapshotProvider returns the settings in effect on a date.
type SnapshotProvider interface {
	SnapshotFor(ctx context.Context, asOf time.Time) (*settings.Snapshot, error)
}

type Options struct {
	Convention             calculator.Convention
	ThirteenthMonthAccrual bool
	Workers                int
	AmountScale            int32
}

func DefaultOptions() Options {
	return Options{
		Convention:  calculator.MonthlyTimes12,
		Workers:     4,
		AmountScale: money.DefaultScale,
	}
}

type Generator struct {
	tx          database.Transactor
	employments employment.Repository
	allocations allocation.Repository
	sources     fundingsource.Resolver
	lines       payroll.Repository
	snapshots   SnapshotProvider
	outbox      kafka.OutboxRepository
	locker      lock.Locker
	registry    *BatchRegistry
	tax         *calculator.TaxCalculator
	statutory   *calculator.StatutoryCalculator
	opts        Options
	now         func() time.Time
}

func NewGenerator(
	tx database.Transactor,
	employments employment.Repository,
	allocations allocation.Repository,
	sources fundingsource.Resolver,
	lines payroll.Repository,
	snapshots SnapshotProvider,
	outbox kafka.OutboxRepository,
	locker lock.Locker,
	registry *BatchRegistry,
	opts Options,
) *Generator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Convention == "" {
		opts.Convention = calculator.MonthlyTimes12
	}
	return &Generator{
		tx:          tx,
		employments: employments,
		allocations: allocations,
		sources:     sources,
		lines:       lines,
		snapshots:   snapshots,
		outbox:      outbox,
		locker:      locker,
		registry:    registry,
		tax:         calculator.NewTaxCalculator(opts.AmountScale),
		statutory:   calculator.NewStatutoryCalculator(opts.AmountScale),
		opts:        opts,
		now:         time.Now,
	}
}

// Registry exposes the batches started by this generator.
func (g *Generator) Registry() *BatchRegistry {
	return g.registry
}

// RunOptions - optional inputs of one batch
type RunOptions struct {
	BatchID string                 // generated when empty
	Bonuses map[string]money.Money // employment id -> bonus for the period
}

// GenerateForPeriod computes and stores one payroll line per active
// allocation of each employment. It only returns an error when the batch
// cannot start; per-employment failures are listed in the result.
func (g *Generator) GenerateForPeriod(ctx context.Context, period time.Time, employmentIDs []string, opts RunOptions) (payroll.BatchResult, error) {
	batch, ids, err := g.start(ctx, period, employmentIDs, opts)
	if err != nil {
		return payroll.BatchResult{}, err
	}
	return g.run(ctx, batch, ids, opts), nil
}

// StartBatch registers a batch and runs it in the background. Progress and
// cancellation go through the registry.
func (g *Generator) StartBatch(ctx context.Context, period time.Time, employmentIDs []string, opts RunOptions) (*Batch, error) {
	batch, ids, err := g.start(ctx, period, employmentIDs, opts)
	if err != nil {
		return nil, err
	}
	go g.run(context.WithoutCancel(ctx), batch, ids, opts)
	return batch, nil
}

func (g *Generator) start(ctx context.Context, period time.Time, employmentIDs []string, opts RunOptions) (*Batch, []string, error) {
	if period.IsZero() {
		return nil, nil, payroll.ErrInvalidPeriod
	}
	period = payroll.PeriodStart(period)

	ids := dedupe(employmentIDs)
	if len(ids) == 0 {
		active, err := g.employments.ListActiveInPeriod(ctx, period, payroll.PeriodEnd(period))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list active employments: %w", err)
		}
		for _, emp := range active {
			ids = append(ids, emp.ID)
		}
	}

	batchID := opts.BatchID
	if batchID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate batch id: %w", err)
		}
		batchID = id.String()
	}

	batch, err := g.registry.Start(batchID, period, len(ids), g.now())
	if err != nil {
		return nil, nil, err
	}
	return batch, ids, nil
}

func (g *Generator) run(ctx context.Context, batch *Batch, ids []string, opts RunOptions) payroll.BatchResult {
	period := batch.result.PayPeriod
	slog.Info("Payroll batch started",
		"batch_id", batch.ID(),
		"pay_period", period.Format(periodLayout),
		"employments", len(ids),
	)

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)
	for _, id := range ids {
		id := id
		eg.Go(func() error {
			if batch.Cancelled() || egctx.Err() != nil {
				batch.record(employmentOutcome{skips: []payroll.LineSkip{{EmploymentID: id, Reason: payroll.SkipBatchCancelled}}})
				return nil
			}
			batch.record(g.processEmployment(egctx, batch.ID(), period, id, opts.Bonuses[id]))
			return nil
		})
	}
	_ = eg.Wait()

	result := batch.finish(g.now())

	level := slog.LevelInfo
	if len(result.Failed) > 0 || result.Cancelled {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "Payroll batch finished",
		"batch_id", result.BatchID,
		"pay_period", period.Format(periodLayout),
		"status", result.Status,
		"lines", len(result.Succeeded),
		"failed", len(result.Failed),
		"skipped", len(result.Skipped),
	)
	return result
}

type employmentOutcome struct {
	lines    []payroll.PayrollLine
	failures []payroll.LineFailure
	skips    []payroll.LineSkip
}

// candidate is one allocation paid this period. Posted candidates already
// have a line; they still count toward the employment's aggregate.
type candidate struct {
	alloc  allocation.FundingAllocation
	source fundingsource.Details
	gross  money.Money
	posted bool
}

func (g *Generator) processEmployment(ctx context.Context, batchID string, period time.Time, employmentID string, bonus money.Money) (out employmentOutcome) {
	fail := func(allocationID, reason string, err error) {
		slog.Error("Payroll line failed",
			"batch_id", batchID,
			"employment_id", employmentID,
			"allocation_id", allocationID,
			"pay_period", period.Format(periodLayout),
			"error", err,
		)
		out.failures = append(out.failures, payroll.LineFailure{
			EmploymentID: employmentID,
			AllocationID: allocationID,
			Reason:       reason,
			Err:          err,
		})
	}

	ctx, release, err := lock.Hold(ctx, g.locker, lock.EmploymentKey(employmentID))
	if err != nil {
		fail("", "lock_unavailable", err)
		return out
	}
	defer release()

	emp, err := g.employments.GetByID(ctx, employmentID)
	if err != nil {
		fail("", "employment_lookup", err)
		return out
	}

	payDate := payroll.PayDate(period)
	lastDay := payroll.LastPayableDay(period, emp.EndDate)
	if lastDay.Before(period) {
		out.skips = append(out.skips, payroll.LineSkip{EmploymentID: emp.ID, Reason: payroll.SkipEmploymentEnded})
		return out
	}
	allocs, err := g.allocations.ListValidOn(ctx, emp.ID, lastDay)
	if err != nil {
		fail("", "allocation_lookup", err)
		return out
	}
	if len(allocs) == 0 {
		slog.Warn("No active allocations for pay period", "employment_id", emp.ID, "pay_period", period.Format(periodLayout))
		out.skips = append(out.skips, payroll.LineSkip{EmploymentID: emp.ID, Reason: payroll.SkipNoAllocations})
		return out
	}
	sort.Slice(allocs, func(i, j int) bool {
		if c := allocs[i].FTE.Cmp(allocs[j].FTE); c != 0 {
			return c > 0
		}
		return allocs[i].ID < allocs[j].ID
	})

	base, salaryType := allocsvc.ResolveSalaryForDate(emp, lastDay)

	var (
		candidates []candidate
		missing    int
	)
	for _, a := range allocs {
		details, err := g.sources.Resolve(ctx, a.Source)
		if err != nil {
			fail(a.ID, "funding_source_lookup", err)
			return out
		}
		if details.ExpiredOn(payDate) {
			slog.Warn("Skipping allocation with expired funding source",
				"employment_id", emp.ID,
				"allocation_id", a.ID,
				"funding_source", a.Source.String(),
				"pay_period", period.Format(periodLayout),
			)
			out.skips = append(out.skips, payroll.LineSkip{EmploymentID: emp.ID, AllocationID: a.ID, Reason: payroll.SkipSourceExpired})
			continue
		}

		posted, err := g.lines.ExistsForAllocationPeriod(ctx, a.ID, period)
		if err != nil {
			fail(a.ID, "line_lookup", err)
			return out
		}
		if posted {
			out.skips = append(out.skips, payroll.LineSkip{EmploymentID: emp.ID, AllocationID: a.ID, Reason: payroll.SkipAlreadyGenerated})
		} else {
			missing++
		}

		candidates = append(candidates, candidate{
			alloc:  a,
			source: details,
			gross:  allocsvc.ComputeAllocatedAmount(base, a.FTE, g.opts.AmountScale),
			posted: posted,
		})
	}
	if missing == 0 {
		return out
	}

	computed, err := g.computeLines(ctx, emp, period, base, salaryType, candidates, bonus, batchID)
	if err != nil {
		for _, c := range candidates {
			if !c.posted {
				fail(c.alloc.ID, failureReason(err), err)
			}
		}
		return out
	}
	lines := make([]payroll.PayrollLine, 0, missing)
	for i, c := range candidates {
		if !c.posted {
			lines = append(lines, computed[i])
		}
	}

	err = g.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := g.lines.CreateLines(ctx, lines); err != nil {
			return fmt.Errorf("failed to store payroll lines: %w", err)
		}
		for _, l := range lines {
			if !l.NeedsInterOrgAdvance {
				continue
			}
			if err := g.requestAdvance(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, l := range lines {
			fail(l.AllocationID, failureReason(err), err)
		}
		return out
	}

	out.lines = lines
	return out
}

// computeLines runs tax and statutory deductions on the employment's
// aggregate gross and apportions each component across lines by gross share.
// It returns one line per candidate, posted ones included, so a regenerated
// line receives the same share it had originally.
func (g *Generator) computeLines(
	ctx context.Context,
	emp employment.Employment,
	period time.Time,
	base money.Money,
	salaryType allocation.SalaryType,
	candidates []candidate,
	bonus money.Money,
	batchID string,
) ([]payroll.PayrollLine, error) {
	payDate := payroll.PayDate(period)
	snap, err := g.snapshots.SnapshotFor(ctx, payDate)
	if err != nil {
		return nil, err
	}

	weights := make([]money.Money, len(candidates))
	for i, c := range candidates {
		weights[i] = c.gross
	}
	aggregate := money.Sum(weights...)

	ytd, err := g.lines.SumYearToDate(ctx, emp.ID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load year-to-date totals: %w", err)
	}
	tax, err := g.tax.ComputePeriodTax(snap, g.opts.Convention, calculator.PeriodTaxInput{
		PeriodGross:    aggregate,
		Year:           period.Year(),
		Month:          int(period.Month()),
		YTDGross:       ytd.Gross,
		YTDTaxWithheld: ytd.Tax,
	})
	if err != nil {
		return nil, err
	}

	statutory, err := g.statutory.ComputeAll(snap, aggregate, emp.Benefits)
	if err != nil {
		return nil, err
	}

	scale := g.opts.AmountScale
	split := func(total money.Money) []money.Money {
		return money.Apportion(total, weights, scale)
	}
	var (
		taxParts   = split(tax.Withhold)
		ssEmployee = split(statutory.SocialSecurity.Employee)
		ssEmployer = split(statutory.SocialSecurity.Employer)
		hwEmployee = split(statutory.HealthWelfare.Employee)
		hwEmployer = split(statutory.HealthWelfare.Employer)
		pvdEmp     = split(statutory.PVD.Employee)
		pvdEr      = split(statutory.PVD.Employer)
		sfEmployee = split(statutory.SavingFund.Employee)
		sfEmployer = split(statutory.SavingFund.Employer)
		bonusParts = split(bonus)
	)

	lines := make([]payroll.PayrollLine, len(candidates))
	for i, c := range candidates {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate payroll line id: %w", err)
		}

		thirteenth := money.Zero()
		if g.opts.ThirteenthMonthAccrual {
			thirteenth = c.gross.Div(twelve).RoundHalfUp(scale)
		}

		l := payroll.PayrollLine{
			ID:                     id.String(),
			BatchID:                batchID,
			EmploymentID:           emp.ID,
			AllocationID:           c.alloc.ID,
			Source:                 c.alloc.Source,
			OrganizationID:         emp.OrganizationID,
			SourceOrganizationID:   c.source.OrganizationID,
			PayPeriod:              period,
			SalaryType:             salaryType,
			FTE:                    c.alloc.FTE,
			GrossSalary:            base,
			GrossByFTE:             c.gross,
			ThirteenthMonth:        thirteenth,
			Bonus:                  bonusParts[i],
			Tax:                    taxParts[i],
			SocialSecurityEmployee: ssEmployee[i],
			SocialSecurityEmployer: ssEmployer[i],
			HealthWelfareEmployee:  hwEmployee[i],
			HealthWelfareEmployer:  hwEmployer[i],
			PVDEmployee:            pvdEmp[i],
			PVDEmployer:            pvdEr[i],
			SavingFundEmployee:     sfEmployee[i],
			SavingFundEmployer:     sfEmployer[i],
			NeedsInterOrgAdvance:   NeedsInterOrganizationAdvance(emp, c.source),
			Status:                 payroll.LineStatusPosted,
		}
		l.TotalDeductions = l.EmployeeDeductions()
		l.NetSalary = l.ComputeNet()
		lines[i] = l
	}

	if err := checkNetIdentity(lines, aggregate, tax.Withhold.Add(statutory.EmployeeTotal()), bonus); err != nil {
		return nil, err
	}
	return lines, nil
}

// checkNetIdentity verifies the lines add back up to the employment totals.
func checkNetIdentity(lines []payroll.PayrollLine, gross, deductions, bonus money.Money) error {
	var net, thirteenth money.Money
	for _, l := range lines {
		net = net.Add(l.NetSalary)
		thirteenth = thirteenth.Add(l.ThirteenthMonth)
	}
	want := gross.Add(thirteenth).Add(bonus).Sub(deductions)
	if !net.Equal(want) {
		return fmt.Errorf("%w: lines net %s, employment net %s", payroll.ErrNetIdentity, net, want)
	}
	return nil
}

// NeedsInterOrganizationAdvance reports whether the funding source belongs to
// a different organization than the one employing the person.
func NeedsInterOrganizationAdvance(emp employment.Employment, source fundingsource.Details) bool {
	return source.OrganizationID != "" && source.OrganizationID != emp.OrganizationID
}

func (g *Generator) requestAdvance(ctx context.Context, l payroll.PayrollLine) error {
	payload := events.InterOrgAdvanceRequestedEvent{
		EventType:             events.InterOrgAdvanceRequestedEventType,
		PayrollLineID:         l.ID,
		EmploymentID:          l.EmploymentID,
		AllocationID:          l.AllocationID,
		PayPeriod:             l.PayPeriod.Format(periodLayout),
		EmployingOrganization: l.OrganizationID,
		FundingOrganization:   l.SourceOrganizationID,
		FundingSource:         l.Source.String(),
		NetAmount:             l.NetSalary.String(),
		OccurredAt:            g.now(),
	}
	ev, err := kafka.NewEvent(events.InterOrgAdvanceTopic, events.InterOrgAdvanceRequestedEventType, "payroll_line", l.ID, payload)
	if err != nil {
		return err
	}
	if err := g.outbox.Create(ctx, ev); err != nil {
		return fmt.Errorf("failed to enqueue inter-org advance: %w", err)
	}
	return nil
}

// ReverseLine marks a posted line reversed and stores a negating line in its
// place so the period can be generated again.
func (g *Generator) ReverseLine(ctx context.Context, lineID string) (payroll.PayrollLine, error) {
	original, err := g.lines.GetByID(ctx, lineID)
	if err != nil {
		return payroll.PayrollLine{}, err
	}

	ctx, release, err := lock.Hold(ctx, g.locker, lock.EmploymentKey(original.EmploymentID))
	if err != nil {
		return payroll.PayrollLine{}, err
	}
	defer release()

	var reversal payroll.PayrollLine
	err = g.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		line, err := g.lines.GetByID(ctx, lineID)
		if err != nil {
			return err
		}
		switch line.Status {
		case payroll.LineStatusPosted:
		case payroll.LineStatusReversed:
			return payroll.ErrLineAlreadyReversed
		default:
			return payroll.ErrCannotReverse
		}

		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate payroll line id: %w", err)
		}
		if err := g.lines.MarkReversed(ctx, line.ID); err != nil {
			return fmt.Errorf("failed to mark line reversed: %w", err)
		}
		reversal = line.Reversal(id.String(), line.BatchID)
		return g.lines.CreateLines(ctx, []payroll.PayrollLine{reversal})
	})
	if err != nil {
		return payroll.PayrollLine{}, err
	}

	slog.Info("Payroll line reversed", "line_id", lineID, "reversal_id", reversal.ID, "employment_id", reversal.EmploymentID)
	return reversal, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, settings.ErrNoBracketsConfigured):
		return "no_brackets_configured"
	case errors.Is(err, settings.ErrNoActiveSetting):
		return "no_active_setting"
	case errors.Is(err, settings.ErrInvalidBrackets):
		return "invalid_brackets"
	case errors.Is(err, payroll.ErrPayrollLineExists):
		return "already_generated"
	case errors.Is(err, payroll.ErrNetIdentity):
		return "net_identity"
	default:
		return "internal_error"
	}
}

func sortResult(r *payroll.BatchResult) {
	sort.SliceStable(r.Succeeded, func(i, j int) bool { return r.Succeeded[i].EmploymentID < r.Succeeded[j].EmploymentID })
	sort.SliceStable(r.Failed, func(i, j int) bool { return r.Failed[i].EmploymentID < r.Failed[j].EmploymentID })
	sort.SliceStable(r.Skipped, func(i, j int) bool { return r.Skipped[i].EmploymentID < r.Skipped[j].EmploymentID })
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
