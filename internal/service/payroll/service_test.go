package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/payroll"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/events"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/lock"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/repository/memory"
	allocsvc "github.com/cmlabs-hris/hrms-payroll-core/internal/service/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/service/calculator"
	settingsvc "github.com/cmlabs-hris/hrms-payroll-core/internal/service/settings"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	grantA    = fundingsource.GrantItem("grant-a")
	orgFunded = fundingsource.OrgFunded("org-slot-1")
	april     = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(m money.Money) *money.Money { return &m }

func pct(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store     *memory.Store
	alloc     *allocsvc.Engine
	generator *Generator
}

type snapshotFunc func(ctx context.Context, asOf time.Time) (*settings.Snapshot, error)

func (f snapshotFunc) SnapshotFor(ctx context.Context, asOf time.Time) (*settings.Snapshot, error) {
	return f(ctx, asOf)
}

func seedSettings(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	for year := 2023; year <= 2025; year++ {
		for _, b := range []settings.TaxBracket{
			{EffectiveYear: year, BracketOrder: 1, MinIncome: money.Zero(), MaxIncome: ptr(money.FromInt(150000)), Rate: pct("0"), IsActive: true},
			{EffectiveYear: year, BracketOrder: 2, MinIncome: money.FromInt(150000), MaxIncome: ptr(money.FromInt(300000)), Rate: pct("5"), IsActive: true},
			{EffectiveYear: year, BracketOrder: 3, MinIncome: money.FromInt(300000), Rate: pct("10"), IsActive: true},
		} {
			require.NoError(t, store.Settings().UpsertTaxBracket(ctx, b))
		}
	}

	effective := day("2023-01-01")
	benefit := func(key settings.BenefitKey, p string) settings.BenefitSetting {
		return settings.BenefitSetting{Key: key, Percentage: pct(p), EffectiveDate: effective, IsActive: true}
	}
	for _, s := range []settings.BenefitSetting{
		benefit(settings.SocialSecurityRate, "10"),
		benefit(settings.SocialSecurityEmployeeShare, "50"),
		benefit(settings.SocialSecurityEmployerShare, "50"),
		{Key: settings.SocialSecurityCap, CapAmount: ptr(money.FromInt(1500)), EffectiveDate: effective, IsActive: true},
		benefit(settings.PVDEmployeeRate, "3"),
		benefit(settings.PVDEmployerRate, "3"),
		benefit(settings.SavingFundEmployeeRate, "2.5"),
		benefit(settings.SavingFundEmployerRate, "2.5"),
		benefit(settings.HealthWelfareEmployeeRate, "0.5"),
		benefit(settings.HealthWelfareEmployerRate, "1"),
	} {
		require.NoError(t, store.Settings().UpsertBenefitSetting(ctx, s))
	}
}

func setup(t *testing.T, opts Options, snapshots SnapshotProvider) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	seedSettings(t, store)

	require.NoError(t, store.FundingSources().Upsert(ctx, fundingsource.Details{
		Source: grantA, OrganizationID: "org-funder", StartDate: day("2023-01-01"),
	}))
	require.NoError(t, store.FundingSources().Upsert(ctx, fundingsource.Details{
		Source: orgFunded, OrganizationID: "org-home", StartDate: day("2023-01-01"),
	}))

	if snapshots == nil {
		snapshots = settingsvc.NewService(store.Settings())
	}
	locker := lock.NewLocalLocker()
	return fixture{
		store: store,
		alloc: allocsvc.NewEngine(store, store.Allocations(), store.FundingSources(), locker, allocsvc.DefaultOptions()),
		generator: NewGenerator(store, store.Employments(), store.Allocations(), store.FundingSources(),
			store.Payroll(), snapshots, store.Outbox(), locker, NewBatchRegistry(0), opts),
	}
}

// hire creates a 30,000 employment past probation with a 60/40 grant and
// org-funded split.
func (f fixture) hire(t *testing.T, id string) employment.Employment {
	t.Helper()
	ctx := context.Background()
	emp, err := f.store.Employments().Create(ctx, employment.Employment{
		ID:                  id,
		EmployeeID:          "emp-" + id,
		OrganizationID:      "org-home",
		StartDate:           day("2023-01-01"),
		PassProbationSalary: money.FromInt(30000),
		Benefits:            employment.Benefits{SocialSecurity: true, HealthWelfare: true, PVD: true, SavingFund: true},
		IsActive:            true,
	})
	require.NoError(t, err)

	_, err = f.alloc.CreateAllocations(ctx, emp, []allocation.Request{
		{Source: grantA, FTE: decimal.NewFromInt(60)},
		{Source: orgFunded, FTE: decimal.NewFromInt(40)},
	}, day("2023-01-01"))
	require.NoError(t, err)
	return emp
}

func linesBySource(lines []payroll.PayrollLine) map[fundingsource.Source]payroll.PayrollLine {
	out := make(map[fundingsource.Source]payroll.PayrollLine, len(lines))
	for _, l := range lines {
		out[l.Source] = l
	}
	return out
}

func TestGenerateForPeriod(t *testing.T) {
	f := setup(t, DefaultOptions(), nil)
	ctx := context.Background()
	f.hire(t, "e1")

	result, err := f.generator.GenerateForPeriod(ctx, april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, payroll.BatchStatusCompleted, result.Status)
	assert.Empty(t, result.Failed)
	assert.Empty(t, result.Skipped)
	require.Len(t, result.Succeeded, 2)

	lines := linesBySource(result.Succeeded)
	grant, org := lines[grantA], lines[orgFunded]

	assert.Equal(t, "18000.00", grant.GrossByFTE.String())
	assert.Equal(t, "12000.00", org.GrossByFTE.String())
	assert.Equal(t, "30000.00", grant.GrossSalary.String())
	assert.Equal(t, allocation.SalaryTypePassProbation, grant.SalaryType)

	// Annual 360,000 taxes at 13,500, 1,125 a month split 60/40.
	assert.Equal(t, "675.00", grant.Tax.String())
	assert.Equal(t, "450.00", org.Tax.String())

	// Social security 3,000 is capped at 1,500, half each side.
	assert.Equal(t, "450.00", grant.SocialSecurityEmployee.String())
	assert.Equal(t, "300.00", org.SocialSecurityEmployer.String())
	assert.Equal(t, "540.00", grant.PVDEmployee.String())
	assert.Equal(t, "450.00", grant.SavingFundEmployee.String())
	assert.Equal(t, "90.00", grant.HealthWelfareEmployee.String())
	assert.Equal(t, "120.00", org.HealthWelfareEmployer.String())

	assert.Equal(t, "2205.00", grant.TotalDeductions.String())
	assert.Equal(t, "15795.00", grant.NetSalary.String())
	assert.Equal(t, "10530.00", org.NetSalary.String())
	for _, l := range result.Succeeded {
		assert.True(t, l.NetSalary.Equal(l.GrossByFTE.Add(l.EmployerAdditions()).Sub(l.EmployeeDeductions())))
	}

	assert.True(t, grant.NeedsInterOrgAdvance)
	assert.False(t, org.NeedsInterOrgAdvance)

	outbox := f.store.Outbox().Events()
	require.Len(t, outbox, 1)
	assert.Equal(t, events.InterOrgAdvanceTopic, outbox[0].Topic)
	var payload events.InterOrgAdvanceRequestedEvent
	require.NoError(t, json.Unmarshal(outbox[0].Payload, &payload))
	assert.Equal(t, "15795.00", payload.NetAmount)
	assert.Equal(t, "org-funder", payload.FundingOrganization)
	assert.Equal(t, "2024-04", payload.PayPeriod)

	active, err := f.store.Allocations().ListActiveByEmployment(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, active, 2, "payroll must not touch allocations")
}

func TestGenerateForPeriod_ApportionResidue(t *testing.T) {
	f := setup(t, DefaultOptions(), nil)
	ctx := context.Background()
	emp, err := f.store.Employments().Create(ctx, employment.Employment{
		ID:                  "e1",
		OrganizationID:      "org-home",
		StartDate:           day("2023-01-01"),
		PassProbationSalary: money.MustParse("30000.01"),
		Benefits:            employment.Benefits{SocialSecurity: true, PVD: true},
		IsActive:            true,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.FundingSources().Upsert(ctx, fundingsource.Details{
		Source: fundingsource.OrgFunded("org-slot-2"), OrganizationID: "org-home", StartDate: day("2023-01-01"),
	}))
	_, err = f.alloc.CreateAllocations(ctx, emp, []allocation.Request{
		{Source: grantA, FTE: pct("33.34")},
		{Source: orgFunded, FTE: pct("33.33")},
		{Source: fundingsource.OrgFunded("org-slot-2"), FTE: pct("33.33")},
	}, day("2023-01-01"))
	require.NoError(t, err)

	result, err := f.generator.GenerateForPeriod(ctx, april, []string{"e1"}, RunOptions{
		Bonuses: map[string]money.Money{"e1": money.FromInt(1000)},
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 3)

	var tax, pvd, bonus money.Money
	for _, l := range result.Succeeded {
		tax = tax.Add(l.Tax)
		pvd = pvd.Add(l.PVDEmployee)
		bonus = bonus.Add(l.Bonus)
	}
	gross := money.Zero()
	for _, l := range result.Succeeded {
		gross = gross.Add(l.GrossByFTE)
	}
	snap, err := settingsvc.NewService(f.store.Settings()).SnapshotFor(ctx, payroll.PayDate(april))
	require.NoError(t, err)
	statutory, err := calculator.NewStatutoryCalculator(2).ComputeAll(snap, gross, emp.Benefits)
	require.NoError(t, err)

	assert.True(t, pvd.Equal(statutory.PVD.Employee), "pvd %s vs %s", pvd, statutory.PVD.Employee)
	assert.Equal(t, "1000.00", bonus.String())
	assert.False(t, tax.IsNegative())
}

func TestGenerateForPeriod_SkipsExistingLines(t *testing.T) {
	f := setup(t, DefaultOptions(), nil)
	ctx := context.Background()
	f.hire(t, "e1")

	_, err := f.generator.GenerateForPeriod(ctx, april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)

	result, err := f.generator.GenerateForPeriod(ctx, april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Skipped, 2)
	for _, s := range result.Skipped {
		assert.Equal(t, payroll.SkipAlreadyGenerated, s.Reason)
	}

	lines, err := f.store.Payroll().ListByEmploymentPeriod(ctx, "e1", april)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestGenerateForPeriod_ExpiredSource(t *testing.T) {
	f := setup(t, DefaultOptions(), nil)
	ctx := context.Background()
	f.hire(t, "e1")

	end := day("2024-03-31")
	require.NoError(t, f.store.FundingSources().Upsert(ctx, fundingsource.Details{
		Source: grantA, OrganizationID: "org-funder", StartDate: day("2023-01-01"), EndDate: &end,
	}))

	result, err := f.generator.GenerateForPeriod(ctx, april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	assert.Equal(t, orgFunded, result.Succeeded[0].Source)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, payroll.SkipSourceExpired, result.Skipped[0].Reason)
	assert.Empty(t, result.Failed)
}

func TestGenerateForPeriod_FailureIsIsolated(t *testing.T) {
	f := setup(t, Options{Workers: 2, AmountScale: 2}, nil)
	ctx := context.Background()
	f.hire(t, "e1")
	f.hire(t, "e2")

	f.store.SetFault(memory.Fault{Op: memory.OpPayrollCreateLines, EmploymentID: "e1", Err: errors.New("connection reset")})

	result, err := f.generator.GenerateForPeriod(ctx, april, nil, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Processed)

	require.Len(t, result.Succeeded, 2)
	for _, l := range result.Succeeded {
		assert.Equal(t, "e2", l.EmploymentID)
	}
	require.Len(t, result.Failed, 2)
	for _, fl := range result.Failed {
		assert.Equal(t, "e1", fl.EmploymentID)
		assert.Equal(t, "internal_error", fl.Reason)
	}

	lines, err := f.store.Payroll().ListByEmploymentPeriod(ctx, "e1", april)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestGenerateForPeriod_MissingConfiguration(t *testing.T) {
	f := setup(t, DefaultOptions(), nil)
	ctx := context.Background()
	f.hire(t, "e1")

	result, err := f.generator.GenerateForPeriod(ctx, time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC), []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, "no_brackets_configured", result.Failed[0].Reason)
	assert.ErrorIs(t, result.Failed[0].Err, settings.ErrNoBracketsConfigured)
}

func TestGenerateForPeriod_NoAllocations(t *testing.T) {
	f := setup(t, DefaultOptions(), nil)
	ctx := context.Background()
	_, err := f.store.Employments().Create(ctx, employment.Employment{
		ID: "e1", OrganizationID: "org-home", StartDate: day("2023-01-01"), PassProbationSalary: money.FromInt(1000), IsActive: true,
	})
	require.NoError(t, err)

	result, err := f.generator.GenerateForPeriod(ctx, april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, payroll.SkipNoAllocations, result.Skipped[0].Reason)
}

func TestGenerateForPeriod_YearToDateConvention(t *testing.T) {
	opts := DefaultOptions()
	opts.Convention = calculator.YearToDate
	f := setup(t, opts, nil)
	ctx := context.Background()
	f.hire(t, "e1")

	for _, month := range []time.Month{time.January, time.February} {
		result, err := f.generator.GenerateForPeriod(ctx, time.Date(2024, month, 1, 0, 0, 0, 0, time.UTC), []string{"e1"}, RunOptions{})
		require.NoError(t, err)
		require.Len(t, result.Succeeded, 2)

		tax := money.Zero()
		for _, l := range result.Succeeded {
			tax = tax.Add(l.Tax)
		}
		assert.Equal(t, "1125.00", tax.String(), month.String())
	}
}

func TestGenerateForPeriod_ThirteenthMonth(t *testing.T) {
	opts := DefaultOptions()
	opts.ThirteenthMonthAccrual = true
	f := setup(t, opts, nil)
	f.hire(t, "e1")

	result, err := f.generator.GenerateForPeriod(context.Background(), april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	lines := linesBySource(result.Succeeded)
	assert.Equal(t, "1500.00", lines[grantA].ThirteenthMonth.String())
	assert.Equal(t, "1000.00", lines[orgFunded].ThirteenthMonth.String())
	assert.Equal(t, "17295.00", lines[grantA].NetSalary.String())
}

func TestGenerateForPeriod_Cancel(t *testing.T) {
	var f fixture
	cancelled := false
	snapshots := snapshotFunc(func(ctx context.Context, asOf time.Time) (*settings.Snapshot, error) {
		if !cancelled {
			cancelled = true
			require.NoError(t, f.generator.Registry().Cancel("batch-1"))
		}
		return settingsvc.NewService(f.store.Settings()).SnapshotFor(ctx, asOf)
	})
	f = setup(t, Options{Workers: 1, AmountScale: 2}, snapshots)
	f.hire(t, "e1")
	f.hire(t, "e2")
	f.hire(t, "e3")

	result, err := f.generator.GenerateForPeriod(context.Background(), april, []string{"e1", "e2", "e3"}, RunOptions{BatchID: "batch-1"})
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, payroll.BatchStatusCancelled, result.Status)

	require.Len(t, result.Succeeded, 2, "the employment in flight keeps its lines")
	assert.Equal(t, "e1", result.Succeeded[0].EmploymentID)
	require.Len(t, result.Skipped, 2)
	for _, s := range result.Skipped {
		assert.Equal(t, payroll.SkipBatchCancelled, s.Reason)
	}

	err = f.generator.Registry().Cancel("batch-1")
	assert.ErrorIs(t, err, payroll.ErrBatchFinished)

	progress, err := f.generator.Registry().Progress("batch-1")
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Processed)

	_, err = f.generator.GenerateForPeriod(context.Background(), april, []string{"e2"}, RunOptions{BatchID: "batch-1"})
	assert.ErrorIs(t, err, payroll.ErrBatchExists)
}

func TestStartBatch(t *testing.T) {
	f := setup(t, DefaultOptions(), nil)
	f.hire(t, "e1")

	batch, err := f.generator.StartBatch(context.Background(), april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)

	select {
	case <-batch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish")
	}

	result, err := f.generator.Registry().Progress(batch.ID())
	require.NoError(t, err)
	assert.Equal(t, payroll.BatchStatusCompleted, result.Status)
	assert.Len(t, result.Succeeded, 2)
	require.NotNil(t, result.FinishedAt)
}

func TestReverseLine(t *testing.T) {
	f := setup(t, DefaultOptions(), nil)
	ctx := context.Background()
	f.hire(t, "e1")

	result, err := f.generator.GenerateForPeriod(ctx, april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	original := linesBySource(result.Succeeded)[orgFunded]

	reversal, err := f.generator.ReverseLine(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.LineStatusReversal, reversal.Status)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, original.ID, *reversal.ReversalOf)
	assert.True(t, reversal.NetSalary.Equal(original.NetSalary.Neg()))

	stored, err := f.store.Payroll().GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.LineStatusReversed, stored.Status)

	_, err = f.generator.ReverseLine(ctx, original.ID)
	assert.ErrorIs(t, err, payroll.ErrLineAlreadyReversed)
	_, err = f.generator.ReverseLine(ctx, reversal.ID)
	assert.ErrorIs(t, err, payroll.ErrCannotReverse)

	ytd, err := f.store.Payroll().SumYearToDate(ctx, "e1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "18000.00", ytd.Gross.String())

	again, err := f.generator.GenerateForPeriod(ctx, april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	require.Len(t, again.Succeeded, 1)
	reissued := again.Succeeded[0]
	assert.Equal(t, orgFunded, reissued.Source)
	require.Len(t, again.Skipped, 1)
	assert.Equal(t, payroll.SkipAlreadyGenerated, again.Skipped[0].Reason)

	// The reissued share is computed on the whole month, not on the
	// remaining allocation alone.
	assert.Equal(t, original.GrossByFTE.String(), reissued.GrossByFTE.String())
	assert.Equal(t, original.Tax.String(), reissued.Tax.String())
	assert.Equal(t, original.SocialSecurityEmployee.String(), reissued.SocialSecurityEmployee.String())
	assert.Equal(t, original.SocialSecurityEmployer.String(), reissued.SocialSecurityEmployer.String())
	assert.Equal(t, original.PVDEmployee.String(), reissued.PVDEmployee.String())
	assert.Equal(t, original.NetSalary.String(), reissued.NetSalary.String())
}

func TestGenerateForPeriod_MidMonthTermination(t *testing.T) {
	f := setup(t, DefaultOptions(), nil)
	ctx := context.Background()
	emp := f.hire(t, "e1")

	end := day("2024-04-15")
	_, err := f.store.Employments().SetEndDate(ctx, emp.ID, end, emp.Version)
	require.NoError(t, err)
	active, err := f.store.Allocations().ListActiveByEmployment(ctx, emp.ID)
	require.NoError(t, err)
	for _, a := range active {
		require.NoError(t, f.store.Allocations().CloseWindow(ctx, a.ID, end))
	}

	result, err := f.generator.GenerateForPeriod(ctx, april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Succeeded, 2)
	lines := linesBySource(result.Succeeded)
	assert.Equal(t, "18000.00", lines[grantA].GrossByFTE.String())
	assert.Equal(t, "12000.00", lines[orgFunded].GrossByFTE.String())

	may := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	result, err = f.generator.GenerateForPeriod(ctx, may, []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, payroll.SkipEmploymentEnded, result.Skipped[0].Reason)
}

func TestGenerateForPeriod_LateRunAfterReplacement(t *testing.T) {
	f := setup(t, DefaultOptions(), nil)
	ctx := context.Background()
	emp := f.hire(t, "e1")

	_, err := f.alloc.ReplaceAllocations(ctx, emp, []allocation.Request{
		{Source: grantA, FTE: decimal.NewFromInt(25)},
		{Source: orgFunded, FTE: decimal.NewFromInt(75)},
	}, day("2024-06-01"))
	require.NoError(t, err)

	result, err := f.generator.GenerateForPeriod(ctx, april, []string{"e1"}, RunOptions{})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 2)
	lines := linesBySource(result.Succeeded)
	assert.Equal(t, "18000.00", lines[grantA].GrossByFTE.String(), "April pays the split valid in April")
	assert.Equal(t, "12000.00", lines[orgFunded].GrossByFTE.String())
}

func TestNeedsInterOrganizationAdvance(t *testing.T) {
	emp := employment.Employment{OrganizationID: "org-home"}
	assert.False(t, NeedsInterOrganizationAdvance(emp, fundingsource.Details{OrganizationID: "org-home"}))
	assert.True(t, NeedsInterOrganizationAdvance(emp, fundingsource.Details{OrganizationID: "org-other"}))
	assert.False(t, NeedsInterOrganizationAdvance(emp, fundingsource.Details{}))
}
