package payroll

import (
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/shopspring/decimal"
)

// LineStatus enum
type LineStatus string

const (
	LineStatusPosted   LineStatus = "posted"
	LineStatusReversed LineStatus = "reversed"
	LineStatusReversal LineStatus = "reversal"
)

// PayrollLine - one computed pay record per employment, allocation and pay period
type PayrollLine struct {
	ID                   string
	BatchID              string
	EmploymentID         string
	AllocationID         string
	Source               fundingsource.Source
	OrganizationID       string // employment home organization
	SourceOrganizationID string
	PayPeriod            time.Time // first day of the month
	SalaryType           allocation.SalaryType
	FTE                  decimal.Decimal

	GrossSalary     money.Money // full base salary for the period
	GrossByFTE      money.Money
	ThirteenthMonth money.Money
	Bonus           money.Money

	Tax                    money.Money
	SocialSecurityEmployee money.Money
	SocialSecurityEmployer money.Money
	HealthWelfareEmployee  money.Money
	HealthWelfareEmployer  money.Money
	PVDEmployee            money.Money
	PVDEmployer            money.Money
	SavingFundEmployee     money.Money
	SavingFundEmployer     money.Money

	TotalDeductions      money.Money
	NetSalary            money.Money
	NeedsInterOrgAdvance bool
	Status               LineStatus
	ReversalOf           *string
	CreatedAt            time.Time
}

// EmployeeDeductions sums every employee-side deduction.
func (l PayrollLine) EmployeeDeductions() money.Money {
	return money.Sum(l.Tax, l.SocialSecurityEmployee, l.HealthWelfareEmployee, l.PVDEmployee, l.SavingFundEmployee)
}

// EmployerAdditions sums the employer-side amounts paid on top of gross.
func (l PayrollLine) EmployerAdditions() money.Money {
	return l.ThirteenthMonth.Add(l.Bonus)
}

// ComputeNet is gross by FTE plus employer additions less employee deductions.
func (l PayrollLine) ComputeNet() money.Money {
	return l.GrossByFTE.Add(l.EmployerAdditions()).Sub(l.EmployeeDeductions())
}

// Reversal returns a line negating every amount of l.
func (l PayrollLine) Reversal(id, batchID string) PayrollLine {
	r := l
	r.ID = id
	r.BatchID = batchID
	r.GrossSalary = l.GrossSalary.Neg()
	r.GrossByFTE = l.GrossByFTE.Neg()
	r.ThirteenthMonth = l.ThirteenthMonth.Neg()
	r.Bonus = l.Bonus.Neg()
	r.Tax = l.Tax.Neg()
	r.SocialSecurityEmployee = l.SocialSecurityEmployee.Neg()
	r.SocialSecurityEmployer = l.SocialSecurityEmployer.Neg()
	r.HealthWelfareEmployee = l.HealthWelfareEmployee.Neg()
	r.HealthWelfareEmployer = l.HealthWelfareEmployer.Neg()
	r.PVDEmployee = l.PVDEmployee.Neg()
	r.PVDEmployer = l.PVDEmployer.Neg()
	r.SavingFundEmployee = l.SavingFundEmployee.Neg()
	r.SavingFundEmployer = l.SavingFundEmployer.Neg()
	r.TotalDeductions = l.TotalDeductions.Neg()
	r.NetSalary = l.NetSalary.Neg()
	r.NeedsInterOrgAdvance = false
	r.Status = LineStatusReversal
	original := l.ID
	r.ReversalOf = &original
	r.CreatedAt = time.Time{}
	return r
}

// PeriodStart normalizes t to the first day of its month.
func PeriodStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns the last day of the month containing t.
func PeriodEnd(t time.Time) time.Time {
	return PeriodStart(t).AddDate(0, 1, -1)
}

// PayDate is the date a period's salary and allocations are resolved on: the
// last day of the month.
func PayDate(period time.Time) time.Time {
	return PeriodEnd(period)
}

// LastPayableDay is the day allocations and salary are resolved on for a
// period: the pay date, or the employment's end date when that comes first.
func LastPayableDay(period time.Time, endDate *time.Time) time.Time {
	payDate := PayDate(period)
	if endDate != nil && endDate.Before(payDate) {
		return *endDate
	}
	return payDate
}

// YearToDate - totals posted in a tax year before a pay period
type YearToDate struct {
	Gross money.Money
	Tax   money.Money
}

// BatchStatus enum
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// SkipReason enum
type SkipReason string

const (
	SkipSourceExpired    SkipReason = "source_expired"
	SkipAlreadyGenerated SkipReason = "already_generated"
	SkipNoAllocations    SkipReason = "no_active_allocations"
	SkipEmploymentEnded  SkipReason = "employment_ended"
	SkipBatchCancelled   SkipReason = "batch_cancelled"
)

// LineFailure - a failed employment or allocation within a batch
type LineFailure struct {
	EmploymentID string
	AllocationID string
	Reason       string
	Err          error
}

// LineSkip - an allocation deliberately left out of a batch
type LineSkip struct {
	EmploymentID string
	AllocationID string
	Reason       SkipReason
}

// BatchResult - structured outcome of one generateForPeriod call
type BatchResult struct {
	BatchID    string
	PayPeriod  time.Time
	Status     BatchStatus
	Total      int
	Processed  int
	Succeeded  []PayrollLine
	Failed     []LineFailure
	Skipped    []LineSkip
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt *time.Time
}
