package allocation

import (
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/shopspring/decimal"
)

// Status enum
type Status string

const (
	StatusActive     Status = "active"
	StatusHistorical Status = "historical"
	StatusTerminated Status = "terminated"
)

// SalaryType records which base salary figure an amount was derived from
type SalaryType string

const (
	SalaryTypeProbation     SalaryType = "probation_salary"
	SalaryTypePassProbation SalaryType = "pass_probation_salary"
)

// FullTime is the FTE total every active allocation set must reach.
var FullTime = decimal.NewFromInt(100)

// FundingAllocation - a fractional claim of one employment against one funding source
type FundingAllocation struct {
	ID              string
	EmploymentID    string
	Source          fundingsource.Source
	FTE             decimal.Decimal // percent of full time, (0, 100]
	AllocatedAmount money.Money
	SalaryType      SalaryType
	Status          Status
	StartDate       time.Time
	EndDate         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidOn reports whether date falls inside the allocation's validity window.
func (a FundingAllocation) ValidOn(date time.Time) bool {
	if date.Before(a.StartDate) {
		return false
	}
	return a.EndDate == nil || !a.EndDate.Before(date)
}

// Request is one proposed (source, fte) pair.
type Request struct {
	Source fundingsource.Source
	FTE    decimal.Decimal
}

// RequestsFrom returns the (source, fte) pairs of an existing set.
func RequestsFrom(allocations []FundingAllocation) []Request {
	out := make([]Request, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, Request{Source: a.Source, FTE: a.FTE})
	}
	return out
}

// SumFTE totals the fte of the given pairs.
func SumFTE(requests []Request) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range requests {
		sum = sum.Add(r.FTE)
	}
	return sum
}
