package calculator

import (
	"fmt"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/shopspring/decimal"
)

// Convention selects how a period's gross is annualized for bracket lookup
type Convention string

const (
	// MonthlyTimes12 taxes the period gross as if earned every month of the year.
	MonthlyTimes12 Convention = "monthly_x12"
	// YearToDate projects the cumulative gross and withholds the liability
	// accrued to date less tax already withheld.
	YearToDate Convention = "year_to_date"
)

func ParseConvention(s string) (Convention, error) {
	switch c := Convention(s); c {
	case MonthlyTimes12, YearToDate:
		return c, nil
	default:
		return "", fmt.Errorf("unknown tax annualization convention %q", s)
	}
}

var twelve = decimal.NewFromInt(12)

type TaxCalculator struct {
	scale int32
}

func NewTaxCalculator(scale int32) *TaxCalculator {
	return &TaxCalculator{scale: scale}
}

// ComputeTax walks the year's brackets in order, taxing the part of income
// inside each band at its marginal rate. Only the final total is rounded.
func (c *TaxCalculator) ComputeTax(snap *settings.Snapshot, annualIncome money.Money, year int) (money.Money, error) {
	brackets, err := snap.BracketsFor(year)
	if err != nil {
		return money.Zero(), err
	}

	total := money.Zero()
	if !annualIncome.IsPositive() {
		return total, nil
	}

	for _, b := range brackets {
		if !annualIncome.GreaterThan(b.MinIncome) {
			break
		}
		upper := annualIncome
		if b.MaxIncome != nil {
			upper = money.Min(annualIncome, *b.MaxIncome)
		}
		total = total.Add(upper.Sub(b.MinIncome).Percent(b.Rate))
	}

	return total.RoundHalfUp(c.scale), nil
}

// PeriodTaxInput - one employment's figures for one pay period
type PeriodTaxInput struct {
	PeriodGross    money.Money
	Year           int
	Month          int // 1..12
	YTDGross       money.Money
	YTDTaxWithheld money.Money
}

// PeriodTaxResult - tax due for the period and the annual figures behind it
type PeriodTaxResult struct {
	AnnualizedIncome money.Money
	AnnualTax        money.Money
	Withhold         money.Money
	Credit           money.Money // over-withholding carried forward, never refunded here
}

// ComputePeriodTax brings an annual tax figure back to one pay period under
// the given convention.
func (c *TaxCalculator) ComputePeriodTax(snap *settings.Snapshot, convention Convention, in PeriodTaxInput) (PeriodTaxResult, error) {
	if in.Month < 1 || in.Month > 12 {
		return PeriodTaxResult{}, fmt.Errorf("tax month out of range: %d", in.Month)
	}

	switch convention {
	case MonthlyTimes12:
		annual := in.PeriodGross.Mul(twelve)
		annualTax, err := c.ComputeTax(snap, annual, in.Year)
		if err != nil {
			return PeriodTaxResult{}, err
		}
		return PeriodTaxResult{
			AnnualizedIncome: annual,
			AnnualTax:        annualTax,
			Withhold:         annualTax.Div(twelve).RoundHalfUp(c.scale),
			Credit:           money.Zero(),
		}, nil

	case YearToDate:
		month := decimal.NewFromInt(int64(in.Month))
		cumulative := in.YTDGross.Add(in.PeriodGross)
		projected := cumulative.Mul(twelve).Div(month).RoundHalfUp(c.scale)
		annualTax, err := c.ComputeTax(snap, projected, in.Year)
		if err != nil {
			return PeriodTaxResult{}, err
		}
		liabilityToDate := annualTax.Mul(month).Div(twelve).RoundHalfUp(c.scale)
		delta := liabilityToDate.Sub(in.YTDTaxWithheld)
		if delta.IsNegative() {
			return PeriodTaxResult{
				AnnualizedIncome: projected,
				AnnualTax:        annualTax,
				Withhold:         money.Zero(),
				Credit:           delta.Neg(),
			}, nil
		}
		return PeriodTaxResult{
			AnnualizedIncome: projected,
			AnnualTax:        annualTax,
			Withhold:         delta,
			Credit:           money.Zero(),
		}, nil

	default:
		return PeriodTaxResult{}, fmt.Errorf("unknown tax annualization convention %q", convention)
	}
}
