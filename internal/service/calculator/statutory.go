package calculator

import (
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
)

// Split - a contribution divided between employee and employer
type Split struct {
	Employee money.Money
	Employer money.Money
}

func zeroSplit() Split {
	return Split{Employee: money.Zero(), Employer: money.Zero()}
}

func (s Split) Total() money.Money {
	return s.Employee.Add(s.Employer)
}

// Statutory - every statutory deduction for one gross amount
type Statutory struct {
	SocialSecurity Split
	HealthWelfare  Split
	PVD            Split
	SavingFund     Split
}

// EmployeeTotal sums the employee side of every contribution.
func (s Statutory) EmployeeTotal() money.Money {
	return money.Sum(s.SocialSecurity.Employee, s.HealthWelfare.Employee, s.PVD.Employee, s.SavingFund.Employee)
}

type StatutoryCalculator struct {
	scale int32
}

func NewStatutoryCalculator(scale int32) *StatutoryCalculator {
	return &StatutoryCalculator{scale: scale}
}

// ComputeSocialSecurity caps gross*rate at the configured amount and splits
// the result by the employee and employer share percentages.
func (c *StatutoryCalculator) ComputeSocialSecurity(snap *settings.Snapshot, gross money.Money, enrolled bool) (Split, error) {
	if !enrolled {
		return zeroSplit(), nil
	}

	rate, err := snap.Percentage(settings.SocialSecurityRate)
	if err != nil {
		return Split{}, err
	}
	capAmount, err := snap.Cap(settings.SocialSecurityCap)
	if err != nil {
		return Split{}, err
	}
	employeeShare, err := snap.Percentage(settings.SocialSecurityEmployeeShare)
	if err != nil {
		return Split{}, err
	}
	employerShare, err := snap.Percentage(settings.SocialSecurityEmployerShare)
	if err != nil {
		return Split{}, err
	}

	total := money.Min(gross.Percent(rate), capAmount)
	return Split{
		Employee: total.Percent(employeeShare).RoundHalfUp(c.scale),
		Employer: total.Percent(employerShare).RoundHalfUp(c.scale),
	}, nil
}

func (c *StatutoryCalculator) ComputeProvidentFund(snap *settings.Snapshot, gross money.Money, enrolled bool) (Split, error) {
	return c.percentSplit(snap, gross, enrolled, settings.PVDEmployeeRate, settings.PVDEmployerRate)
}

func (c *StatutoryCalculator) ComputeSavingFund(snap *settings.Snapshot, gross money.Money, enrolled bool) (Split, error) {
	return c.percentSplit(snap, gross, enrolled, settings.SavingFundEmployeeRate, settings.SavingFundEmployerRate)
}

func (c *StatutoryCalculator) ComputeHealthWelfare(snap *settings.Snapshot, gross money.Money, enrolled bool) (Split, error) {
	return c.percentSplit(snap, gross, enrolled, settings.HealthWelfareEmployeeRate, settings.HealthWelfareEmployerRate)
}

// ComputeAll runs every calculator gated by the employment's enrolment flags.
func (c *StatutoryCalculator) ComputeAll(snap *settings.Snapshot, gross money.Money, benefits employment.Benefits) (Statutory, error) {
	var (
		out Statutory
		err error
	)
	if out.SocialSecurity, err = c.ComputeSocialSecurity(snap, gross, benefits.SocialSecurity); err != nil {
		return Statutory{}, err
	}
	if out.HealthWelfare, err = c.ComputeHealthWelfare(snap, gross, benefits.HealthWelfare); err != nil {
		return Statutory{}, err
	}
	if out.PVD, err = c.ComputeProvidentFund(snap, gross, benefits.PVD); err != nil {
		return Statutory{}, err
	}
	if out.SavingFund, err = c.ComputeSavingFund(snap, gross, benefits.SavingFund); err != nil {
		return Statutory{}, err
	}
	return out, nil
}

func (c *StatutoryCalculator) percentSplit(snap *settings.Snapshot, gross money.Money, enrolled bool, employeeKey, employerKey settings.BenefitKey) (Split, error) {
	if !enrolled {
		return zeroSplit(), nil
	}

	employeeRate, err := snap.Percentage(employeeKey)
	if err != nil {
		return Split{}, err
	}
	employerRate, err := snap.Percentage(employerKey)
	if err != nil {
		return Split{}, err
	}

	return Split{
		Employee: gross.Percent(employeeRate).RoundHalfUp(c.scale),
		Employer: gross.Percent(employerRate).RoundHalfUp(c.scale),
	}, nil
}
