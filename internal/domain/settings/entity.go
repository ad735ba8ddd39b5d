package settings

import (
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/shopspring/decimal"
)

// TaxBracket - one marginal band of the progressive income tax table
type TaxBracket struct {
	ID            string
	EffectiveYear int
	BracketOrder  int
	MinIncome     money.Money
	MaxIncome     *money.Money    // nil for the top band
	Rate          decimal.Decimal // percent, 5 means 5%
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BenefitKey names a statutory benefit parameter
type BenefitKey string

const (
	SocialSecurityRate          BenefitKey = "social_security_rate"
	SocialSecurityEmployerShare BenefitKey = "social_security_employer_share"
	SocialSecurityEmployeeShare BenefitKey = "social_security_employee_share"
	SocialSecurityCap           BenefitKey = "social_security_cap"
	PVDEmployeeRate             BenefitKey = "pvd_employee_rate"
	PVDEmployerRate             BenefitKey = "pvd_employer_rate"
	SavingFundEmployeeRate      BenefitKey = "saving_fund_employee_rate"
	SavingFundEmployerRate      BenefitKey = "saving_fund_employer_rate"
	HealthWelfareEmployeeRate   BenefitKey = "health_welfare_employee_rate"
	HealthWelfareEmployerRate   BenefitKey = "health_welfare_employer_rate"
)

var knownKeys = map[BenefitKey]struct{}{
	SocialSecurityRate:          {},
	SocialSecurityEmployerShare: {},
	SocialSecurityEmployeeShare: {},
	SocialSecurityCap:           {},
	PVDEmployeeRate:             {},
	PVDEmployerRate:             {},
	SavingFundEmployeeRate:      {},
	SavingFundEmployerRate:      {},
	HealthWelfareEmployeeRate:   {},
	HealthWelfareEmployerRate:   {},
}

func (k BenefitKey) IsValid() bool {
	_, ok := knownKeys[k]
	return ok
}

// BenefitSetting - an effective-dated percentage or capped amount.
// Percentage settings use Percentage; SocialSecurityCap uses CapAmount.
type BenefitSetting struct {
	ID            string
	Key           BenefitKey
	Percentage    decimal.Decimal
	CapAmount     *money.Money
	EffectiveDate time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
