package payroll

import (
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// ========== REQUEST DTOs ==========

type GenerateBatchRequest struct {
	PayPeriod     string                     `json:"pay_period"` // "YYYY-MM"
	EmploymentIDs []string                   `json:"employment_ids,omitempty"`
	Bonuses       map[string]decimal.Decimal `json:"bonuses,omitempty"` // employment id -> amount
}

func (r *GenerateBatchRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.PayPeriod) {
		errs = append(errs, validator.ValidationError{Field: "pay_period", Message: "is required"})
	} else if _, ok := validator.IsValidPayPeriod(r.PayPeriod); !ok {
		errs = append(errs, validator.ValidationError{Field: "pay_period", Message: "must be in YYYY-MM format"})
	}
	for _, id := range r.EmploymentIDs {
		if validator.IsEmpty(id) {
			errs = append(errs, validator.ValidationError{Field: "employment_ids", Message: "must not contain empty ids"})
			break
		}
	}
	for id, amount := range r.Bonuses {
		if amount.IsNegative() {
			errs = append(errs, validator.ValidationError{Field: "bonuses." + id, Message: "must be non-negative"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Period returns the parsed pay period of a validated request.
func (r *GenerateBatchRequest) Period() time.Time {
	p, _ := validator.IsValidPayPeriod(r.PayPeriod)
	return p
}

func (r *GenerateBatchRequest) BonusAmounts() map[string]money.Money {
	out := make(map[string]money.Money, len(r.Bonuses))
	for id, amount := range r.Bonuses {
		out[id] = money.New(amount)
	}
	return out
}

// ========== RESPONSE DTOs ==========

type PayrollLineResponse struct {
	ID                     string `json:"id"`
	EmploymentID           string `json:"employment_id"`
	AllocationID           string `json:"allocation_id"`
	FundingSource          string `json:"funding_source"`
	PayPeriod              string `json:"pay_period"`
	SalaryType             string `json:"salary_type"`
	FTE                    string `json:"fte"`
	GrossSalary            string `json:"gross_salary"`
	GrossByFTE             string `json:"gross_by_fte"`
	ThirteenthMonth        string `json:"thirteenth_month"`
	Bonus                  string `json:"bonus"`
	Tax                    string `json:"tax"`
	SocialSecurityEmployee string `json:"social_security_employee"`
	SocialSecurityEmployer string `json:"social_security_employer"`
	HealthWelfareEmployee  string `json:"health_welfare_employee"`
	HealthWelfareEmployer  string `json:"health_welfare_employer"`
	PVDEmployee            string `json:"pvd_employee"`
	PVDEmployer            string `json:"pvd_employer"`
	SavingFundEmployee     string `json:"saving_fund_employee"`
	SavingFundEmployer     string `json:"saving_fund_employer"`
	TotalDeductions        string `json:"total_deductions"`
	NetSalary              string `json:"net_salary"`
	NeedsInterOrgAdvance   bool   `json:"needs_inter_org_advance"`
	Status                 string `json:"status"`
}

func ToLineResponse(l PayrollLine) PayrollLineResponse {
	return PayrollLineResponse{
		ID:                     l.ID,
		EmploymentID:           l.EmploymentID,
		AllocationID:           l.AllocationID,
		FundingSource:          l.Source.String(),
		PayPeriod:              l.PayPeriod.Format(validator.PayPeriodLayout),
		SalaryType:             string(l.SalaryType),
		FTE:                    l.FTE.String(),
		GrossSalary:            l.GrossSalary.String(),
		GrossByFTE:             l.GrossByFTE.String(),
		ThirteenthMonth:        l.ThirteenthMonth.String(),
		Bonus:                  l.Bonus.String(),
		Tax:                    l.Tax.String(),
		SocialSecurityEmployee: l.SocialSecurityEmployee.String(),
		SocialSecurityEmployer: l.SocialSecurityEmployer.String(),
		HealthWelfareEmployee:  l.HealthWelfareEmployee.String(),
		HealthWelfareEmployer:  l.HealthWelfareEmployer.String(),
		PVDEmployee:            l.PVDEmployee.String(),
		PVDEmployer:            l.PVDEmployer.String(),
		SavingFundEmployee:     l.SavingFundEmployee.String(),
		SavingFundEmployer:     l.SavingFundEmployer.String(),
		TotalDeductions:        l.TotalDeductions.String(),
		NetSalary:              l.NetSalary.String(),
		NeedsInterOrgAdvance:   l.NeedsInterOrgAdvance,
		Status:                 string(l.Status),
	}
}

type LineFailureResponse struct {
	EmploymentID string `json:"employment_id"`
	AllocationID string `json:"allocation_id,omitempty"`
	Reason       string `json:"reason"`
}

type LineSkipResponse struct {
	EmploymentID string `json:"employment_id"`
	AllocationID string `json:"allocation_id,omitempty"`
	Reason       string `json:"reason"`
}

type BatchResponse struct {
	BatchID    string                `json:"batch_id"`
	PayPeriod  string                `json:"pay_period"`
	Status     string                `json:"status"`
	Total      int                   `json:"total"`
	Processed  int                   `json:"processed"`
	Succeeded  []PayrollLineResponse `json:"succeeded"`
	Failed     []LineFailureResponse `json:"failed"`
	Skipped    []LineSkipResponse    `json:"skipped"`
	Cancelled  bool                  `json:"cancelled"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
}

func ToBatchResponse(r BatchResult) BatchResponse {
	resp := BatchResponse{
		BatchID:    r.BatchID,
		PayPeriod:  r.PayPeriod.Format(validator.PayPeriodLayout),
		Status:     string(r.Status),
		Total:      r.Total,
		Processed:  r.Processed,
		Succeeded:  make([]PayrollLineResponse, 0, len(r.Succeeded)),
		Failed:     make([]LineFailureResponse, 0, len(r.Failed)),
		Skipped:    make([]LineSkipResponse, 0, len(r.Skipped)),
		Cancelled:  r.Cancelled,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, l := range r.Succeeded {
		resp.Succeeded = append(resp.Succeeded, ToLineResponse(l))
	}
	for _, f := range r.Failed {
		resp.Failed = append(resp.Failed, LineFailureResponse{EmploymentID: f.EmploymentID, AllocationID: f.AllocationID, Reason: f.Reason})
	}
	for _, s := range r.Skipped {
		resp.Skipped = append(resp.Skipped, LineSkipResponse{EmploymentID: s.EmploymentID, AllocationID: s.AllocationID, Reason: string(s.Reason)})
	}
	return resp
}
