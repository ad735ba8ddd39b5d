package allocation

import (
	"strconv"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// ========== REQUEST DTOs ==========

type AllocationInput struct {
	SourceType string          `json:"source_type"` // "grant_item" or "org_funded"
	SourceID   string          `json:"source_id"`
	FTE        decimal.Decimal `json:"fte"`
}

type AllocationSetRequest struct {
	EffectiveDate string            `json:"effective_date"`
	Allocations   []AllocationInput `json:"allocations"`
}

func (r *AllocationSetRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EffectiveDate) {
		errs = append(errs, validator.ValidationError{Field: "effective_date", Message: "is required"})
	} else if _, ok := validator.IsValidDate(r.EffectiveDate); !ok {
		errs = append(errs, validator.ValidationError{Field: "effective_date", Message: "must be in YYYY-MM-DD format"})
	}
	if len(r.Allocations) == 0 {
		errs = append(errs, validator.ValidationError{Field: "allocations", Message: "must contain at least one allocation"})
	}

	for i, a := range r.Allocations {
		prefix := "allocations[" + strconv.Itoa(i) + "]."
		if !fundingsource.Kind(a.SourceType).IsValid() {
			errs = append(errs, validator.ValidationError{Field: prefix + "source_type", Message: "must be 'grant_item' or 'org_funded'"})
		}
		if validator.IsEmpty(a.SourceID) {
			errs = append(errs, validator.ValidationError{Field: prefix + "source_id", Message: "is required"})
		}
		if !validator.IsInRange(a.FTE, decimal.Zero, FullTime) {
			errs = append(errs, validator.ValidationError{Field: prefix + "fte", Message: "must be greater than 0 and at most 100"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ToRequests converts a validated request into engine input.
func (r *AllocationSetRequest) ToRequests() ([]Request, time.Time, error) {
	effective, _ := validator.IsValidDate(r.EffectiveDate)
	out := make([]Request, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		src, err := fundingsource.New(fundingsource.Kind(a.SourceType), a.SourceID)
		if err != nil {
			return nil, time.Time{}, err
		}
		out = append(out, Request{Source: src, FTE: a.FTE})
	}
	return out, effective, nil
}

// ========== RESPONSE DTOs ==========

type AllocationResponse struct {
	ID              string  `json:"id"`
	EmploymentID    string  `json:"employment_id"`
	SourceType      string  `json:"source_type"`
	SourceID        string  `json:"source_id"`
	FTE             string  `json:"fte"`
	AllocatedAmount string  `json:"allocated_amount"`
	SalaryType      string  `json:"salary_type"`
	Status          string  `json:"status"`
	StartDate       string  `json:"start_date"`
	EndDate         *string `json:"end_date,omitempty"`
}

func ToResponse(a FundingAllocation) AllocationResponse {
	resp := AllocationResponse{
		ID:              a.ID,
		EmploymentID:    a.EmploymentID,
		SourceType:      string(a.Source.Kind()),
		SourceID:        a.Source.ID(),
		FTE:             a.FTE.String(),
		AllocatedAmount: a.AllocatedAmount.String(),
		SalaryType:      string(a.SalaryType),
		Status:          string(a.Status),
		StartDate:       a.StartDate.Format(validator.DateLayout),
	}
	if a.EndDate != nil {
		end := a.EndDate.Format(validator.DateLayout)
		resp.EndDate = &end
	}
	return resp
}

func ToResponses(allocations []FundingAllocation) []AllocationResponse {
	out := make([]AllocationResponse, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, ToResponse(a))
	}
	return out
}

type SalaryResponse struct {
	Date       string `json:"date"`
	Amount     string `json:"amount"`
	SalaryType string `json:"salary_type"`
}
