package employment

import (
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/validator"
)

// ========== REQUEST DTOs ==========

type TerminationRequest struct {
	EndDate string `json:"end_date"`
}

func (r *TerminationRequest) Validate() error {
	var errs validator.ValidationErrors
	if validator.IsEmpty(r.EndDate) {
		errs = append(errs, validator.ValidationError{Field: "end_date", Message: "is required"})
	} else if _, ok := validator.IsValidDate(r.EndDate); !ok {
		errs = append(errs, validator.ValidationError{Field: "end_date", Message: "must be in YYYY-MM-DD format"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r *TerminationRequest) Date() time.Time {
	d, _ := validator.IsValidDate(r.EndDate)
	return d
}

type ProbationExtensionRequest struct {
	NewProbationEndDate string `json:"new_probation_end_date"`
}

func (r *ProbationExtensionRequest) Validate() error {
	var errs validator.ValidationErrors
	if validator.IsEmpty(r.NewProbationEndDate) {
		errs = append(errs, validator.ValidationError{Field: "new_probation_end_date", Message: "is required"})
	} else if _, ok := validator.IsValidDate(r.NewProbationEndDate); !ok {
		errs = append(errs, validator.ValidationError{Field: "new_probation_end_date", Message: "must be in YYYY-MM-DD format"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r *ProbationExtensionRequest) Date() time.Time {
	d, _ := validator.IsValidDate(r.NewProbationEndDate)
	return d
}

type TransitionRunRequest struct {
	AsOf         string  `json:"as_of"`
	EmploymentID *string `json:"employment_id,omitempty"`
	DryRun       bool    `json:"dry_run"`
}

func (r *TransitionRunRequest) Validate() error {
	var errs validator.ValidationErrors
	if validator.IsEmpty(r.AsOf) {
		errs = append(errs, validator.ValidationError{Field: "as_of", Message: "is required"})
	} else if _, ok := validator.IsValidDate(r.AsOf); !ok {
		errs = append(errs, validator.ValidationError{Field: "as_of", Message: "must be in YYYY-MM-DD format"})
	}
	if r.EmploymentID != nil && validator.IsEmpty(*r.EmploymentID) {
		errs = append(errs, validator.ValidationError{Field: "employment_id", Message: "must not be empty"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r *TransitionRunRequest) Date() time.Time {
	d, _ := validator.IsValidDate(r.AsOf)
	return d
}

// ========== RESPONSE DTOs ==========

type EmploymentResponse struct {
	ID                  string  `json:"id"`
	EmployeeID          string  `json:"employee_id"`
	OrganizationID      string  `json:"organization_id"`
	StartDate           string  `json:"start_date"`
	EndDate             *string `json:"end_date,omitempty"`
	ProbationEndDate    *string `json:"probation_end_date,omitempty"`
	ProbationSalary     *string `json:"probation_salary,omitempty"`
	PassProbationSalary string  `json:"pass_probation_salary"`
	ProbationState      string  `json:"probation_state,omitempty"`
	Version             int64   `json:"version"`
}

func ToResponse(e Employment, state ProbationState) EmploymentResponse {
	resp := EmploymentResponse{
		ID:                  e.ID,
		EmployeeID:          e.EmployeeID,
		OrganizationID:      e.OrganizationID,
		StartDate:           e.StartDate.Format(validator.DateLayout),
		EndDate:             formatDate(e.EndDate),
		ProbationEndDate:    formatDate(e.ProbationEndDate),
		PassProbationSalary: e.PassProbationSalary.String(),
		ProbationState:      string(state),
		Version:             e.Version,
	}
	if e.ProbationSalary != nil {
		s := e.ProbationSalary.String()
		resp.ProbationSalary = &s
	}
	return resp
}

type TerminationResponse struct {
	Employment       EmploymentResponse `json:"employment"`
	EarlyTermination bool               `json:"early_termination"`
	ClosedWindows    int                `json:"closed_windows"`
}

type SkippedTransitionResponse struct {
	EmploymentID string `json:"employment_id"`
	Reason       string `json:"reason"`
}

type TransitionReportResponse struct {
	AsOf    string                      `json:"as_of"`
	DryRun  bool                        `json:"dry_run"`
	Passed  []string                    `json:"passed"`
	Failed  []string                    `json:"failed"`
	Skipped []SkippedTransitionResponse `json:"skipped"`
	Errors  map[string]string           `json:"errors"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(validator.DateLayout)
	return &s
}
