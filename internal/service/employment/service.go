package employment

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/validator"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/service/probation"
)

// ProbationEngine is the part of the probation engine employment workflows use.
type ProbationEngine interface {
	HandleProbationExtension(ctx context.Context, employmentID string, newProbationEndDate time.Time) (employment.Employment, error)
	RecordTermination(ctx context.Context, employmentID string, endDate time.Time) (probation.TerminationResult, error)
	State(ctx context.Context, employmentID string) (employment.ProbationState, error)
}

// Service loads employments by id and delegates to the allocation and
// probation engines.
type Service struct {
	employments employment.Repository
	allocations allocation.Repository
	engine      allocation.Engine
	probation   ProbationEngine
}

func NewService(
	employments employment.Repository,
	allocations allocation.Repository,
	engine allocation.Engine,
	probation ProbationEngine,
) *Service {
	return &Service{
		employments: employments,
		allocations: allocations,
		engine:      engine,
		probation:   probation,
	}
}

func (s *Service) Get(ctx context.Context, employmentID string) (employment.EmploymentResponse, error) {
	emp, err := s.employments.GetByID(ctx, employmentID)
	if err != nil {
		return employment.EmploymentResponse{}, err
	}
	state, err := s.probation.State(ctx, emp.ID)
	if err != nil {
		return employment.EmploymentResponse{}, err
	}
	return employment.ToResponse(emp, state), nil
}

func (s *Service) ValidateAllocations(ctx context.Context, employmentID string, req allocation.AllocationSetRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	emp, requests, effective, err := s.load(ctx, employmentID, req)
	if err != nil {
		return err
	}
	return s.engine.ValidateAllocationSet(ctx, emp, requests, effective)
}

func (s *Service) CreateAllocations(ctx context.Context, employmentID string, req allocation.AllocationSetRequest) ([]allocation.AllocationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	emp, requests, effective, err := s.load(ctx, employmentID, req)
	if err != nil {
		return nil, err
	}
	created, err := s.engine.CreateAllocations(ctx, emp, requests, effective)
	if err != nil {
		return nil, err
	}
	return allocation.ToResponses(created), nil
}

func (s *Service) ReplaceAllocations(ctx context.Context, employmentID string, req allocation.AllocationSetRequest) ([]allocation.AllocationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	emp, requests, effective, err := s.load(ctx, employmentID, req)
	if err != nil {
		return nil, err
	}
	created, err := s.engine.ReplaceAllocations(ctx, emp, requests, effective)
	if err != nil {
		return nil, err
	}
	return allocation.ToResponses(created), nil
}

// ListAllocations returns the full allocation history, active and closed.
func (s *Service) ListAllocations(ctx context.Context, employmentID string) ([]allocation.AllocationResponse, error) {
	if _, err := s.employments.GetByID(ctx, employmentID); err != nil {
		return nil, err
	}
	rows, err := s.allocations.ListByEmployment(ctx, employmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	return allocation.ToResponses(rows), nil
}

func (s *Service) SalaryForDate(ctx context.Context, employmentID, date string) (allocation.SalaryResponse, error) {
	d, ok := validator.IsValidDate(date)
	if !ok {
		return allocation.SalaryResponse{}, validator.ValidationErrors{{Field: "date", Message: "must be in YYYY-MM-DD format"}}
	}
	emp, err := s.employments.GetByID(ctx, employmentID)
	if err != nil {
		return allocation.SalaryResponse{}, err
	}
	amount, salaryType := s.engine.ResolveSalaryForDate(emp, d)
	return allocation.SalaryResponse{
		Date:       d.Format(validator.DateLayout),
		Amount:     amount.String(),
		SalaryType: string(salaryType),
	}, nil
}

func (s *Service) RecordTermination(ctx context.Context, employmentID string, req employment.TerminationRequest) (employment.TerminationResponse, error) {
	if err := req.Validate(); err != nil {
		return employment.TerminationResponse{}, err
	}
	result, err := s.probation.RecordTermination(ctx, employmentID, req.Date())
	if err != nil {
		return employment.TerminationResponse{}, err
	}
	state, err := s.probation.State(ctx, employmentID)
	if err != nil {
		return employment.TerminationResponse{}, err
	}
	return employment.TerminationResponse{
		Employment:       employment.ToResponse(result.Employment, state),
		EarlyTermination: result.EarlyTerminate,
		ClosedWindows:    result.ClosedWindows,
	}, nil
}

func (s *Service) ExtendProbation(ctx context.Context, employmentID string, req employment.ProbationExtensionRequest) (employment.EmploymentResponse, error) {
	if err := req.Validate(); err != nil {
		return employment.EmploymentResponse{}, err
	}
	emp, err := s.probation.HandleProbationExtension(ctx, employmentID, req.Date())
	if err != nil {
		return employment.EmploymentResponse{}, err
	}
	return employment.ToResponse(emp, employment.ProbationExtended), nil
}

func (s *Service) load(ctx context.Context, employmentID string, req allocation.AllocationSetRequest) (employment.Employment, []allocation.Request, time.Time, error) {
	emp, err := s.employments.GetByID(ctx, employmentID)
	if err != nil {
		return employment.Employment{}, nil, time.Time{}, err
	}
	requests, effective, err := req.ToRequests()
	if err != nil {
		return employment.Employment{}, nil, time.Time{}, err
	}
	return emp, requests, effective, nil
}
