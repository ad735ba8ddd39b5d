package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

// EmploymentService is the employment workflow behind the handler
type EmploymentService interface {
	Get(ctx context.Context, employmentID string) (employment.EmploymentResponse, error)
	ValidateAllocations(ctx context.Context, employmentID string, req allocation.AllocationSetRequest) error
	CreateAllocations(ctx context.Context, employmentID string, req allocation.AllocationSetRequest) ([]allocation.AllocationResponse, error)
	ReplaceAllocations(ctx context.Context, employmentID string, req allocation.AllocationSetRequest) ([]allocation.AllocationResponse, error)
	ListAllocations(ctx context.Context, employmentID string) ([]allocation.AllocationResponse, error)
	SalaryForDate(ctx context.Context, employmentID, date string) (allocation.SalaryResponse, error)
	RecordTermination(ctx context.Context, employmentID string, req employment.TerminationRequest) (employment.TerminationResponse, error)
	ExtendProbation(ctx context.Context, employmentID string, req employment.ProbationExtensionRequest) (employment.EmploymentResponse, error)
}

type EmploymentHandler interface {
	Get(w http.ResponseWriter, r *http.Request)

	// Allocations
	ValidateAllocations(w http.ResponseWriter, r *http.Request)
	CreateAllocations(w http.ResponseWriter, r *http.Request)
	ReplaceAllocations(w http.ResponseWriter, r *http.Request)
	ListAllocations(w http.ResponseWriter, r *http.Request)
	GetSalary(w http.ResponseWriter, r *http.Request)

	// Lifecycle
	RecordTermination(w http.ResponseWriter, r *http.Request)
	ExtendProbation(w http.ResponseWriter, r *http.Request)
}

type employmentHandlerImpl struct {
	employmentService EmploymentService
}

func NewEmploymentHandler(employmentService EmploymentService) EmploymentHandler {
	return &employmentHandlerImpl{employmentService: employmentService}
}

func (h *employmentHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.employmentService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// ========== ALLOCATIONS ==========

func (h *employmentHandlerImpl) ValidateAllocations(w http.ResponseWriter, r *http.Request) {
	var req allocation.AllocationSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	if err := h.employmentService.ValidateAllocations(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Allocation set is valid", nil)
}

func (h *employmentHandlerImpl) CreateAllocations(w http.ResponseWriter, r *http.Request) {
	var req allocation.AllocationSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.employmentService.CreateAllocations(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Funding allocations created", result)
}

func (h *employmentHandlerImpl) ReplaceAllocations(w http.ResponseWriter, r *http.Request) {
	var req allocation.AllocationSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.employmentService.ReplaceAllocations(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Funding allocations replaced", result)
}

func (h *employmentHandlerImpl) ListAllocations(w http.ResponseWriter, r *http.Request) {
	result, err := h.employmentService.ListAllocations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

func (h *employmentHandlerImpl) GetSalary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		response.BadRequest(w, "date query parameter is required", nil)
		return
	}

	result, err := h.employmentService.SalaryForDate(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// ========== LIFECYCLE ==========

func (h *employmentHandlerImpl) RecordTermination(w http.ResponseWriter, r *http.Request) {
	var req employment.TerminationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.employmentService.RecordTermination(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Termination recorded", result)
}

func (h *employmentHandlerImpl) ExtendProbation(w http.ResponseWriter, r *http.Request) {
	var req employment.ProbationExtensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	result, err := h.employmentService.ExtendProbation(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Probation extended", result)
}
