package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/payroll"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/handler/http/response"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/validator"
	payrollservice "github.com/cmlabs-hris/hrms-payroll-core/internal/service/payroll"
	"github.com/go-chi/chi/v5"
)

// PayrollGenerator starts, tracks and corrects payroll batches
type PayrollGenerator interface {
	GenerateForPeriod(ctx context.Context, period time.Time, employmentIDs []string, opts payrollservice.RunOptions) (payroll.BatchResult, error)
	StartBatch(ctx context.Context, period time.Time, employmentIDs []string, opts payrollservice.RunOptions) (*payrollservice.Batch, error)
	ReverseLine(ctx context.Context, lineID string) (payroll.PayrollLine, error)
	Registry() *payrollservice.BatchRegistry
}

type PayrollHandler interface {
	// Batches
	CreateBatch(w http.ResponseWriter, r *http.Request)
	GetBatch(w http.ResponseWriter, r *http.Request)
	CancelBatch(w http.ResponseWriter, r *http.Request)

	// Lines
	ReverseLine(w http.ResponseWriter, r *http.Request)
}

type payrollHandlerImpl struct {
	generator PayrollGenerator
}

func NewPayrollHandler(generator PayrollGenerator) PayrollHandler {
	return &payrollHandlerImpl{generator: generator}
}

// ========== BATCHES ==========

// CreateBatch starts a batch in the background and answers 202 with its id.
// With ?wait=true the batch runs inline and the final result is returned.
func (h *payrollHandlerImpl) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req payroll.GenerateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	opts := payrollservice.RunOptions{Bonuses: req.BonusAmounts()}

	if r.URL.Query().Get("wait") == "true" {
		result, err := h.generator.GenerateForPeriod(r.Context(), req.Period(), req.EmploymentIDs, opts)
		if err != nil {
			response.HandleError(w, err)
			return
		}
		response.Created(w, "Payroll batch completed", payroll.ToBatchResponse(result))
		return
	}

	batch, err := h.generator.StartBatch(r.Context(), req.Period(), req.EmploymentIDs, opts)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Accepted(w, "Payroll batch started", payroll.ToBatchResponse(batch.Snapshot()))
}

func (h *payrollHandlerImpl) GetBatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.generator.Registry().Progress(chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, payroll.ToBatchResponse(result))
}

func (h *payrollHandlerImpl) CancelBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.generator.Registry().Cancel(id); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.generator.Registry().Progress(id)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Payroll batch cancellation requested", payroll.ToBatchResponse(result))
}

// ========== LINES ==========

func (h *payrollHandlerImpl) ReverseLine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validator.IsValidUUID(id) {
		response.BadRequest(w, "Invalid payroll line id", nil)
		return
	}

	reversal, err := h.generator.ReverseLine(r.Context(), id)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Payroll line reversed", payroll.ToLineResponse(reversal))
}
