package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/handler/http/response"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/service/probation"
)

// TransitionRunner runs the probation pass on demand
type TransitionRunner interface {
	ProcessDailyTransitions(ctx context.Context, opts probation.RunOptions) (probation.DailyReport, error)
}

type ProbationHandler interface {
	RunTransitions(w http.ResponseWriter, r *http.Request)
}

type probationHandlerImpl struct {
	runner TransitionRunner
}

func NewProbationHandler(runner TransitionRunner) ProbationHandler {
	return &probationHandlerImpl{runner: runner}
}

// RunTransitions processes the transitions due on as_of, optionally for one
// employment and optionally without writing.
func (h *probationHandlerImpl) RunTransitions(w http.ResponseWriter, r *http.Request) {
	var req employment.TransitionRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	report, err := h.runner.ProcessDailyTransitions(r.Context(), probation.RunOptions{
		AsOf:         req.Date(),
		EmploymentID: req.EmploymentID,
		DryRun:       req.DryRun,
	})
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, report.Response())
}
