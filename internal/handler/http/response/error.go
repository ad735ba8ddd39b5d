package response

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/payroll"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/lock"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	// Structured allocation errors carry their detail to the client
	var imbalance *allocation.AllocationImbalanceError
	if errors.As(err, &imbalance) {
		UnprocessableEntity(w, "ALLOCATION_IMBALANCE", imbalance.Error(), map[string]string{
			"sum":       imbalance.Sum.String(),
			"required":  imbalance.Required.String(),
			"tolerance": imbalance.Tolerance.String(),
		})
		return
	}
	var capacity *allocation.CapacityExceededError
	if errors.As(err, &capacity) {
		UnprocessableEntity(w, "CAPACITY_EXCEEDED", capacity.Error(), map[string]string{
			"funding_source": capacity.Source.String(),
			"capacity":       strconv.Itoa(capacity.Capacity),
			"in_use":         strconv.Itoa(capacity.InUse),
			"requested":      strconv.Itoa(capacity.Requested),
		})
		return
	}

	switch {
	// Allocation domain errors
	case errors.Is(err, allocation.ErrAllocationNotFound):
		NotFound(w, "Funding allocation not found")
	case errors.Is(err, allocation.ErrEmptyAllocationSet),
		errors.Is(err, allocation.ErrInvalidFTE),
		errors.Is(err, allocation.ErrDuplicateSource),
		errors.Is(err, allocation.ErrEffectiveDate),
		errors.Is(err, allocation.ErrEmploymentEnded):
		BadRequest(w, err.Error(), nil)
	case errors.Is(err, allocation.ErrActiveSetExists):
		Conflict(w, err.Error())
	case errors.Is(err, allocation.ErrNoActiveAllocations):
		UnprocessableEntity(w, "NO_ACTIVE_ALLOCATIONS", err.Error(), nil)

	// Funding source errors
	case errors.Is(err, fundingsource.ErrFundingSourceNotFound):
		NotFound(w, "Funding source not found")
	case errors.Is(err, fundingsource.ErrInvalidSourceKind),
		errors.Is(err, fundingsource.ErrMissingSourceID):
		BadRequest(w, err.Error(), nil)

	// Employment and probation errors
	case errors.Is(err, employment.ErrEmploymentNotFound):
		NotFound(w, "Employment not found")
	case errors.Is(err, employment.ErrTransitionConflict),
		errors.Is(err, employment.ErrVersionConflict),
		errors.Is(err, employment.ErrAlreadyTerminated):
		Conflict(w, err.Error())
	case errors.Is(err, employment.ErrNoProbation),
		errors.Is(err, employment.ErrProbationNotExtendable),
		errors.Is(err, employment.ErrProbationAlreadyOver),
		errors.Is(err, employment.ErrInvalidEndDate),
		errors.Is(err, employment.ErrProbationNotEnded),
		errors.Is(err, employment.ErrNotEarlyTermination):
		UnprocessableEntity(w, "PROBATION_RULE", err.Error(), nil)

	// Reference configuration errors
	case errors.Is(err, settings.ErrNoBracketsConfigured),
		errors.Is(err, settings.ErrNoActiveSetting),
		errors.Is(err, settings.ErrInvalidBrackets),
		errors.Is(err, settings.ErrDuplicateActiveSetting):
		UnprocessableEntity(w, "CONFIGURATION_ERROR", err.Error(), nil)

	// Payroll errors
	case errors.Is(err, payroll.ErrPayrollLineNotFound):
		NotFound(w, "Payroll line not found")
	case errors.Is(err, payroll.ErrBatchNotFound):
		NotFound(w, "Payroll batch not found")
	case errors.Is(err, payroll.ErrInvalidPeriod):
		BadRequest(w, err.Error(), nil)
	case errors.Is(err, payroll.ErrPayrollLineExists),
		errors.Is(err, payroll.ErrLineAlreadyReversed),
		errors.Is(err, payroll.ErrCannotReverse),
		errors.Is(err, payroll.ErrBatchFinished),
		errors.Is(err, payroll.ErrBatchExists):
		Conflict(w, err.Error())

	// Concurrency
	case errors.Is(err, lock.ErrLockHeld):
		Locked(w, "Employment is being updated by another process, retry shortly")

	// Default
	default:
		slog.Error("unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}
