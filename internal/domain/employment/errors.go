package employment

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmploymentNotFound     = errors.New("employment not found")
	ErrVersionConflict        = errors.New("employment was modified concurrently")
	ErrNoProbation            = errors.New("employment has no probation period")
	ErrProbationNotExtendable = errors.New("new probation end date must be later than the current one")
	ErrProbationAlreadyOver   = errors.New("probation period has already ended")
	ErrInvalidEndDate         = errors.New("end date must not be before start date")
	ErrAlreadyTerminated      = errors.New("employment already has an end date")
	ErrTransitionConflict     = errors.New("probation transition already applied")
	ErrProbationNotEnded      = errors.New("probation end date has not been reached")
	ErrNotEarlyTermination    = errors.New("employment does not end on or before its probation end date")
)

// TransitionConflictError reports a transition attempted on an employment whose
// probation history already reflects a final state.
type TransitionConflictError struct {
	EmploymentID string
	Attempted    EventType
	Current      ProbationState
	AsOf         time.Time
}

func (e *TransitionConflictError) Error() string {
	return fmt.Sprintf("employment %s: cannot apply %s on %s, probation already %s",
		e.EmploymentID, e.Attempted, e.AsOf.Format("2006-01-02"), e.Current)
}

func (e *TransitionConflictError) Is(target error) bool {
	return target == ErrTransitionConflict
}
