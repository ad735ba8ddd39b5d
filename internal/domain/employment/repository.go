package employment

import (
	"context"
	"time"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (Employment, error)
	ListByIDs(ctx context.Context, ids []string) ([]Employment, error)
	// ListProbationEndingOn returns employments without an end date whose
	// probation ends on date.
	ListProbationEndingOn(ctx context.Context, date time.Time) ([]Employment, error)
	// ListActiveInPeriod returns active employments overlapping [start, end],
	// for payroll runs without an explicit employment list.
	ListActiveInPeriod(ctx context.Context, start, end time.Time) ([]Employment, error)
	Create(ctx context.Context, e Employment) (Employment, error)

	// The setters compare-and-swap on version and return ErrVersionConflict on mismatch.
	SetEndDate(ctx context.Context, id string, endDate time.Time, version int64) (Employment, error)
	SetProbationEndDate(ctx context.Context, id string, probationEndDate time.Time, version int64) (Employment, error)
}

type ProbationEventRepository interface {
	// Append inserts ev unless an event with the same id exists; inserted
	// reports which happened.
	Append(ctx context.Context, ev ProbationEvent) (inserted bool, err error)
	ListByEmployment(ctx context.Context, employmentID string) ([]ProbationEvent, error)
}
