package probation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/events"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/messaging/kafka"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/database"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/lock"
	"golang.org/x/sync/errgroup"
)

const dateLayout = "2006-01-02"

// AllocationEngine is the part of the allocation engine transitions rely on.
type AllocationEngine interface {
	SupersedeActive(ctx context.Context, employmentID string, status allocation.Status, endDate time.Time) ([]allocation.FundingAllocation, error)
	CreateAllocations(ctx context.Context, emp employment.Employment, requests []allocation.Request, effectiveDate time.Time) ([]allocation.FundingAllocation, error)
}

// Outcome of one employment's transition
type Outcome string

const (
	OutcomePassed   Outcome = "passed"
	OutcomeFailed   Outcome = "failed"
	OutcomeExtended Outcome = "extended"
	OutcomeNoop     Outcome = "noop"
)

type Engine struct {
	tx          database.Transactor
	employments employment.Repository
	events      employment.ProbationEventRepository
	allocations AllocationEngine
	allocRepo   allocation.Repository
	outbox      kafka.OutboxRepository
	locker      lock.Locker
	workers     int
	now         func() time.Time
}

type Option func(*Engine)

// WithWorkers bounds how many employments a daily run processes at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(
	tx database.Transactor,
	employments employment.Repository,
	events employment.ProbationEventRepository,
	allocations AllocationEngine,
	allocRepo allocation.Repository,
	outbox kafka.OutboxRepository,
	locker lock.Locker,
	opts ...Option,
) *Engine {
	e := &Engine{
		tx:          tx,
		employments: employments,
		events:      events,
		allocations: allocations,
		allocRepo:   allocRepo,
		outbox:      outbox,
		locker:      locker,
		workers:     4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOptions - parameters of one daily or on-demand run
type RunOptions struct {
	AsOf         time.Time
	EmploymentID *string
	DryRun       bool
}

// SkippedTransition - a candidate left unchanged by a run
type SkippedTransition struct {
	EmploymentID string
	Reason       string
}

// DailyReport lists every candidate of a run under exactly one outcome.
type DailyReport struct {
	AsOf    time.Time
	DryRun  bool
	Passed  []string
	Failed  []string
	Skipped []SkippedTransition
	Errors  map[string]string
}

type candidateResult struct {
	employmentID string
	outcome      Outcome
	reason       string
	err          error
}

// ProcessDailyTransitions transitions every employment whose probation ends
// on opts.AsOf. One employment's failure is reported without stopping the
// others; re-running the same date is a no-op for employments already done.
func (e *Engine) ProcessDailyTransitions(ctx context.Context, opts RunOptions) (DailyReport, error) {
	asOf := dateOnly(opts.AsOf)
	report := DailyReport{AsOf: asOf, DryRun: opts.DryRun, Errors: make(map[string]string)}

	candidates, err := e.candidates(ctx, asOf, opts.EmploymentID)
	if err != nil {
		return report, err
	}

	results := make([]candidateResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, emp := range candidates {
		i, emp := i, emp
		g.Go(func() error {
			res := candidateResult{employmentID: emp.ID}
			if err := gctx.Err(); err != nil {
				res.err = err
				results[i] = res
				return nil
			}

			if opts.DryRun {
				res.outcome, res.reason, res.err = e.preview(gctx, emp.ID, asOf)
			} else {
				res.outcome, res.err = e.TransitionToPassed(gctx, emp.ID, asOf)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		var conflict *employment.TransitionConflictError
		switch {
		case errors.As(res.err, &conflict):
			slog.Info("Probation transition already applied",
				"employment_id", res.employmentID,
				"as_of", asOf.Format(dateLayout),
				"state", conflict.Current,
			)
			report.Skipped = append(report.Skipped, SkippedTransition{EmploymentID: res.employmentID, Reason: conflict.Error()})
		case res.err != nil:
			slog.Error("Probation transition failed",
				"employment_id", res.employmentID,
				"as_of", asOf.Format(dateLayout),
				"error", res.err,
			)
			report.Errors[res.employmentID] = res.err.Error()
		case res.outcome == OutcomePassed:
			report.Passed = append(report.Passed, res.employmentID)
		case res.outcome == OutcomeFailed:
			report.Failed = append(report.Failed, res.employmentID)
		default:
			report.Skipped = append(report.Skipped, SkippedTransition{EmploymentID: res.employmentID, Reason: res.reason})
		}
	}

	slog.Info("Probation transitions processed",
		"as_of", asOf.Format(dateLayout),
		"dry_run", opts.DryRun,
		"candidates", len(candidates),
		"passed", len(report.Passed),
		"failed", len(report.Failed),
		"skipped", len(report.Skipped),
		"errors", len(report.Errors),
	)
	return report, nil
}

func (e *Engine) candidates(ctx context.Context, asOf time.Time, employmentID *string) ([]employment.Employment, error) {
	if employmentID == nil {
		list, err := e.employments.ListProbationEndingOn(ctx, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to list employments ending probation: %w", err)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		return list, nil
	}

	emp, err := e.employments.GetByID(ctx, *employmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get employment %s: %w", *employmentID, err)
	}
	if emp.ProbationEndDate == nil || !emp.ProbationEndDate.Equal(asOf) || endsOnOrBeforeProbation(emp) {
		return nil, nil
	}
	return []employment.Employment{emp}, nil
}

// preview decides what TransitionToPassed would do without writing.
func (e *Engine) preview(ctx context.Context, employmentID string, asOf time.Time) (Outcome, string, error) {
	emp, err := e.employments.GetByID(ctx, employmentID)
	if err != nil {
		return "", "", fmt.Errorf("failed to get employment: %w", err)
	}
	history, err := e.events.ListByEmployment(ctx, employmentID)
	if err != nil {
		return "", "", fmt.Errorf("failed to load probation events: %w", err)
	}
	if state := employment.CurrentState(history); state.IsFinal() {
		return "", "", &employment.TransitionConflictError{EmploymentID: employmentID, Attempted: employment.EventPassed, Current: state, AsOf: asOf}
	}
	if emp.ProbationEndDate == nil || asOf.Before(*emp.ProbationEndDate) {
		return OutcomeNoop, employment.ErrProbationNotEnded.Error(), nil
	}
	if endsOnOrBeforeProbation(emp) {
		return OutcomeFailed, "", nil
	}
	return OutcomePassed, "", nil
}

// TransitionToPassed supersedes the active allocations with a new set at the
// post-probation salary and records the passed event, all in one transaction.
// An employment ending on or before its probation end date is failed instead.
func (e *Engine) TransitionToPassed(ctx context.Context, employmentID string, asOf time.Time) (Outcome, error) {
	asOf = dateOnly(asOf)
	ctx, release, err := lock.Hold(ctx, e.locker, lock.EmploymentKey(employmentID))
	if err != nil {
		return "", err
	}
	defer release()

	var outcome Outcome
	err = e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		emp, err := e.employments.GetByID(ctx, employmentID)
		if err != nil {
			return fmt.Errorf("failed to get employment: %w", err)
		}
		if err := e.ensureOpen(ctx, emp, employment.EventPassed, asOf); err != nil {
			return err
		}
		if emp.ProbationEndDate == nil {
			return employment.ErrNoProbation
		}
		if asOf.Before(*emp.ProbationEndDate) {
			return employment.ErrProbationNotEnded
		}

		if endsOnOrBeforeProbation(emp) {
			outcome = OutcomeFailed
			return e.terminate(ctx, emp)
		}

		superseded, err := e.allocations.SupersedeActive(ctx, emp.ID, allocation.StatusHistorical, asOf.AddDate(0, 0, -1))
		if err != nil {
			return err
		}

		var opened []allocation.FundingAllocation
		if len(superseded) > 0 {
			opened, err = e.allocations.CreateAllocations(ctx, emp, allocation.RequestsFrom(superseded), asOf)
			if err != nil {
				return fmt.Errorf("failed to open post-probation allocations: %w", err)
			}
		} else {
			slog.Warn("Probation passed without active allocations", "employment_id", emp.ID, "as_of", asOf.Format(dateLayout))
		}

		ev := employment.NewEvent(emp.ID, employment.EventPassed, asOf, emp.ProbationEndDate, nil)
		if err := e.appendEvent(ctx, ev, len(superseded), len(opened)); err != nil {
			return err
		}
		outcome = OutcomePassed
		return nil
	})
	if err != nil {
		return "", err
	}

	slog.Info("Probation transition applied", "employment_id", employmentID, "as_of", asOf.Format(dateLayout), "outcome", outcome)
	return outcome, nil
}

// HandleEarlyTermination terminates the active allocations of an employment
// that ends on or before its probation end date and records the failure.
func (e *Engine) HandleEarlyTermination(ctx context.Context, employmentID string) error {
	ctx, release, err := lock.Hold(ctx, e.locker, lock.EmploymentKey(employmentID))
	if err != nil {
		return err
	}
	defer release()

	return e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		emp, err := e.employments.GetByID(ctx, employmentID)
		if err != nil {
			return fmt.Errorf("failed to get employment: %w", err)
		}
		if !endsOnOrBeforeProbation(emp) {
			return employment.ErrNotEarlyTermination
		}
		if err := e.ensureOpen(ctx, emp, employment.EventFailed, *emp.EndDate); err != nil {
			return err
		}
		return e.terminate(ctx, emp)
	})
}

func (e *Engine) terminate(ctx context.Context, emp employment.Employment) error {
	terminated, err := e.allocations.SupersedeActive(ctx, emp.ID, allocation.StatusTerminated, *emp.EndDate)
	if err != nil {
		return err
	}

	ev := employment.NewEvent(emp.ID, employment.EventFailed, *emp.EndDate, emp.ProbationEndDate, nil)
	if err := e.appendEvent(ctx, ev, len(terminated), 0); err != nil {
		return err
	}

	slog.Info("Probation failed by early termination",
		"employment_id", emp.ID,
		"end_date", emp.EndDate.Format(dateLayout),
		"allocations_terminated", len(terminated),
	)
	return nil
}

// HandleProbationExtension moves the probation end date later. Active
// allocations are left untouched so the probation salary keeps applying.
func (e *Engine) HandleProbationExtension(ctx context.Context, employmentID string, newProbationEndDate time.Time) (employment.Employment, error) {
	newProbationEndDate = dateOnly(newProbationEndDate)
	today := dateOnly(e.now())

	ctx, release, err := lock.Hold(ctx, e.locker, lock.EmploymentKey(employmentID))
	if err != nil {
		return employment.Employment{}, err
	}
	defer release()

	var updated employment.Employment
	err = e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		emp, err := e.employments.GetByID(ctx, employmentID)
		if err != nil {
			return fmt.Errorf("failed to get employment: %w", err)
		}
		if emp.ProbationEndDate == nil {
			return employment.ErrNoProbation
		}
		if err := e.ensureOpen(ctx, emp, employment.EventExtended, today); err != nil {
			return err
		}
		if today.After(*emp.ProbationEndDate) {
			return employment.ErrProbationAlreadyOver
		}
		if !newProbationEndDate.After(*emp.ProbationEndDate) {
			return employment.ErrProbationNotExtendable
		}
		if emp.EndDate != nil && !emp.EndDate.After(newProbationEndDate) {
			return employment.ErrAlreadyTerminated
		}

		previous := *emp.ProbationEndDate
		updated, err = e.employments.SetProbationEndDate(ctx, emp.ID, newProbationEndDate, emp.Version)
		if err != nil {
			return fmt.Errorf("failed to update probation end date: %w", err)
		}

		ev := employment.NewEvent(emp.ID, employment.EventExtended, today, &previous, &newProbationEndDate)
		// Keyed on the new end date so distinct extensions on one day both count.
		ev.ID = employment.EventID(emp.ID, employment.EventExtended, newProbationEndDate)
		return e.appendEvent(ctx, ev, 0, 0)
	})
	if err != nil {
		return employment.Employment{}, err
	}

	slog.Info("Probation extended",
		"employment_id", employmentID,
		"new_probation_end_date", newProbationEndDate.Format(dateLayout),
	)
	return updated, nil
}

// TerminationResult - what RecordTermination did
type TerminationResult struct {
	Employment     employment.Employment
	EarlyTerminate bool
	ClosedWindows  int
}

// RecordTermination sets the employment end date. Ending on or before the
// probation end date fails probation; otherwise active allocations keep their
// status and have their validity window closed at endDate.
func (e *Engine) RecordTermination(ctx context.Context, employmentID string, endDate time.Time) (TerminationResult, error) {
	endDate = dateOnly(endDate)
	ctx, release, err := lock.Hold(ctx, e.locker, lock.EmploymentKey(employmentID))
	if err != nil {
		return TerminationResult{}, err
	}
	defer release()

	var result TerminationResult
	err = e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		emp, err := e.employments.GetByID(ctx, employmentID)
		if err != nil {
			return fmt.Errorf("failed to get employment: %w", err)
		}
		if emp.EndDate != nil {
			return employment.ErrAlreadyTerminated
		}
		if endDate.Before(emp.StartDate) {
			return employment.ErrInvalidEndDate
		}

		emp, err = e.employments.SetEndDate(ctx, emp.ID, endDate, emp.Version)
		if err != nil {
			return fmt.Errorf("failed to set end date: %w", err)
		}
		result.Employment = emp

		history, err := e.events.ListByEmployment(ctx, emp.ID)
		if err != nil {
			return fmt.Errorf("failed to load probation events: %w", err)
		}
		if endsOnOrBeforeProbation(emp) && !employment.CurrentState(history).IsFinal() {
			result.EarlyTerminate = true
			return e.terminate(ctx, emp)
		}

		active, err := e.allocRepo.ListActiveByEmployment(ctx, emp.ID)
		if err != nil {
			return fmt.Errorf("failed to load active allocations: %w", err)
		}
		for _, a := range active {
			if a.EndDate != nil && !a.EndDate.After(endDate) {
				continue
			}
			if err := e.allocRepo.CloseWindow(ctx, a.ID, endDate); err != nil {
				return fmt.Errorf("failed to close allocation %s: %w", a.ID, err)
			}
			result.ClosedWindows++
		}
		return nil
	})
	if err != nil {
		return TerminationResult{}, err
	}

	slog.Info("Employment terminated",
		"employment_id", employmentID,
		"end_date", endDate.Format(dateLayout),
		"early_termination", result.EarlyTerminate,
	)
	return result, nil
}

// State derives the current probation state from the event log.
func (e *Engine) State(ctx context.Context, employmentID string) (employment.ProbationState, error) {
	history, err := e.events.ListByEmployment(ctx, employmentID)
	if err != nil {
		return "", fmt.Errorf("failed to load probation events: %w", err)
	}
	return employment.CurrentState(history), nil
}

func (e *Engine) ensureOpen(ctx context.Context, emp employment.Employment, attempted employment.EventType, asOf time.Time) error {
	history, err := e.events.ListByEmployment(ctx, emp.ID)
	if err != nil {
		return fmt.Errorf("failed to load probation events: %w", err)
	}
	if state := employment.CurrentState(history); state.IsFinal() {
		return &employment.TransitionConflictError{EmploymentID: emp.ID, Attempted: attempted, Current: state, AsOf: asOf}
	}
	return nil
}

func (e *Engine) appendEvent(ctx context.Context, ev employment.ProbationEvent, closed, opened int) error {
	inserted, err := e.events.Append(ctx, ev)
	if err != nil {
		return fmt.Errorf("failed to append probation event: %w", err)
	}
	if !inserted {
		return &employment.TransitionConflictError{
			EmploymentID: ev.EmploymentID,
			Attempted:    ev.Type,
			Current:      stateOf(ev.Type),
			AsOf:         ev.EventDate,
		}
	}

	payload := events.ProbationTransitionedEvent{
		EventType:         events.ProbationTransitionedEventType,
		EmploymentID:      ev.EmploymentID,
		Transition:        string(ev.Type),
		EffectiveDate:     ev.EventDate.Format(dateLayout),
		PreviousEndDate:   formatDate(ev.PreviousEndDate),
		NewEndDate:        formatDate(ev.NewEndDate),
		AllocationsClosed: closed,
		AllocationsOpened: opened,
		OccurredAt:        e.now(),
	}
	out, err := kafka.NewEvent(events.ProbationTransitionTopic, events.ProbationTransitionedEventType, "employment", ev.EmploymentID, payload)
	if err != nil {
		return err
	}
	if err := e.outbox.Create(ctx, out); err != nil {
		return fmt.Errorf("failed to enqueue probation event: %w", err)
	}
	return nil
}

func endsOnOrBeforeProbation(emp employment.Employment) bool {
	return emp.EndDate != nil && emp.ProbationEndDate != nil && !emp.EndDate.After(*emp.ProbationEndDate)
}

func stateOf(t employment.EventType) employment.ProbationState {
	switch t {
	case employment.EventPassed:
		return employment.ProbationPassed
	case employment.EventFailed:
		return employment.ProbationFailed
	case employment.EventExtended:
		return employment.ProbationExtended
	default:
		return employment.ProbationOngoing
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Response converts the report for the HTTP layer and the CLI.
func (r DailyReport) Response() employment.TransitionReportResponse {
	resp := employment.TransitionReportResponse{
		AsOf:    r.AsOf.Format(dateLayout),
		DryRun:  r.DryRun,
		Passed:  append([]string{}, r.Passed...),
		Failed:  append([]string{}, r.Failed...),
		Skipped: make([]employment.SkippedTransitionResponse, 0, len(r.Skipped)),
		Errors:  r.Errors,
	}
	for _, s := range r.Skipped {
		resp.Skipped = append(resp.Skipped, employment.SkippedTransitionResponse{EmploymentID: s.EmploymentID, Reason: s.Reason})
	}
	return resp
}
