package memory

import (
	"context"
	"sort"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
)

type EmploymentRepository struct{ *Store }

func (s *Store) Employments() EmploymentRepository { return EmploymentRepository{s} }

func (r EmploymentRepository) GetByID(ctx context.Context, id string) (employment.Employment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fault(OpEmploymentGet, id); err != nil {
		return employment.Employment{}, err
	}
	e, ok := r.employments[id]
	if !ok {
		return employment.Employment{}, employment.ErrEmploymentNotFound
	}
	return e, nil
}

func (r EmploymentRepository) ListByIDs(ctx context.Context, ids []string) ([]employment.Employment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]employment.Employment, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.employments[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r EmploymentRepository) ListProbationEndingOn(ctx context.Context, date time.Time) ([]employment.Employment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []employment.Employment
	for _, e := range r.employments {
		if e.ProbationEndDate != nil && e.ProbationEndDate.Equal(date) && !endsOnOrBeforeProbation(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r EmploymentRepository) ListActiveInPeriod(ctx context.Context, start, end time.Time) ([]employment.Employment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []employment.Employment
	for _, e := range r.employments {
		if !e.IsActive || e.StartDate.After(end) {
			continue
		}
		if e.EndDate != nil && e.EndDate.Before(start) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r EmploymentRepository) Create(ctx context.Context, e employment.Employment) (employment.Employment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Version == 0 {
		e.Version = 1
	}
	r.employments[e.ID] = e
	id := e.ID
	r.record(ctx, func() { delete(r.employments, id) })
	return e, nil
}

func (r EmploymentRepository) SetEndDate(ctx context.Context, id string, endDate time.Time, version int64) (employment.Employment, error) {
	return r.update(ctx, id, version, func(e *employment.Employment) { e.EndDate = &endDate })
}

func (r EmploymentRepository) SetProbationEndDate(ctx context.Context, id string, probationEndDate time.Time, version int64) (employment.Employment, error) {
	return r.update(ctx, id, version, func(e *employment.Employment) { e.ProbationEndDate = &probationEndDate })
}

func (r EmploymentRepository) update(ctx context.Context, id string, version int64, apply func(*employment.Employment)) (employment.Employment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.employments[id]
	if !ok {
		return employment.Employment{}, employment.ErrEmploymentNotFound
	}
	if prev.Version != version {
		return employment.Employment{}, employment.ErrVersionConflict
	}
	next := prev
	apply(&next)
	next.Version++
	next.UpdatedAt = time.Now()
	r.employments[id] = next
	r.record(ctx, func() { r.employments[id] = prev })
	return next, nil
}

type ProbationEventRepository struct{ *Store }

func (s *Store) ProbationEvents() ProbationEventRepository { return ProbationEventRepository{s} }

func (r ProbationEventRepository) Append(ctx context.Context, ev employment.ProbationEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fault(OpEventAppend, ev.EmploymentID); err != nil {
		return false, err
	}
	if _, exists := r.eventIDs[ev.ID]; exists {
		return false, nil
	}
	ev.CreatedAt = time.Now()
	r.eventIDs[ev.ID] = struct{}{}
	r.events[ev.EmploymentID] = append(r.events[ev.EmploymentID], ev)

	empID, evID := ev.EmploymentID, ev.ID
	r.record(ctx, func() {
		delete(r.eventIDs, evID)
		list := r.events[empID]
		for i := range list {
			if list[i].ID == evID {
				r.events[empID] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	})
	return true, nil
}

func (r ProbationEventRepository) ListByEmployment(ctx context.Context, employmentID string) ([]employment.ProbationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]employment.ProbationEvent, len(r.events[employmentID]))
	copy(out, r.events[employmentID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].EventDate.Before(out[j].EventDate) })
	return out, nil
}

func endsOnOrBeforeProbation(e employment.Employment) bool {
	return e.EndDate != nil && e.ProbationEndDate != nil && !e.EndDate.After(*e.ProbationEndDate)
}
