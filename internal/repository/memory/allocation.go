package memory

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
)

type AllocationRepository struct{ *Store }

func (s *Store) Allocations() AllocationRepository { return AllocationRepository{s} }

func (r AllocationRepository) ListByEmployment(ctx context.Context, employmentID string) ([]allocation.FundingAllocation, error) {
	return r.filter(func(a allocation.FundingAllocation) bool {
		return a.EmploymentID == employmentID
	}), nil
}

func (r AllocationRepository) ListActiveByEmployment(ctx context.Context, employmentID string) ([]allocation.FundingAllocation, error) {
	return r.filter(func(a allocation.FundingAllocation) bool {
		return a.EmploymentID == employmentID && a.Status == allocation.StatusActive
	}), nil
}

func (r AllocationRepository) ListValidOn(ctx context.Context, employmentID string, date time.Time) ([]allocation.FundingAllocation, error) {
	return r.filter(func(a allocation.FundingAllocation) bool {
		return a.EmploymentID == employmentID && a.ValidOn(date)
	}), nil
}

func (r AllocationRepository) CountActiveBySource(ctx context.Context, source fundingsource.Source, excludeEmploymentID string, asOf time.Time) (int, error) {
	holders := make(map[string]struct{})
	for _, a := range r.filter(func(a allocation.FundingAllocation) bool {
		return a.Source == source && a.Status == allocation.StatusActive && a.EmploymentID != excludeEmploymentID &&
			(a.EndDate == nil || !a.EndDate.Before(asOf))
	}) {
		holders[a.EmploymentID] = struct{}{}
	}
	return len(holders), nil
}

func (r AllocationRepository) Create(ctx context.Context, a allocation.FundingAllocation) (allocation.FundingAllocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fault(OpAllocationCreate, a.EmploymentID); err != nil {
		return allocation.FundingAllocation{}, err
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	r.allocations[a.ID] = a
	r.allocOrder = append(r.allocOrder, a.ID)

	id := a.ID
	r.record(ctx, func() {
		delete(r.allocations, id)
		for i, v := range r.allocOrder {
			if v == id {
				r.allocOrder = append(r.allocOrder[:i:i], r.allocOrder[i+1:]...)
				break
			}
		}
	})
	return a, nil
}

func (r AllocationRepository) UpdateStatus(ctx context.Context, id string, status allocation.Status, endDate time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.allocations[id]
	if !ok {
		return allocation.ErrAllocationNotFound
	}
	if err := r.fault(OpAllocationUpdateStatus, prev.EmploymentID); err != nil {
		return err
	}
	next := prev
	next.Status = status
	next.EndDate = &endDate
	next.UpdatedAt = time.Now()
	r.allocations[id] = next
	r.record(ctx, func() { r.allocations[id] = prev })
	return nil
}

func (r AllocationRepository) CloseWindow(ctx context.Context, id string, endDate time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.allocations[id]
	if !ok {
		return allocation.ErrAllocationNotFound
	}
	next := prev
	next.EndDate = &endDate
	next.UpdatedAt = time.Now()
	r.allocations[id] = next
	r.record(ctx, func() { r.allocations[id] = prev })
	return nil
}

func (r AllocationRepository) filter(keep func(allocation.FundingAllocation) bool) []allocation.FundingAllocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []allocation.FundingAllocation
	for _, id := range r.allocOrder {
		if a := r.allocations[id]; keep(a) {
			out = append(out, a)
		}
	}
	return out
}
