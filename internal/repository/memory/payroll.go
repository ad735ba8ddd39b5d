package memory

import (
	"context"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/payroll"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/messaging/kafka"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
)

type PayrollRepository struct{ *Store }

func (s *Store) Payroll() PayrollRepository { return PayrollRepository{s} }

func (r PayrollRepository) ExistsForAllocationPeriod(ctx context.Context, allocationID string, period time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.postedLineExists(allocationID, period), nil
}

func (r PayrollRepository) postedLineExists(allocationID string, period time.Time) bool {
	for _, l := range r.lines {
		if l.AllocationID == allocationID && l.PayPeriod.Equal(period) && l.Status == payroll.LineStatusPosted {
			return true
		}
	}
	return false
}

func (r PayrollRepository) CreateLines(ctx context.Context, lines []payroll.PayrollLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range lines {
		if err := r.fault(OpPayrollCreateLines, l.EmploymentID); err != nil {
			return err
		}
		if l.Status == payroll.LineStatusPosted && r.postedLineExists(l.AllocationID, l.PayPeriod) {
			return payroll.ErrPayrollLineExists
		}
	}

	now := time.Now()
	for _, l := range lines {
		l.CreatedAt = now
		r.lines[l.ID] = l
		r.lineOrder = append(r.lineOrder, l.ID)
		id := l.ID
		r.record(ctx, func() {
			delete(r.lines, id)
			for i, v := range r.lineOrder {
				if v == id {
					r.lineOrder = append(r.lineOrder[:i:i], r.lineOrder[i+1:]...)
					break
				}
			}
		})
	}
	return nil
}

func (r PayrollRepository) GetByID(ctx context.Context, id string) (payroll.PayrollLine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lines[id]
	if !ok {
		return payroll.PayrollLine{}, payroll.ErrPayrollLineNotFound
	}
	return l, nil
}

func (r PayrollRepository) ListByBatch(ctx context.Context, batchID string) ([]payroll.PayrollLine, error) {
	return r.filter(func(l payroll.PayrollLine) bool { return l.BatchID == batchID }), nil
}

func (r PayrollRepository) ListByEmploymentPeriod(ctx context.Context, employmentID string, period time.Time) ([]payroll.PayrollLine, error) {
	return r.filter(func(l payroll.PayrollLine) bool {
		return l.EmploymentID == employmentID && l.PayPeriod.Equal(period)
	}), nil
}

func (r PayrollRepository) SumYearToDate(ctx context.Context, employmentID string, period time.Time) (payroll.YearToDate, error) {
	ytd := payroll.YearToDate{Gross: money.Zero(), Tax: money.Zero()}
	for _, l := range r.filter(func(l payroll.PayrollLine) bool {
		return l.EmploymentID == employmentID && l.PayPeriod.Year() == period.Year() && l.PayPeriod.Before(period)
	}) {
		ytd.Gross = ytd.Gross.Add(l.GrossByFTE)
		ytd.Tax = ytd.Tax.Add(l.Tax)
	}
	return ytd, nil
}

func (r PayrollRepository) MarkReversed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.lines[id]
	if !ok {
		return payroll.ErrPayrollLineNotFound
	}
	if prev.Status != payroll.LineStatusPosted {
		return payroll.ErrCannotReverse
	}
	next := prev
	next.Status = payroll.LineStatusReversed
	r.lines[id] = next
	r.record(ctx, func() { r.lines[id] = prev })
	return nil
}

func (r PayrollRepository) filter(keep func(payroll.PayrollLine) bool) []payroll.PayrollLine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []payroll.PayrollLine
	for _, id := range r.lineOrder {
		if l := r.lines[id]; keep(l) {
			out = append(out, l)
		}
	}
	return out
}

type OutboxRepository struct{ *Store }

func (s *Store) Outbox() OutboxRepository { return OutboxRepository{s} }

func (r OutboxRepository) Create(ctx context.Context, event kafka.OutboxEvent) error {
	if err := kafka.ValidateOutboxEvent(event); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fault(OpOutboxCreate, event.AggregateID); err != nil {
		return err
	}
	event.CreatedAt = time.Now()
	r.outbox = append(r.outbox, event)
	id := event.ID
	r.record(ctx, func() {
		for i, e := range r.outbox {
			if e.ID == id {
				r.outbox = append(r.outbox[:i:i], r.outbox[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (r OutboxRepository) ListPending(ctx context.Context, limit int) ([]kafka.OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now()
	var out []kafka.OutboxEvent
	for _, e := range r.outbox {
		if len(out) == limit {
			break
		}
		if e.Status == kafka.OutboxStatusSent || e.NextRetryAt.After(now) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.mark(id, func(e *kafka.OutboxEvent) { e.Status = kafka.OutboxStatusSent })
}

func (r OutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.mark(id, func(e *kafka.OutboxEvent) {
		e.Status = kafka.OutboxStatusFailed
		e.RetryCount++
		e.NextRetryAt = time.Now().Add(kafka.RetryDelay(e.RetryCount))
	})
}

func (r OutboxRepository) mark(id string, apply func(*kafka.OutboxEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.outbox {
		if r.outbox[i].ID == id {
			apply(&r.outbox[i])
			return nil
		}
	}
	return nil
}

// Events returns a copy of every outbox event in insertion order.
func (r OutboxRepository) Events() []kafka.OutboxEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kafka.OutboxEvent, len(r.outbox))
	copy(out, r.outbox)
	return out
}
