package payroll

import (
	"sync"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/payroll"
)

// Batch tracks one running generateForPeriod call. Cancel stops dispatching
// employments that have not started; finished employments keep their lines.
type Batch struct {
	mu     sync.Mutex
	result payroll.BatchResult
	done   chan struct{}
}

func newBatch(id string, period time.Time, total int, startedAt time.Time) *Batch {
	return &Batch{
		result: payroll.BatchResult{
			BatchID:   id,
			PayPeriod: period,
			Status:    payroll.BatchStatusRunning,
			Total:     total,
			StartedAt: startedAt,
		},
		done: make(chan struct{}),
	}
}

func (b *Batch) ID() string {
	return b.result.BatchID
}

// Cancelled reports whether Cancel was called.
func (b *Batch) Cancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result.Cancelled
}

// Done is closed when the batch finishes.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

func (b *Batch) cancel() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result.Status != payroll.BatchStatusRunning {
		return payroll.ErrBatchFinished
	}
	b.result.Cancelled = true
	return nil
}

func (b *Batch) record(o employmentOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result.Processed++
	b.result.Succeeded = append(b.result.Succeeded, o.lines...)
	b.result.Failed = append(b.result.Failed, o.failures...)
	b.result.Skipped = append(b.result.Skipped, o.skips...)
}

func (b *Batch) finish(at time.Time) payroll.BatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result.Cancelled {
		b.result.Status = payroll.BatchStatusCancelled
	} else {
		b.result.Status = payroll.BatchStatusCompleted
	}
	b.result.FinishedAt = &at
	sortResult(&b.result)
	close(b.done)
	return b.snapshot()
}

func (b *Batch) finishedAt() *time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result.FinishedAt
}

// Snapshot returns a copy of the batch's progress so far.
func (b *Batch) Snapshot() payroll.BatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

func (b *Batch) snapshot() payroll.BatchResult {
	out := b.result
	out.Succeeded = append([]payroll.PayrollLine(nil), b.result.Succeeded...)
	out.Failed = append([]payroll.LineFailure(nil), b.result.Failed...)
	out.Skipped = append([]payroll.LineSkip(nil), b.result.Skipped...)
	return out
}

// DefaultBatchRetention is how long a finished batch stays queryable.
const DefaultBatchRetention = 24 * time.Hour

// BatchRegistry keeps batches of this process addressable by id. Finished
// batches are dropped once they are older than the retention.
type BatchRegistry struct {
	mu        sync.RWMutex
	batches   map[string]*Batch
	retention time.Duration
}

func NewBatchRegistry(retention time.Duration) *BatchRegistry {
	if retention <= 0 {
		retention = DefaultBatchRetention
	}
	return &BatchRegistry{batches: make(map[string]*Batch), retention: retention}
}

// Start registers a new running batch.
func (r *BatchRegistry) Start(id string, period time.Time, total int, startedAt time.Time) (*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(startedAt)
	if _, exists := r.batches[id]; exists {
		return nil, payroll.ErrBatchExists
	}
	b := newBatch(id, period, total, startedAt)
	r.batches[id] = b
	return b, nil
}

func (r *BatchRegistry) Get(id string) (*Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, payroll.ErrBatchNotFound
	}
	return b, nil
}

// Progress returns the batch's result so far.
func (r *BatchRegistry) Progress(id string) (payroll.BatchResult, error) {
	b, err := r.Get(id)
	if err != nil {
		return payroll.BatchResult{}, err
	}
	return b.Snapshot(), nil
}

// Cancel marks a running batch cancelled.
func (r *BatchRegistry) Cancel(id string) error {
	b, err := r.Get(id)
	if err != nil {
		return err
	}
	return b.cancel()
}

// prune must be called with r.mu held. Running batches are never dropped.
func (r *BatchRegistry) prune(now time.Time) {
	cutoff := now.Add(-r.retention)
	for id, b := range r.batches {
		if finishedAt := b.finishedAt(); finishedAt != nil && finishedAt.Before(cutoff) {
			delete(r.batches, id)
		}
	}
}

// Len reports how many batches are held.
func (r *BatchRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches)
}
