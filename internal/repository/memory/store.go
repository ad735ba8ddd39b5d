// Package memory keeps every repository in process memory. It backs the
// engine tests and single-process dry runs; writes made inside
// WithinTransaction are undone when the callback fails.
package memory

import (
	"context"
	"sync"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/allocation"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/employment"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/fundingsource"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/payroll"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/messaging/kafka"
)

// Operation names accepted by SetFault
const (
	OpEmploymentGet          = "employment.get"
	OpAllocationCreate       = "allocation.create"
	OpAllocationUpdateStatus = "allocation.update_status"
	OpEventAppend            = "event.append"
	OpPayrollCreateLines     = "payroll.create_lines"
	OpOutboxCreate           = "outbox.create"
)

// Fault makes an operation fail. Calls up to After succeed first; an empty
// EmploymentID matches every employment.
type Fault struct {
	Op           string
	EmploymentID string
	After        int
	Err          error

	calls int
}

type Store struct {
	mu sync.RWMutex

	employments map[string]employment.Employment
	events      map[string][]employment.ProbationEvent
	eventIDs    map[string]struct{}
	allocations map[string]allocation.FundingAllocation
	allocOrder  []string
	sources     map[fundingsource.Source]fundingsource.Details
	brackets    []settings.TaxBracket
	benefits    []settings.BenefitSetting
	lines       map[string]payroll.PayrollLine
	lineOrder   []string
	outbox      []kafka.OutboxEvent

	faults []*Fault
}

func NewStore() *Store {
	return &Store{
		employments: make(map[string]employment.Employment),
		events:      make(map[string][]employment.ProbationEvent),
		eventIDs:    make(map[string]struct{}),
		allocations: make(map[string]allocation.FundingAllocation),
		sources:     make(map[fundingsource.Source]fundingsource.Details),
		lines:       make(map[string]payroll.PayrollLine),
	}
}

// SetFault registers an injected failure.
func (s *Store) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &f)
}

func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

// fault must be called with s.mu held for writing.
func (s *Store) fault(op, employmentID string) error {
	for _, f := range s.faults {
		if f.Op != op || (f.EmploymentID != "" && f.EmploymentID != employmentID) {
			continue
		}
		f.calls++
		if f.calls > f.After {
			return f.Err
		}
	}
	return nil
}

type txKey struct{}

type journal struct {
	mu   sync.Mutex
	undo []func()
}

// WithinTransaction implements database.Transactor. Nested calls join the
// outer transaction.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*journal); ok {
		return fn(ctx)
	}

	j := &journal{}
	err := fn(context.WithValue(ctx, txKey{}, j))
	if err != nil {
		s.mu.Lock()
		j.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		j.mu.Unlock()
		s.mu.Unlock()
	}
	return err
}

// record must be called with s.mu held; undo runs with s.mu held.
func (s *Store) record(ctx context.Context, undo func()) {
	j, ok := ctx.Value(txKey{}).(*journal)
	if !ok {
		return
	}
	j.mu.Lock()
	j.undo = append(j.undo, undo)
	j.mu.Unlock()
}
