package employment

import (
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/money"
	"github.com/google/uuid"
)

// Benefits - statutory benefit enrolment flags
type Benefits struct {
	SocialSecurity bool
	HealthWelfare  bool
	PVD            bool
	SavingFund     bool
}

// Employment - one employee's job contract instance
type Employment struct {
	ID                  string
	EmployeeID          string
	OrganizationID      string
	StartDate           time.Time
	EndDate             *time.Time
	ProbationEndDate    *time.Time
	ProbationSalary     *money.Money
	PassProbationSalary money.Money
	Benefits            Benefits
	IsActive            bool
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasEnded reports whether the employment has an end date on or before date.
func (e Employment) HasEnded(date time.Time) bool {
	return e.EndDate != nil && !e.EndDate.After(date)
}

// ProbationState is derived from the probation event log
type ProbationState string

const (
	ProbationOngoing  ProbationState = "ongoing"
	ProbationPassed   ProbationState = "passed"
	ProbationFailed   ProbationState = "failed"
	ProbationExtended ProbationState = "extended"
)

// IsFinal reports whether no further transition may follow.
func (s ProbationState) IsFinal() bool {
	return s == ProbationPassed || s == ProbationFailed
}

// EventType enum
type EventType string

const (
	EventStarted  EventType = "started"
	EventExtended EventType = "extended"
	EventPassed   EventType = "passed"
	EventFailed   EventType = "failed"
)

// ProbationEvent - one append-only entry of an employment's probation history
type ProbationEvent struct {
	ID              string
	EmploymentID    string
	Type            EventType
	EventDate       time.Time
	PreviousEndDate *time.Time
	NewEndDate      *time.Time
	CreatedAt       time.Time
}

var eventNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("hrms.probation.event"))

// EventID derives a stable id from employment, type and date so that
// re-running a transition cannot append a second copy.
func EventID(employmentID string, eventType EventType, date time.Time) string {
	name := employmentID + "|" + string(eventType) + "|" + date.Format("2006-01-02")
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

// NewEvent builds a ProbationEvent with its deterministic id.
func NewEvent(employmentID string, eventType EventType, date time.Time, previous, next *time.Time) ProbationEvent {
	return ProbationEvent{
		ID:              EventID(employmentID, eventType, date),
		EmploymentID:    employmentID,
		Type:            eventType,
		EventDate:       date,
		PreviousEndDate: previous,
		NewEndDate:      next,
	}
}

// CurrentState derives the state from the event log. A terminal event
// (passed or failed) wins over any non-terminal one whatever its date; a
// failure carries the employment end date and may predate an extension.
// Otherwise the most recent event wins, terminal over non-terminal on ties.
func CurrentState(events []ProbationEvent) ProbationState {
	var latest *ProbationEvent
	for i := range events {
		ev := &events[i]
		if latest == nil || supersedes(ev, latest) {
			latest = ev
		}
	}
	if latest == nil {
		return ProbationOngoing
	}

	switch latest.Type {
	case EventPassed:
		return ProbationPassed
	case EventFailed:
		return ProbationFailed
	case EventExtended:
		return ProbationExtended
	default:
		return ProbationOngoing
	}
}

func supersedes(ev, current *ProbationEvent) bool {
	evFinal, curFinal := isTerminal(ev.Type), isTerminal(current.Type)
	if evFinal != curFinal {
		return evFinal
	}
	if ev.EventDate.Equal(current.EventDate) {
		return eventRank(ev.Type) > eventRank(current.Type)
	}
	return ev.EventDate.After(current.EventDate)
}

func isTerminal(t EventType) bool {
	return t == EventPassed || t == EventFailed
}

func eventRank(t EventType) int {
	switch t {
	case EventFailed:
		return 3
	case EventPassed:
		return 2
	case EventExtended:
		return 1
	default:
		return 0
	}
}
