package events

import "time"

const ProbationTransitionTopic = "hrms.probation.transition.v1"

const ProbationTransitionedEventType = "probation.transitioned"

type ProbationTransitionedEvent struct {
	EventType         string    `json:"event_type"`
	EmploymentID      string    `json:"employment_id"`
	Transition        string    `json:"transition"` // passed, failed or extended
	EffectiveDate     string    `json:"effective_date"`
	PreviousEndDate   *string   `json:"previous_end_date,omitempty"`
	NewEndDate        *string   `json:"new_end_date,omitempty"`
	AllocationsClosed int       `json:"allocations_closed"`
	AllocationsOpened int       `json:"allocations_opened"`
	OccurredAt        time.Time `json:"occurred_at"`
}
