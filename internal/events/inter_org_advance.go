package events

import "time"

const InterOrgAdvanceTopic = "hrms.payroll.inter_org_advance.v1"

const InterOrgAdvanceRequestedEventType = "inter_org_advance.requested"

// InterOrgAdvanceRequestedEvent asks the ledger to open an advance from the
// funding organization to the employing organization for the net amount.
type InterOrgAdvanceRequestedEvent struct {
	EventType             string    `json:"event_type"`
	PayrollLineID         string    `json:"payroll_line_id"`
	EmploymentID          string    `json:"employment_id"`
	AllocationID          string    `json:"allocation_id"`
	PayPeriod             string    `json:"pay_period"`
	EmployingOrganization string    `json:"employing_organization_id"`
	FundingOrganization   string    `json:"funding_organization_id"`
	FundingSource         string    `json:"funding_source"`
	NetAmount             string    `json:"net_amount"`
	OccurredAt            time.Time `json:"occurred_at"`
}
