package fundingsource

import "time"

// Details - what the core needs to know about a funding source
type Details struct {
	Source         Source
	OrganizationID string
	Capacity       *int // position slots; nil is uncapped
	StartDate      time.Time
	EndDate        *time.Time
}

// ExpiredOn reports whether the source has ended before date.
func (d Details) ExpiredOn(date time.Time) bool {
	return d.EndDate != nil && d.EndDate.Before(date)
}
