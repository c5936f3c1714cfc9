package model

import "time"

// WorkingPattern is one professional's window for one weekday. Times are HH:mm wall-clock in
// the organization's timezone.
type WorkingPattern struct {
	OrganizationID string
	ProfessionalID string
	Weekday        time.Weekday
	StartTime      string
	EndTime        string
	BreakStart     string
	BreakEnd       string
	IsActive       bool
}

func (p WorkingPattern) HasBreak() bool {
	return p.BreakStart != "" && p.BreakEnd != ""
}
