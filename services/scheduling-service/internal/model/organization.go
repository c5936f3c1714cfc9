package model

import (
	"strings"
	"time"
)

const DefaultAppointmentDuration = 30 * time.Minute

type OrganizationSettings struct {
	OrganizationID      string
	Name                string
	Timezone            string
	AppointmentDuration time.Duration
}

func DefaultSettings(orgID string) OrganizationSettings {
	return OrganizationSettings{
		OrganizationID:      orgID,
		Timezone:            "UTC",
		AppointmentDuration: DefaultAppointmentDuration,
	}
}

// Location resolves Timezone, falling back to UTC for empty or unknown names.
func (s OrganizationSettings) Location() *time.Location {
	name := strings.TrimSpace(s.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
