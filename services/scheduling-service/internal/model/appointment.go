package model

import "time"

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusArrived    Status = "arrived"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
	StatusNoShow     Status = "no_show"
)

var AllStatuses = []Status{
	StatusScheduled,
	StatusPending,
	StatusConfirmed,
	StatusArrived,
	StatusInProgress,
	StatusCompleted,
	StatusCanceled,
	StatusNoShow,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusNoShow
}

// Channel is where a booking came from; it decides the initial status.
type Channel string

const (
	ChannelStaff  Channel = "staff"
	ChannelPublic Channel = "public"
)

func (c Channel) InitialStatus() Status {
	if c == ChannelPublic {
		return StatusPending
	}
	return StatusScheduled
}

// Appointment times are absolute instants, persisted in UTC.
type Appointment struct {
	ID             string
	OrganizationID string
	ProfessionalID string
	CustomerID     string
	ServiceID      string
	StartTime      time.Time
	EndTime        time.Time
	Status         Status
	PaymentStatus  string
	PaymentMethod  string
	CanceledAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Overlaps reports whether [StartTime, EndTime) intersects [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndTime)
}

type Contact struct {
	CustomerID string
	Name       string
	Phone      string
}
