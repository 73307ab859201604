package domain

import (
	"fmt"
	"time"
)

type DeviationStatus string

const (
	DeviationOpen       DeviationStatus = "open"
	DeviationInProgress DeviationStatus = "in_progress"
	DeviationResolved   DeviationStatus = "resolved"
	DeviationClosed     DeviationStatus = "closed"
)

// ParseDeviationStatus validates a status name.
func ParseDeviationStatus(s string) (DeviationStatus, error) {
	switch st := DeviationStatus(s); st {
	case DeviationOpen, DeviationInProgress, DeviationResolved, DeviationClosed:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority validates a priority name.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Deviation is a tracked quality incident.
type Deviation struct {
	ID          int64
	TenantID    int64
	Title       string
	Description string
	Status      DeviationStatus
	Priority    Priority
	ReporterID  int64
	AssigneeID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeviationActivity is one entry in a deviation's audit trail.
type DeviationActivity struct {
	ID          int64
	TenantID    int64
	DeviationID int64
	UserID      int64
	Action      string
	Detail      string
	CreatedAt   time.Time
}
