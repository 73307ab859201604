package domain

import "time"

// Checklist is a digital checklist template.
type Checklist struct {
	ID        int64
	TenantID  int64
	Title     string
	Items     []string
	CreatedBy int64
	CreatedAt time.Time
}

// WorkOrder is a maintenance work order.
type WorkOrder struct {
	ID        int64
	TenantID  int64
	Asset     string
	Summary   string
	DueAt     *time.Time
	CreatedBy int64
	CreatedAt time.Time
}
