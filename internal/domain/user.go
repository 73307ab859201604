package domain

import "time"

// User is a principal. It belongs to exactly one tenant; email is unique per
// (TenantID, Email).
type User struct {
	ID           int64
	TenantID     int64
	Email        string
	PasswordHash string // bcrypt, never serialized
	Role         Role
	FirstName    string
	LastName     string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
