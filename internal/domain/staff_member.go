package domain

import "time"

// StaffRole enumerates shop operator roles.
type StaffRole string

const (
	StaffRoleBarber StaffRole = "BARBER"
	StaffRoleAdmin  StaffRole = "ADMIN"
)

// StaffMember models a barber or shop administrator who drives the queue.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SubjectType tags who a bearer token was issued to. Staff is the only kind
// of caller that signs in; customers stay anonymous.
type SubjectType string

const SubjectTypeStaff SubjectType = "STAFF"
