package domain

import "time"

// Service is a bookable offering from the shop catalog. The catalog is
// managed elsewhere; the queue only reads it.
type Service struct {
	ID              int64
	Name            string
	Description     string
	DurationMinutes int
	PriceCents      int64
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
