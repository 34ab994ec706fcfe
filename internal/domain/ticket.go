package domain

import "time"

// Ticket is one walk-in customer's place in line. Tickets are never mutated;
// a reset retires them by moving the queue to a new epoch.
type Ticket struct {
	ID        string
	Number    int64
	ServiceID int64
	Epoch     int64
	CreatedAt time.Time
}
