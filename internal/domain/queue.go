package domain

import "time"

// Initial values before any reset has been performed.
const (
	InitialStartFrom int64 = 0
	InitialEpoch     int64 = 1
)

// QueueState is the "now serving" cursor together with its epoch floor.
type QueueState struct {
	CurrentNumber int64
	StartFrom     int64
	Epoch         int64
	// NextNumber is the number the next issued ticket receives.
	NextNumber       int64
	OutstandingCount int64
	// Revision grows by one with every committed change, including ticket
	// issuance. Snapshots with a higher revision are newer.
	Revision  int64
	UpdatedAt time.Time
}

// NewQueueState returns the state of a queue that has never been reset.
func NewQueueState() QueueState {
	return QueueState{
		CurrentNumber: InitialStartFrom - 1,
		StartFrom:     InitialStartFrom,
		Epoch:         InitialEpoch,
		NextNumber:    InitialStartFrom,
	}
}

// Floor is the cursor value meaning nothing has been served in this epoch.
func (s QueueState) Floor() int64 {
	return s.StartFrom - 1
}

// Next advances the cursor. It is not bounded by the highest issued number:
// staff may call a number before its customer has taken a ticket.
func (s *QueueState) Next() {
	s.CurrentNumber++
}

// Prev moves the cursor back one, stopping at the floor. It reports whether
// the cursor moved.
func (s *QueueState) Prev() bool {
	if s.CurrentNumber <= s.Floor() {
		return false
	}
	s.CurrentNumber--
	return true
}

// Reset starts a new epoch numbered from startFrom.
func (s *QueueState) Reset(startFrom int64) {
	s.Epoch++
	s.StartFrom = startFrom
	s.NextNumber = startFrom
	s.CurrentNumber = startFrom - 1
}

// Set overrides the cursor.
func (s *QueueState) Set(number int64) {
	s.CurrentNumber = number
}
