package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// QueueStateResponse is what displays render.
type QueueStateResponse struct {
	CurrentNumber    int64     `json:"currentNumber"`
	StartFrom        int64     `json:"startFrom"`
	OutstandingCount int64     `json:"outstandingCount"`
	Epoch            int64     `json:"epoch"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ResetQueueRequest payload. A missing startFrom resets to 0.
type ResetQueueRequest struct {
	StartFrom *int64 `json:"startFrom"`
}

// SetQueueRequest payload.
type SetQueueRequest struct {
	Number *int64 `json:"number"`
}

// NewQueueStateResponse maps a snapshot.
func NewQueueStateResponse(state *domain.QueueState) QueueStateResponse {
	return QueueStateResponse{
		CurrentNumber:    state.CurrentNumber,
		StartFrom:        state.StartFrom,
		OutstandingCount: state.OutstandingCount,
		Epoch:            state.Epoch,
		UpdatedAt:        state.UpdatedAt,
	}
}
