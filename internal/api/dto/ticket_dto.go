package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ServiceID *int64 `json:"serviceId"`
}

// TicketResponse is the customer's receipt.
type TicketResponse struct {
	ID        string    `json:"id"`
	Number    int64     `json:"number"`
	ServiceID int64     `json:"serviceId"`
	CreatedAt time.Time `json:"createdAt"`
}

// TicketListResponse is a page of the active epoch's tickets.
type TicketListResponse struct {
	Items    []TicketResponse `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// ServiceResponse describes a catalog entry.
type ServiceResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"durationMinutes"`
	PriceCents      int64  `json:"priceCents"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:        ticket.ID,
		Number:    ticket.Number,
		ServiceID: ticket.ServiceID,
		CreatedAt: ticket.CreatedAt,
	}
}

// NewServiceResponse maps a catalog entry.
func NewServiceResponse(svc *domain.Service) ServiceResponse {
	return ServiceResponse{
		ID:              svc.ID,
		Name:            svc.Name,
		Description:     svc.Description,
		DurationMinutes: svc.DurationMinutes,
		PriceCents:      svc.PriceCents,
	}
}
