package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// QueueHandler exposes the "now serving" cursor.
type QueueHandler struct {
	queue   *service.QueueService
	tickets *service.TicketService
}

// NewQueueHandler constructs handler.
func NewQueueHandler(queue *service.QueueService, tickets *service.TicketService) *QueueHandler {
	return &QueueHandler{queue: queue, tickets: tickets}
}

// GetState GET /queue.
func (h *QueueHandler) GetState(c *fiber.Ctx) error {
	state, err := h.queue.GetState(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(dto.NewQueueStateResponse(state))
}

// Next POST /queue/next.
func (h *QueueHandler) Next(c *fiber.Ctx) error {
	state, err := h.queue.Next(c.UserContext(), auth.StaffIDFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewQueueStateResponse(state))
}

// Prev POST /queue/prev.
func (h *QueueHandler) Prev(c *fiber.Ctx) error {
	state, err := h.queue.Prev(c.UserContext(), auth.StaffIDFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewQueueStateResponse(state))
}

// Reset POST /queue/reset.
func (h *QueueHandler) Reset(c *fiber.Ctx) error {
	var req dto.ResetQueueRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	var startFrom int64
	if req.StartFrom != nil {
		startFrom = *req.StartFrom
	}
	state, err := h.queue.Reset(c.UserContext(), auth.StaffIDFromContext(c), startFrom)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewQueueStateResponse(state))
}

// Set POST /queue/set.
func (h *QueueHandler) Set(c *fiber.Ctx) error {
	var req dto.SetQueueRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	if req.Number == nil {
		return apperrors.NewValidationError("number is required", nil)
	}
	state, err := h.queue.Set(c.UserContext(), auth.StaffIDFromContext(c), *req.Number)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewQueueStateResponse(state))
}

// ListTickets GET /queue/tickets.
func (h *QueueHandler) ListTickets(c *fiber.Ctx) error {
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	tickets, err := h.tickets.ListTickets(c.UserContext(), pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(dto.TicketListResponse{Items: items, Page: page, PageSize: pageSize})
}

// parseOptionalBody decodes a JSON body when one was sent.
func parseOptionalBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	return nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}
