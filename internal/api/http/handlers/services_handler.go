package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// ServicesHandler lists the catalog shown on the kiosk.
type ServicesHandler struct {
	catalog *service.CatalogService
}

// NewServicesHandler constructs handler.
func NewServicesHandler(catalog *service.CatalogService) *ServicesHandler {
	return &ServicesHandler{catalog: catalog}
}

// List GET /services.
func (h *ServicesHandler) List(c *fiber.Ctx) error {
	services, err := h.catalog.ListServices(c.UserContext())
	if err != nil {
		return err
	}
	resp := make([]dto.ServiceResponse, 0, len(services))
	for i := range services {
		resp = append(resp, dto.NewServiceResponse(&services[i]))
	}
	return c.JSON(resp)
}

// Get GET /services/:id.
func (h *ServicesHandler) Get(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("id must be a positive integer", nil)
	}
	svc, err := h.catalog.GetService(c.UserContext(), int64(id))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewServiceResponse(svc))
}
