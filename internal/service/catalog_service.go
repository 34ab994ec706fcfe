package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// CatalogService exposes the read-only service catalog customers pick from.
type CatalogService struct {
	services repository.ServiceRepository
}

// NewCatalogService constructs the service.
func NewCatalogService(services repository.ServiceRepository) *CatalogService {
	return &CatalogService{services: services}
}

// ListServices returns active services ordered by ID.
func (s *CatalogService) ListServices(ctx context.Context) ([]domain.Service, error) {
	services, err := s.services.ListActive(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return services, nil
}

// GetService returns one service.
func (s *CatalogService) GetService(ctx context.Context, id int64) (*domain.Service, error) {
	svc, err := s.services.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("service", map[string]any{"serviceId": id})
	}
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return svc, nil
}
