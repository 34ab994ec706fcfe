package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

const defaultIssueAttempts = 3

// TicketService issues walk-in tickets.
type TicketService struct {
	queue       repository.QueueRepository
	cache       *cache.StateCache
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	maxAttempts int
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	QueueRepo  repository.QueueRepository
	Cache      *cache.StateCache
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// MaxAttempts bounds retries of numbering conflicts. Defaults to 3.
	MaxAttempts int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultIssueAttempts
	}
	return &TicketService{
		queue:       deps.QueueRepo,
		cache:       deps.Cache,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		maxAttempts: attempts,
	}
}

// CreateTicket assigns the next number of the active epoch to a new ticket.
// Only numbering conflicts are retried; they are reported before anything is
// committed. Any other failure is returned without a retry so a ticket is
// issued at most once per call.
func (s *TicketService) CreateTicket(ctx context.Context, serviceID int64) (*domain.Ticket, error) {
	if serviceID <= 0 {
		return nil, apperrors.NewValidationError("serviceId must be a positive integer", map[string]any{"serviceId": serviceID})
	}

	var ticket *domain.Ticket
	for attempt := 1; ; attempt++ {
		issued, err := s.queue.IssueTicket(ctx, serviceID)
		if err == nil {
			ticket = issued
			break
		}
		switch {
		case errors.Is(err, repository.ErrServiceNotFound):
			return nil, apperrors.NewNotFound("service", map[string]any{"serviceId": serviceID})
		case errors.Is(err, repository.ErrNumberConflict):
			if attempt < s.maxAttempts {
				s.logger.Warn("ticket number conflict, retrying", zap.Int("attempt", attempt))
				continue
			}
			return nil, apperrors.NewConflict("could not assign a ticket number, try again", nil)
		default:
			return nil, apperrors.NewStorageError(err)
		}
	}

	s.refreshCache(ctx)
	s.logger.Info("ticket issued",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("number", ticket.Number),
		zap.Int64("service_id", ticket.ServiceID),
		zap.Int64("epoch", ticket.Epoch))
	publishEvent(ctx, s.dispatcher, events.Event{
		Type: events.EventTicketIssued,
		Payload: events.TicketIssuedPayload{
			TicketID:  ticket.ID,
			Number:    ticket.Number,
			ServiceID: ticket.ServiceID,
			Epoch:     ticket.Epoch,
		},
	})
	return ticket, nil
}

// refreshCache replaces the cached snapshot with one that includes the new
// ticket. Deleting the key instead would let a reader that loaded the state
// before the issue refill it with the old outstanding count.
func (s *TicketService) refreshCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	state, err := s.queue.GetState(ctx)
	if err == nil {
		_, err = s.cache.Set(ctx, state)
	}
	if err != nil {
		s.logger.Warn("refresh queue state cache", zap.Error(err))
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate queue state cache", zap.Error(err))
		}
	}
}

// ListTickets returns the tickets of the active epoch in number order.
func (s *TicketService) ListTickets(ctx context.Context, limit, offset int) ([]domain.Ticket, error) {
	state, err := s.queue.GetState(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	tickets, err := s.queue.ListTickets(ctx, state.Epoch, limit, offset)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return tickets, nil
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = dispatcher.Publish(ctx, event)
}

func staffActor(staffID string) events.Actor {
	if staffID == "" {
		return events.Actor{}
	}
	return events.Actor{
		Type:    domain.SubjectTypeStaff,
		StaffID: &staffID,
	}
}
