package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// QueueService drives the "now serving" cursor.
type QueueService struct {
	queue      repository.QueueRepository
	cache      *cache.StateCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// QueueDependencies bundles collaborators for the queue service.
type QueueDependencies struct {
	QueueRepo  repository.QueueRepository
	Cache      *cache.StateCache
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewQueueService constructs the service.
func NewQueueService(deps QueueDependencies) *QueueService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{
		queue:      deps.QueueRepo,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// GetState returns the current snapshot, served from cache when fresh.
func (s *QueueService) GetState(ctx context.Context) (*domain.QueueState, error) {
	cached, ok, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.Warn("read queue state cache", zap.Error(err))
	}
	if ok {
		return cached, nil
	}
	return s.GetFreshState(ctx)
}

// GetFreshState reads the store directly and refreshes the cache. Push
// streams use it so a frame is never older than the change that triggered it.
func (s *QueueService) GetFreshState(ctx context.Context) (*domain.QueueState, error) {
	state, err := s.queue.GetState(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	s.storeCached(ctx, state)
	return state, nil
}

// storeCached writes state unless the cache already holds a newer revision.
func (s *QueueService) storeCached(ctx context.Context, state *domain.QueueState) {
	written, err := s.cache.Set(ctx, state)
	if err != nil {
		s.logger.Warn("write queue state cache", zap.Error(err))
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate queue state cache", zap.Error(err))
		}
		return
	}
	if !written && s.cache != nil {
		s.logger.Debug("newer queue state already cached", zap.Int64("revision", state.Revision))
	}
}

// Next advances the cursor by one. Advancing past the highest issued ticket is allowed.
func (s *QueueService) Next(ctx context.Context, staffID string) (*domain.QueueState, error) {
	return s.mutate(ctx, staffID, events.EventQueueAdvanced, func(state *domain.QueueState) bool {
		state.Next()
		return true
	})
}

// Prev moves the cursor back by one. At the epoch floor it returns the state unchanged.
func (s *QueueService) Prev(ctx context.Context, staffID string) (*domain.QueueState, error) {
	return s.mutate(ctx, staffID, events.EventQueueReversed, func(state *domain.QueueState) bool {
		return state.Prev()
	})
}

// Reset starts a new epoch whose first ticket is startFrom.
func (s *QueueService) Reset(ctx context.Context, staffID string, startFrom int64) (*domain.QueueState, error) {
	if startFrom < 0 {
		return nil, apperrors.NewValidationError("startFrom must be a non-negative integer", map[string]any{"startFrom": startFrom})
	}
	return s.mutate(ctx, staffID, events.EventQueueReset, func(state *domain.QueueState) bool {
		state.Reset(startFrom)
		return true
	})
}

// Set overrides the cursor. Only negative numbers are rejected.
func (s *QueueService) Set(ctx context.Context, staffID string, number int64) (*domain.QueueState, error) {
	if number < 0 {
		return nil, apperrors.NewValidationError("number must be a non-negative integer", map[string]any{"number": number})
	}
	return s.mutate(ctx, staffID, events.EventQueueSet, func(state *domain.QueueState) bool {
		state.Set(number)
		return true
	})
}

var errCursorUnchanged = errors.New("cursor unchanged")

// mutate applies apply atomically. When apply reports no change the transaction
// is rolled back and the current state is returned as-is.
func (s *QueueService) mutate(ctx context.Context, staffID string, eventType events.EventType, apply func(*domain.QueueState) bool) (*domain.QueueState, error) {
	var previous int64
	state, err := s.queue.MutateState(ctx, func(st *domain.QueueState) error {
		previous = st.CurrentNumber
		if !apply(st) {
			return errCursorUnchanged
		}
		return nil
	})
	if errors.Is(err, errCursorUnchanged) {
		return s.GetFreshState(ctx)
	}
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	s.storeCached(ctx, state)
	s.logger.Info("queue cursor moved",
		zap.String("event", string(eventType)),
		zap.Int64("previous_number", previous),
		zap.Int64("current_number", state.CurrentNumber),
		zap.Int64("epoch", state.Epoch),
		zap.Int64("revision", state.Revision),
		zap.String("staff_id", staffID))
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:  eventType,
		Actor: staffActor(staffID),
		Payload: events.CursorMovedPayload{
			PreviousNumber: previous,
			State:          *state,
		},
	})
	return state, nil
}
