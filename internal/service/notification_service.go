package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
)

// NotificationService fans queue events out to display clients. With Redis
// configured events go through pub/sub so every instance sees them; otherwise
// they are delivered straight to the local hub.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  redis.UniversalClient
	hub        *events.Hub
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Publisher  redis.UniversalClient
	Hub        *events.Hub
	Logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies, cfg config.NotificationConfig) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		publisher:  deps.Publisher,
		hub:        deps.Hub,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.QueueEventTypes {
		n.dispatcher.Subscribe(eventType, n.handleQueueEvent)
	}
}

func (n *NotificationService) handleQueueEvent(ctx context.Context, event events.Event) error {
	n.logger.Debug("queue event", zap.String("event_id", event.ID), zap.String("type", string(event.Type)))
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if n.publisher != nil && n.cfg.Channel != "" {
		if err := n.publisher.Publish(ctx, n.cfg.Channel, string(payload)).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", event.Type, err)
		}
		return nil
	}
	if n.hub != nil {
		n.hub.Broadcast(string(payload))
	}
	return nil
}
