package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/service"
)

// StartNotificationWorker wires queue events to the broadcast channel.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartBroadcastRelay subscribes to the Redis channel and forwards every message
// to the local hub until ctx is done. It returns immediately when client is nil.
func StartBroadcastRelay(ctx context.Context, client redis.UniversalClient, channel string, hub *events.Hub, logger *zap.Logger) {
	if client == nil || hub == nil || channel == "" {
		return
	}
	sub := client.Subscribe(ctx, channel)
	go func() {
		defer sub.Close() //nolint:errcheck
		RelayMessages(ctx, sub.Channel(), hub)
		logger.Info("broadcast relay stopped", zap.String("channel", channel))
	}()
	logger.Info("broadcast relay started", zap.String("channel", channel))
}

// RelayMessages copies pub/sub payloads into hub until ctx is done or msgs closes.
func RelayMessages(ctx context.Context, msgs <-chan *redis.Message, hub *events.Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			hub.Broadcast(msg.Payload)
		}
	}
}
