package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/service"
)

const (
	streamKeepAlive   = 15 * time.Second
	streamReadTimeout = 3 * time.Second
	streamStateEvent  = "state"
	streamRetryMillis = 3000
)

// StreamHandler pushes queue snapshots to displays over server-sent events.
// Hub messages only signal a change; each one triggers a read from the store,
// bypassing the cache, so a frame is never older than the change that caused
// it. The keep-alive tick re-reads too, which bounds how long a display can
// miss a change whose signal was dropped.
type StreamHandler struct {
	queue     *service.QueueService
	hub       *events.Hub
	logger    *zap.Logger
	shutdown  context.Context
	keepAlive time.Duration
}

// NewStreamHandler constructs handler. Streams end when shutdown is done.
func NewStreamHandler(shutdown context.Context, queue *service.QueueService, hub *events.Hub, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{queue: queue, hub: hub, logger: logger, shutdown: shutdown, keepAlive: streamKeepAlive}
}

// Stream GET /queue/stream.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	msgs, unsubscribe := h.hub.Subscribe()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		h.pump(h.shutdown, w, msgs)
	})
	return nil
}

// pump writes the current state, then a fresh state for every hub message and
// keep-alive tick, until the client goes away, msgs closes, or ctx ends.
func (h *StreamHandler) pump(ctx context.Context, w *bufio.Writer, msgs <-chan string) {
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", streamRetryMillis); err != nil {
		return
	}
	if err := h.writeState(ctx, w); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			if err := h.writeState(ctx, w); err != nil {
				return
			}
		case <-ticker.C:
			if err := h.writeState(ctx, w); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) writeState(ctx context.Context, w *bufio.Writer) error {
	readCtx, cancel := context.WithTimeout(ctx, streamReadTimeout)
	defer cancel()

	state, err := h.queue.GetFreshState(readCtx)
	if err != nil {
		// Keep the stream open; the next change or tick retries the read.
		h.logger.Warn("stream state read failed", zap.Error(err))
		if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
			return err
		}
		return w.Flush()
	}
	payload, err := json.Marshal(dto.NewQueueStateResponse(state))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", streamStateEvent, payload); err != nil {
		return err
	}
	return w.Flush()
}
