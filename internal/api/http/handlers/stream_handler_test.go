package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/service"
)

// lockedBuffer lets the test read while the pump writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newStreamFixture(t *testing.T) (*StreamHandler, *service.QueueService) {
	t.Helper()
	services := repository.NewMemoryServiceRepository()
	services.Add(domain.Service{Name: "Haircut", Active: true})
	queue := service.NewQueueService(service.QueueDependencies{QueueRepo: repository.NewMemoryQueueRepository(services)})
	h := NewStreamHandler(context.Background(), queue, events.NewHub(), nil)
	h.keepAlive = time.Hour
	return h, queue
}

func decodeStateFrames(t *testing.T, raw string) []dto.QueueStateResponse {
	t.Helper()
	var states []dto.QueueStateResponse
	for _, frame := range strings.Split(raw, "\n\n") {
		for _, line := range strings.Split(frame, "\n") {
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			var state dto.QueueStateResponse
			require.NoError(t, json.Unmarshal([]byte(data), &state))
			states = append(states, state)
		}
	}
	return states
}

func TestStreamHandler_SendsInitialStateAndRereadsOnChange(t *testing.T) {
	h, queue := newStreamFixture(t)
	ctx := context.Background()

	msgs := make(chan string, 1)
	buf := &lockedBuffer{}
	w := bufio.NewWriter(buf)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.pump(ctx, w, msgs)
	}()

	require.Eventually(t, func() bool { return strings.Contains(buf.String(), "event: state") }, time.Second, 5*time.Millisecond)
	_, err := queue.Set(ctx, "staff-1", 7)
	require.NoError(t, err)
	msgs <- `{"type":"queue_set"}`
	close(msgs)
	<-done

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "retry: 3000\n\n"))
	states := decodeStateFrames(t, out)
	require.Len(t, states, 2)
	assert.Equal(t, int64(-1), states[0].CurrentNumber)
	assert.Equal(t, int64(7), states[1].CurrentNumber)
}

func TestStreamHandler_KeepAliveTickRereadsState(t *testing.T) {
	h, queue := newStreamFixture(t)
	h.keepAlive = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buf := &lockedBuffer{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.pump(ctx, bufio.NewWriter(buf), make(chan string))
	}()

	require.Eventually(t, func() bool { return strings.Contains(buf.String(), "event: state") }, time.Second, 5*time.Millisecond)
	_, err := queue.Set(context.Background(), "staff-1", 12)
	require.NoError(t, err)

	// No change message is delivered; only the tick can pick this up.
	require.Eventually(t, func() bool { return strings.Contains(buf.String(), `"currentNumber":12`) }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestStreamHandler_StopsOnShutdown(t *testing.T) {
	h, _ := newStreamFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.pump(ctx, bufio.NewWriter(&lockedBuffer{}), make(chan string))
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after shutdown")
	}
}
