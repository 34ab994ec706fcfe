package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

type queueFixture struct {
	queue   *QueueService
	tickets *TicketService
	events  *recordingDispatcher
}

func newQueueFixture(t *testing.T) queueFixture {
	t.Helper()
	store := newMemoryQueue(t)
	dispatcher := &recordingDispatcher{}
	return queueFixture{
		queue:   NewQueueService(QueueDependencies{QueueRepo: store, Dispatcher: dispatcher}),
		tickets: NewTicketService(TicketDependencies{QueueRepo: store, Dispatcher: dispatcher}),
		events:  dispatcher,
	}
}

func TestQueueService_InitialState(t *testing.T) {
	f := newQueueFixture(t)

	state, err := f.queue.GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), state.CurrentNumber)
	assert.Equal(t, int64(0), state.StartFrom)
	assert.Equal(t, int64(0), state.OutstandingCount)
}

func TestQueueService_ServeScenario(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	_, err := f.queue.Reset(ctx, "staff-1", 0)
	require.NoError(t, err)

	first, err := f.tickets.CreateTicket(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Number)
	second, err := f.tickets.CreateTicket(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Number)

	_, err = f.queue.Next(ctx, "staff-1")
	require.NoError(t, err)

	state, err := f.queue.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.CurrentNumber)
	assert.Equal(t, int64(1), state.OutstandingCount)
}

func TestQueueService_PrevClampsAfterReset(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	_, err := f.queue.Reset(ctx, "staff-1", 10)
	require.NoError(t, err)

	state, err := f.queue.Next(ctx, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), state.CurrentNumber)

	state, err = f.queue.Prev(ctx, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), state.CurrentNumber)

	state, err = f.queue.Prev(ctx, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), state.CurrentNumber)

	got, err := f.queue.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.CurrentNumber)

	assert.Equal(t, []events.EventType{
		events.EventQueueReset,
		events.EventQueueAdvanced,
		events.EventQueueReversed,
	}, f.events.types(), "clamped prev publishes nothing")
}

func TestQueueService_PrevAtInitialFloorIsNoop(t *testing.T) {
	f := newQueueFixture(t)

	state, err := f.queue.Prev(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), state.CurrentNumber)
}

func TestQueueService_NextThenPrevRestores(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	for _, start := range []int64{0, 3, 17} {
		_, err := f.queue.Set(ctx, "staff-1", start)
		require.NoError(t, err)

		_, err = f.queue.Next(ctx, "staff-1")
		require.NoError(t, err)
		state, err := f.queue.Prev(ctx, "staff-1")
		require.NoError(t, err)
		assert.Equal(t, start, state.CurrentNumber)
	}
}

func TestQueueService_NextIsNotBoundedByIssuedTickets(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	_, err := f.tickets.CreateTicket(ctx, 1)
	require.NoError(t, err)

	var state *domain.QueueState
	for i := 0; i < 5; i++ {
		state, err = f.queue.Next(ctx, "staff-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(4), state.CurrentNumber)
	assert.Equal(t, int64(0), state.OutstandingCount)

	ticket, err := f.tickets.CreateTicket(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ticket.Number, "numbering ignores the cursor")
}

func TestQueueService_ResetThenIssueStartsAtBaseline(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.tickets.CreateTicket(ctx, 1)
		require.NoError(t, err)
	}

	state, err := f.queue.Reset(ctx, "staff-1", 25)
	require.NoError(t, err)
	assert.Equal(t, int64(24), state.CurrentNumber)
	assert.Equal(t, int64(25), state.StartFrom)
	assert.Equal(t, int64(0), state.OutstandingCount)

	ticket, err := f.tickets.CreateTicket(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(25), ticket.Number)
}

func TestQueueService_SetOverridesRegardlessOfPriorValue(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	for _, n := range []int64{0, 99, 5, 5} {
		_, err := f.queue.Set(ctx, "staff-1", n)
		require.NoError(t, err)
		state, err := f.queue.GetState(ctx)
		require.NoError(t, err)
		assert.Equal(t, n, state.CurrentNumber)
	}
}

func TestQueueService_RejectsNegativeInput(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	_, err := f.queue.Reset(ctx, "staff-1", -1)
	assertDomainCode(t, err, apperrors.CodeValidation, http.StatusBadRequest)

	_, err = f.queue.Set(ctx, "staff-1", -5)
	assertDomainCode(t, err, apperrors.CodeValidation, http.StatusBadRequest)

	state, err := f.queue.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), state.CurrentNumber)
	assert.Empty(t, f.events.types())
}

func TestQueueService_StorageFailureSurfacesAsStorageError(t *testing.T) {
	down := errors.New("connection refused")
	repo := &stubQueueRepo{
		mutate: func(context.Context, repository.StateMutation) (*domain.QueueState, error) { return nil, down },
		get:    func(context.Context) (*domain.QueueState, error) { return nil, down },
	}
	svc := NewQueueService(QueueDependencies{QueueRepo: repo})

	_, err := svc.Next(context.Background(), "staff-1")
	assertDomainCode(t, err, apperrors.CodeStorage, http.StatusServiceUnavailable)
	assert.ErrorIs(t, err, down)

	_, err = svc.GetState(context.Background())
	assertDomainCode(t, err, apperrors.CodeStorage, http.StatusServiceUnavailable)
}

func TestQueueService_GetStateServedFromCache(t *testing.T) {
	rdb := newFakeRedis()
	c := cache.NewStateCache(rdb, time.Second)
	cached := &domain.QueueState{CurrentNumber: 7, StartFrom: 1, Epoch: 3, NextNumber: 12, OutstandingCount: 4, Revision: 9}
	_, err := c.Set(context.Background(), cached)
	require.NoError(t, err)

	repo := &stubQueueRepo{
		get: func(context.Context) (*domain.QueueState, error) {
			t.Fatal("store should not be read on a cache hit")
			return nil, nil
		},
	}
	svc := NewQueueService(QueueDependencies{QueueRepo: repo, Cache: c})

	state, err := svc.GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), state.CurrentNumber)
	assert.Equal(t, int64(4), state.OutstandingCount)
}

func TestQueueService_GetStateFallsBackWhenCacheFails(t *testing.T) {
	rdb := newFakeRedis()
	rdb.getErr = errors.New("redis timeout")
	stored := &domain.QueueState{CurrentNumber: 2, Epoch: 1, NextNumber: 5, OutstandingCount: 2, Revision: 3}

	repo := &stubQueueRepo{get: func(context.Context) (*domain.QueueState, error) { return stored, nil }}
	svc := NewQueueService(QueueDependencies{QueueRepo: repo, Cache: cache.NewStateCache(rdb, time.Second)})

	state, err := svc.GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stored, state)
	assert.Equal(t, 1, rdb.writes)
}

func TestQueueService_MutationWritesThroughCache(t *testing.T) {
	rdb := newFakeRedis()
	svc := NewQueueService(QueueDependencies{QueueRepo: newMemoryQueue(t), Cache: cache.NewStateCache(rdb, time.Second)})

	state, err := svc.Next(context.Background(), "staff-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.CurrentNumber)

	cached := rdb.cached(t)
	require.NotNil(t, cached)
	assert.Equal(t, int64(0), cached.CurrentNumber)
	assert.Equal(t, state.Revision, cached.Revision)
}

func TestQueueService_SlowReaderCannotOverwriteNewerCursor(t *testing.T) {
	rdb := newFakeRedis()
	gated := newGatedQueueRepo(newMemoryQueue(t))
	svc := NewQueueService(QueueDependencies{QueueRepo: gated, Cache: cache.NewStateCache(rdb, time.Minute)})
	ctx := context.Background()

	readerDone := make(chan *domain.QueueState)
	go func() {
		state, err := svc.GetState(ctx)
		assert.NoError(t, err)
		readerDone <- state
	}()
	<-gated.loaded

	advanced, err := svc.Next(ctx, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), advanced.CurrentNumber)

	close(gated.release)
	slow := <-readerDone
	assert.Equal(t, int64(-1), slow.CurrentNumber, "reader loaded the state before the change")

	state, err := svc.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.CurrentNumber)
	assert.Equal(t, advanced.Revision, rdb.cached(t).Revision)
}

func TestQueueService_GetFreshStateBypassesCache(t *testing.T) {
	rdb := newFakeRedis()
	c := cache.NewStateCache(rdb, time.Minute)
	store := newMemoryQueue(t)
	svc := NewQueueService(QueueDependencies{QueueRepo: store, Cache: c})
	ctx := context.Background()

	_, err := c.Set(ctx, &domain.QueueState{CurrentNumber: 40, Revision: -1})
	require.NoError(t, err)

	state, err := svc.GetFreshState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), state.CurrentNumber)
	assert.Equal(t, int64(-1), rdb.cached(t).CurrentNumber)
}

func TestQueueService_EventCarriesActorAndPreviousNumber(t *testing.T) {
	f := newQueueFixture(t)

	_, err := f.queue.Set(context.Background(), "staff-9", 12)
	require.NoError(t, err)

	require.Len(t, f.events.events, 1)
	event := f.events.events[0]
	assert.Equal(t, events.EventQueueSet, event.Type)
	require.NotNil(t, event.Actor.StaffID)
	assert.Equal(t, "staff-9", *event.Actor.StaffID)
	payload, ok := event.Payload.(events.CursorMovedPayload)
	require.True(t, ok)
	assert.Equal(t, int64(-1), payload.PreviousNumber)
	assert.Equal(t, int64(12), payload.State.CurrentNumber)
	assert.NotEmpty(t, event.ID)
}

func assertDomainCode(t *testing.T, err error, code string, status int) {
	t.Helper()
	require.Error(t, err)
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code)
	assert.Equal(t, status, de.HTTPStatus)
}
