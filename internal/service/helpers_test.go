package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/repository"
)

func newMemoryQueue(t *testing.T) repository.QueueRepository {
	t.Helper()
	services := repository.NewMemoryServiceRepository()
	services.Add(domain.Service{Name: "Haircut", Active: true})
	services.Add(domain.Service{Name: "Beard Trim", Active: true})
	return repository.NewMemoryQueueRepository(services)
}

// stubQueueRepo lets tests script store behavior.
type stubQueueRepo struct {
	issue  func(ctx context.Context, serviceID int64) (*domain.Ticket, error)
	mutate func(ctx context.Context, fn repository.StateMutation) (*domain.QueueState, error)
	get    func(ctx context.Context) (*domain.QueueState, error)
	list   func(ctx context.Context, epoch int64, limit, offset int) ([]domain.Ticket, error)
}

func (s *stubQueueRepo) IssueTicket(ctx context.Context, serviceID int64) (*domain.Ticket, error) {
	return s.issue(ctx, serviceID)
}

func (s *stubQueueRepo) MutateState(ctx context.Context, fn repository.StateMutation) (*domain.QueueState, error) {
	return s.mutate(ctx, fn)
}

func (s *stubQueueRepo) GetState(ctx context.Context) (*domain.QueueState, error) {
	return s.get(ctx)
}

func (s *stubQueueRepo) ListTickets(ctx context.Context, epoch int64, limit, offset int) ([]domain.Ticket, error) {
	return s.list(ctx, epoch, limit, offset)
}

// recordingDispatcher captures published events.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeRedis is a map-backed cache server. Its EvalSha applies the same
// newest-revision-wins rule as the cache's store script.
type fakeRedis struct {
	redis.Cmdable

	mu     sync.Mutex
	values map[string]string
	getErr error
	writes int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	val, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) EvalSha(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload := args[0].(string)
	revision := args[1].(int64)
	if current, ok := f.values[keys[0]]; ok {
		var cached struct {
			Revision int64 `json:"revision"`
		}
		if err := json.Unmarshal([]byte(current), &cached); err == nil && cached.Revision > revision {
			return redis.NewCmdResult(int64(0), nil)
		}
	}
	f.values[keys[0]] = payload
	f.writes++
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeRedis) cached(t *testing.T) *domain.QueueState {
	t.Helper()
	f.mu.Lock()
	raw, ok := f.values[cache.StateKey]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	var decoded struct {
		CurrentNumber    int64 `json:"current_number"`
		OutstandingCount int64 `json:"outstanding_count"`
		Revision         int64 `json:"revision"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	return &domain.QueueState{
		CurrentNumber:    decoded.CurrentNumber,
		OutstandingCount: decoded.OutstandingCount,
		Revision:         decoded.Revision,
	}
}

// gatedQueueRepo parks the first GetState after its store read until release
// is closed, so a test can commit a change in between.
type gatedQueueRepo struct {
	repository.QueueRepository

	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func newGatedQueueRepo(inner repository.QueueRepository) *gatedQueueRepo {
	return &gatedQueueRepo{
		QueueRepository: inner,
		loaded:          make(chan struct{}),
		release:         make(chan struct{}),
	}
}

func (g *gatedQueueRepo) GetState(ctx context.Context) (*domain.QueueState, error) {
	state, err := g.QueueRepository.GetState(ctx)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.loaded)
		<-g.release
	}
	return state, err
}
