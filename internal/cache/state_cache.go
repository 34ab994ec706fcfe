package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/queue-service/internal/domain"
)

// StateKey is the Redis key holding the latest queue snapshot.
const StateKey = "queue:state"

// StateCache keeps a short-lived copy of the queue state in Redis so polling
// displays do not hit the database on every tick. A nil *StateCache is a
// cache that always misses.
type StateCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

type cachedState struct {
	CurrentNumber    int64     `json:"current_number"`
	StartFrom        int64     `json:"start_from"`
	Epoch            int64     `json:"epoch"`
	NextNumber       int64     `json:"next_number"`
	OutstandingCount int64     `json:"outstanding_count"`
	Revision         int64     `json:"revision"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// storeState writes ARGV[1] unless the cached snapshot has a higher revision
// than ARGV[2]. ARGV[3] is the TTL in milliseconds. Returns 1 when written.
var storeState = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
  local ok, decoded = pcall(cjson.decode, current)
  if ok and type(decoded) == 'table' then
    local rev = tonumber(decoded['revision'])
    if rev and rev > tonumber(ARGV[2]) then
      return 0
    end
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// NewStateCache returns nil when either the client is missing or ttl disables caching.
func NewStateCache(client redis.Cmdable, ttl time.Duration) *StateCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &StateCache{client: client, ttl: ttl}
}

// Get returns the cached state. ok is false on a miss.
func (c *StateCache) Get(ctx context.Context) (*domain.QueueState, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, StateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached state: %w", err)
	}
	var cached cachedState
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, fmt.Errorf("decode cached state: %w", err)
	}
	return &domain.QueueState{
		CurrentNumber:    cached.CurrentNumber,
		StartFrom:        cached.StartFrom,
		Epoch:            cached.Epoch,
		NextNumber:       cached.NextNumber,
		OutstandingCount: cached.OutstandingCount,
		Revision:         cached.Revision,
		UpdatedAt:        cached.UpdatedAt,
	}, true, nil
}

// Set stores state for the configured TTL. A snapshot older than the cached
// one is dropped, so a slow reader cannot overwrite a newer write-through.
// It reports whether the cache now holds state.
func (c *StateCache) Set(ctx context.Context, state *domain.QueueState) (bool, error) {
	if c == nil || state == nil {
		return false, nil
	}
	payload, err := EncodeState(state)
	if err != nil {
		return false, err
	}
	written, err := storeState.Run(ctx, c.client, []string{StateKey}, payload, state.Revision, c.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("store cached state: %w", err)
	}
	return written == 1, nil
}

// Invalidate drops the cached state.
func (c *StateCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, StateKey).Err()
}

// EncodeState returns the cache representation of state.
func EncodeState(state *domain.QueueState) (string, error) {
	payload, err := json.Marshal(cachedState{
		CurrentNumber:    state.CurrentNumber,
		StartFrom:        state.StartFrom,
		Epoch:            state.Epoch,
		NextNumber:       state.NextNumber,
		OutstandingCount: state.OutstandingCount,
		Revision:         state.Revision,
		UpdatedAt:        state.UpdatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return string(payload), nil
}
