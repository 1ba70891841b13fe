// Package kvstore provides the shared key/value state an InvocationContext
// carries per spec: "invocation context ... carries cancellation signal and
// shared kv state". A swarm's shared_context is kept by the swarm runner
// itself and does not use this package. Two implementations are provided:
// an in-process map, and a Redis-backed store whose keys are namespaced by
// a prefix.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store is a minimal shared key/value contract. Values must be
// JSON-serializable; Get returns a value previously stored with Set, decoded
// into out.
type Store interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// InMem is a Store backed by a process-local map. It is not installed
// automatically: a State whose KV is nil has no shared kv state.
type InMem struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMem constructs an empty in-memory Store.
func NewInMem() *InMem {
	return &InMem{data: make(map[string][]byte)}
}

// Get implements Store.
func (s *InMem) Get(_ context.Context, key string, out any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("kvstore: decode %q: %w", key, err)
	}
	return true, nil
}

// Set implements Store.
func (s *InMem) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvstore: encode %q: %w", key, err)
	}
	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *InMem) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Redis is a Store that keeps each entry as a plain Redis string key holding
// the JSON-encoded value. Keys are namespaced under prefix so multiple
// invocations can share one Redis database.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a Redis-backed Store. prefix namespaces all keys
// (typically the run id) so concurrent invocations never collide.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (s *Redis) namespaced(key string) string {
	return s.prefix + ":" + key
}

// Get implements Store.
func (s *Redis) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, err := s.client.Get(ctx, s.namespaced(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kvstore: redis get %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("kvstore: decode %q: %w", key, err)
	}
	return true, nil
}

// Set implements Store.
func (s *Redis) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvstore: encode %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.namespaced(key), raw, 0).Err(); err != nil {
		return fmt.Errorf("kvstore: redis set %q: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.namespaced(key)).Err(); err != nil {
		return fmt.Errorf("kvstore: redis del %q: %w", key, err)
	}
	return nil
}
