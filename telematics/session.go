package telematics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session is an authenticated API session.
type Session struct {
	Database  string `json:"database"`
	UserName  string `json:"userName"`
	SessionID string `json:"sessionId"`
}

// SessionCache stores sessions with a TTL.
type SessionCache interface {
	Get(ctx context.Context, key string) (*Session, bool, error)
	Set(ctx context.Context, key string, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	session *Session
	expires time.Time
}

// MemorySessionCache is an in-process SessionCache. Expired entries are
// dropped on read.
type MemorySessionCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemorySessionCache) Get(_ context.Context, key string) (*Session, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.session, true, nil
}

func (c *MemorySessionCache) Set(_ context.Context, key string, s *Session, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{session: s, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemorySessionCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// RedisSessionCache shares sessions between instances.
type RedisSessionCache struct {
	client *redis.Client
}

func NewRedisSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

func sessionKey(key string) string {
	return "linehaul:telematics:session:" + key
}

func (c *RedisSessionCache) Get(ctx context.Context, key string) (*Session, bool, error) {
	data, err := c.client.Get(ctx, sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, key string, s *Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(key), data, ttl).Err()
}

func (c *RedisSessionCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, sessionKey(key)).Err()
}
