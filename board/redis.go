package board

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// boardTTL keeps yesterday's board readable through the night shift.
const boardTTL = 48 * time.Hour

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func boardKey(terminalID int64, date string) string {
	return fmt.Sprintf("linehaul:board:%d:%s", terminalID, date)
}

func (r *RedisStore) SetRows(ctx context.Context, terminalID int64, date string, rows []Row) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, boardKey(terminalID, date), data, boardTTL).Err()
}

// GetRows returns nil, nil on a cache miss.
func (r *RedisStore) GetRows(ctx context.Context, terminalID int64, date string) ([]Row, error) {
	data, err := r.client.Get(ctx, boardKey(terminalID, date)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rows := []Row{}
	return rows, json.Unmarshal(data, &rows)
}

func (r *RedisStore) Remove(ctx context.Context, terminalID int64, date string) error {
	return r.client.Del(ctx, boardKey(terminalID, date)).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
