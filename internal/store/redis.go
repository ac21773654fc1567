package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots under "snapshot:<key>". No TTL: snapshots are
// the system of record when this backend is selected.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, "snapshot:"+key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	return s.rdb.Set(ctx, "snapshot:"+key, data, 0).Err()
}
