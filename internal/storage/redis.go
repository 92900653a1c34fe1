package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/flowcore/flowexpr/pkg/api"
)

// Redis is an api.Storage backed by Redis, grounded on the teacher's
// persistence.RedisInstanceStore. Key structure:
//
//	<prefix>expr:<fei>   => gob-encoded api.ExpressionRecord
type Redis struct {
	client *redis.Client
	prefix string
}

var _ api.Storage = (*Redis)(nil)

// NewRedis creates a Redis store. prefix is optional but recommended
// (e.g. "flowexpr:").
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "flowexpr:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (s *Redis) key(fei api.FEI) string {
	return s.prefix + "expr:" + fei.String()
}

func (s *Redis) Load(ctx context.Context, fei api.FEI) (api.ExpressionRecord, error) {
	blob, err := s.client.Get(ctx, s.key(fei)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return api.ExpressionRecord{}, api.ErrExpressionNotFound
		}
		return api.ExpressionRecord{}, err
	}
	return decodeRecord(blob)
}

func (s *Redis) Save(ctx context.Context, rec api.ExpressionRecord) error {
	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(rec.Fei), blob, 0).Err()
}

func (s *Redis) Delete(ctx context.Context, fei api.FEI) error {
	return s.client.Del(ctx, s.key(fei)).Err()
}
