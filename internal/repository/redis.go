package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/immxrtalbeast/clipguess/internal/domain"
	"github.com/segmentio/encoding/json"
)

const importTokenPrefix = "clipguess:import:"

type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func (s *RedisTokenStore) Put(ctx context.Context, token *domain.ImportToken, ttl time.Duration) error {
	const op = "repository.redis.token.put"

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, importTokenPrefix+token.Token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *RedisTokenStore) Take(ctx context.Context, token string) (*domain.ImportToken, error) {
	const op = "repository.redis.token.take"

	payload, err := s.client.GetDel(ctx, importTokenPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var res domain.ImportToken
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &res, nil
}
