package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gregtusar/pairs/pkg/models"
)

const DefaultRedisKey = "pairs:positions"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisStore keeps positions in one hash. Save builds the new hash under a
// staging key and renames it over the live key.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Addr, err)
	}
	return newRedisStore(client, opts.Key), nil
}

func newRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) stagingKey() string {
	return s.key + ":staging"
}

func (s *RedisStore) Load(ctx context.Context) (models.Positions, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}

	positions := make(models.Positions, len(fields))
	for k, v := range fields {
		positions[k] = models.PositionState(v)
	}
	if err := validate(positions); err != nil {
		return nil, fmt.Errorf("%s: %w", s.key, err)
	}
	return positions, nil
}

func (s *RedisStore) Save(ctx context.Context, positions models.Positions) error {
	if err := validate(positions); err != nil {
		return err
	}

	if len(positions) == 0 {
		if err := s.client.Del(ctx, s.key).Err(); err != nil {
			return fmt.Errorf("del %s: %w", s.key, err)
		}
		return nil
	}

	staging := s.stagingKey()
	if err := s.client.Del(ctx, staging).Err(); err != nil {
		return fmt.Errorf("del %s: %w", staging, err)
	}

	values := make([]interface{}, 0, 2*len(positions))
	for _, k := range sortedKeys(positions) {
		values = append(values, k, string(positions[k]))
	}
	if err := s.client.HSet(ctx, staging, values...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", staging, err)
	}
	if err := s.client.Rename(ctx, staging, s.key).Err(); err != nil {
		return fmt.Errorf("rename %s: %w", staging, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
