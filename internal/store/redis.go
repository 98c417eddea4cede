package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	appconfig "chainflow/config"
)

// RedisStore keeps each table as a JSON encoded grid under one key. Range
// writes run in an optimistic WATCH transaction.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(cfg appconfig.RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(client, cfg.KeyPrefix)
}

func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(table string) string { return s.prefix + table }

func (s *RedisStore) load(ctx context.Context, get func(context.Context, string) *redis.StringCmd, table string) ([][]string, error) {
	data, err := get(ctx, s.key(table)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key(table), err)
	}
	var grid [][]string
	if err := json.Unmarshal(data, &grid); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key(table), err)
	}
	if grid == nil {
		grid = [][]string{}
	}
	return grid, nil
}

func (s *RedisStore) ReadAll(ctx context.Context, table string) ([][]string, error) {
	return s.load(ctx, s.client.Get, table)
}

func (s *RedisStore) Clear(ctx context.Context, table string) error {
	return s.client.Set(ctx, s.key(table), "[]", 0).Err()
}

func (s *RedisStore) WriteRange(ctx context.Context, table string, row, col int, values [][]string) error {
	if err := checkAnchor(row, col); err != nil {
		return err
	}
	key := s.key(table)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		grid, err := s.load(ctx, tx.Get, table)
		if err != nil && !errors.Is(err, ErrTableNotFound) {
			return err
		}
		data, err := json.Marshal(applyRange(grid, row, col, values))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) ReadCell(ctx context.Context, table string, ref string) (string, error) {
	row, col, err := ParseA1(ref)
	if err != nil {
		return "", err
	}
	grid, err := s.load(ctx, s.client.Get, table)
	if err != nil {
		return "", err
	}
	return cellAt(grid, row, col), nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
