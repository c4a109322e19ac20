// Package redis keeps memory blobs as plain redis string values.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"daw-agent-be/pkg/store"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "daw-agent:blob:"

type Store struct {
	rdb *goredis.Client
	ttl time.Duration
}

var _ store.BlobStore = (*Store)(nil)

// New wraps rdb. A zero ttl keeps blobs forever.
func New(rdb *goredis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, store.ErrEmptyKey
	}
	data, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: load %q: %w", key, err)
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return store.ErrEmptyKey
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis store: save %q: %w", key, err)
	}
	return nil
}

// Close leaves the shared client open; the container owns it.
func (s *Store) Close() error { return nil }
