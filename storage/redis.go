package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

const scanBatchSize = 100

// Options is re-exported so callers don't need to import go-redis directly.
type Options = redis.Options

var _ Store = (*Redis)(nil)

// Redis is the Store implementation backed by a Redis server. All writes share a
// single TTL; touching a record with Set or CompareAndSwap resets its expiry. A
// non-empty namespace is prepended to every key so several deployments can share
// one Redis instance.
type Redis struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

func NewRedis(options Options, namespace string, ttl time.Duration) *Redis {
	return &Redis{
		client:    redis.NewClient(&options),
		namespace: namespace,
		ttl:       ttl,
	}
}

// NewRedisFromClient wraps an existing client. Used by tests that hand in a
// miniredis-backed client.
func NewRedisFromClient(client *redis.Client, namespace string, ttl time.Duration) *Redis {
	return &Redis{client: client, namespace: namespace, ttl: ttl}
}

func (r *Redis) prefixed(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	bz, err := r.client.Get(ctx, r.prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to get %q", key)
	}
	return bz, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return eris.Wrapf(r.client.Set(ctx, r.prefixed(key), value, r.ttl).Err(), "failed to set %q", key)
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return eris.Wrapf(r.client.Del(ctx, r.prefixed(key)).Err(), "failed to delete %q", key)
}

// ScanPrefix returns the stored keys matching the prefix, with the namespace
// stripped so callers see the keys they wrote.
func (r *Redis) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefixed(prefix)+"*", scanBatchSize).Result()
		if err != nil {
			return nil, eris.Wrapf(err, "failed to scan prefix %q", prefix)
		}
		for _, key := range batch {
			if r.namespace != "" {
				key = strings.TrimPrefix(key, r.namespace+":")
			}
			keys = append(keys, key)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// CompareAndSwap uses WATCH so the write is rejected if another client touches the
// key between the read and the EXEC.
func (r *Redis) CompareAndSwap(ctx context.Context, key string, old, value []byte) error {
	prefixedKey := r.prefixed(key)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, prefixedKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if old != nil {
				return ErrConflict
			}
		case err != nil:
			return eris.Wrapf(err, "failed to read %q under watch", key)
		default:
			if old == nil || !bytes.Equal(current, old) {
				return ErrConflict
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, prefixedKey, value, r.ttl)
			return nil
		})
		return eris.Wrapf(err, "failed to write %q", key)
	}, prefixedKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (r *Redis) Close() error {
	log.Info().Msg("Closing storage connection.")
	if err := r.client.Close(); err != nil {
		return eris.Wrap(err, "")
	}
	return nil
}
