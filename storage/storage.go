package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record exists for the given key.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned by CompareAndSwap when the stored value no longer
	// matches the expected one. Callers should re-read and decide whether to retry.
	ErrConflict = errors.New("value changed")
)

// Store is the ephemeral state store that holds all match-time state. Every record
// carries a time-to-live; expiry is the only cleanup mechanism, so callers never need
// to garbage collect. Implementations are chosen at startup and must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// ScanPrefix returns every key that starts with the given prefix.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
	// CompareAndSwap writes value only if the stored bytes still equal old. A nil old
	// means "create only if the key is absent". On mismatch it returns ErrConflict
	// and leaves the record untouched.
	CompareAndSwap(ctx context.Context, key string, old, value []byte) error
	Close() error
}
