package storage_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gotest.tools/v3/assert"

	"pkg.world.dev/lobby/storage"
)

const testTTL = 5*time.Hour + 30*time.Minute

func newTestStore(t *testing.T) (*storage.Redis, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return storage.NewRedisFromClient(client, "", testTTL), s
}

func TestSetAndGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.NilError(t, store.Set(ctx, "team:abc", []byte(`{"id":"abc"}`)))
	got, err := store.Get(ctx, "team:abc")
	assert.NilError(t, err)
	assert.Equal(t, string(got), `{"id":"abc"}`)
}

func TestGetMissingKeyIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "team:nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordsExpireAfterTTL(t *testing.T) {
	store, s := newTestStore(t)
	ctx := context.Background()

	assert.NilError(t, store.Set(ctx, "team:abc", []byte("x")))
	s.FastForward(testTTL + time.Second)
	_, err := store.Get(ctx, "team:abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.NilError(t, store.Set(ctx, "team:abc", []byte("x")))
	assert.NilError(t, store.Delete(ctx, "team:abc"))
	_, err := store.Get(ctx, "team:abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScanPrefixOnlyMatchesPrefix(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.NilError(t, store.Set(ctx, "team:1", []byte("a")))
	assert.NilError(t, store.Set(ctx, "team:2", []byte("b")))
	assert.NilError(t, store.Set(ctx, "lobby:1", []byte("c")))
	assert.NilError(t, store.Set(ctx, "team-player:1", []byte("d")))

	keys, err := store.ScanPrefix(ctx, "team:")
	assert.NilError(t, err)
	sort.Strings(keys)
	assert.DeepEqual(t, keys, []string{"team:1", "team:2"})
}

func TestCompareAndSwap(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Create-if-absent.
	assert.NilError(t, store.CompareAndSwap(ctx, "team:abc", nil, []byte("v1")))
	// Creating again conflicts.
	assert.ErrorIs(t, store.CompareAndSwap(ctx, "team:abc", nil, []byte("v1")), storage.ErrConflict)

	// Swap with the right expected value succeeds.
	assert.NilError(t, store.CompareAndSwap(ctx, "team:abc", []byte("v1"), []byte("v2")))
	got, err := store.Get(ctx, "team:abc")
	assert.NilError(t, err)
	assert.Equal(t, string(got), "v2")

	// A stale expected value is rejected and the record is untouched.
	assert.ErrorIs(t, store.CompareAndSwap(ctx, "team:abc", []byte("v1"), []byte("v3")), storage.ErrConflict)
	got, err = store.Get(ctx, "team:abc")
	assert.NilError(t, err)
	assert.Equal(t, string(got), "v2")
}

func TestCompareAndSwapOnMissingKeyConflicts(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.CompareAndSwap(context.Background(), "team:gone", []byte("v1"), []byte("v2"))
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestNamespacesIsolateDeployments(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	east := storage.NewRedisFromClient(client, "east", testTTL)
	west := storage.NewRedisFromClient(client, "west", testTTL)
	ctx := context.Background()

	assert.NilError(t, east.Set(ctx, "team:1", []byte("a")))
	assert.NilError(t, west.Set(ctx, "team:1", []byte("b")))

	got, err := east.Get(ctx, "team:1")
	assert.NilError(t, err)
	assert.Equal(t, string(got), "a")

	// Scans stay inside the namespace and return unprefixed keys.
	keys, err := west.ScanPrefix(ctx, "team:")
	assert.NilError(t, err)
	assert.DeepEqual(t, keys, []string{"team:1"})
}
