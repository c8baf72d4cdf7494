package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := NewRedisStore(rdb, "blog", "tab-1", ttl)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return store, mr, rdb
}

func TestRedisStoreWriteReadClear(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, 0)
	ctx := context.Background()

	if _, found, err := store.Read(ctx); err != nil || found {
		t.Fatalf("expected absent before write, found=%v err=%v", found, err)
	}

	want := Record{AccessToken: "tok1", Username: "alice", IsAdmin: true}
	if err := store.Write(ctx, want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, found, err := store.Read(ctx)
	if err != nil || !found {
		t.Fatalf("read after write: found=%v err=%v", found, err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if v := mr.HGet("blog:tab:tab-1", "isAdmin"); v != "true" {
		t.Fatalf("expected isAdmin field \"true\", got %q", v)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if _, found, _ := store.Read(ctx); found {
		t.Fatal("expected absent after clear")
	}
}

func TestRedisStoreWriteReplacesAllFields(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, 0)
	ctx := context.Background()

	if err := store.Write(ctx, Record{AccessToken: "a", Username: "alice", IsAdmin: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	mr.HSet("blog:tab:tab-1", "stale", "x")

	if err := store.Write(ctx, Record{AccessToken: "b", Username: "bob"}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	keys, err := mr.HKeys("blog:tab:tab-1")
	if err != nil {
		t.Fatalf("hkeys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected exactly three fields, got %v", keys)
	}

	got, _, _ := store.Read(ctx)
	if got.AccessToken != "b" || got.Username != "bob" || got.IsAdmin {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestRedisStoreTTLExpiresRecord(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, time.Minute)
	ctx := context.Background()

	if err := store.Write(ctx, Record{AccessToken: "tok", Username: "alice"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ttl := mr.TTL("blog:tab:tab-1"); ttl != time.Minute {
		t.Fatalf("expected one minute ttl, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, found, _ := store.Read(ctx); found {
		t.Fatal("expected record to expire")
	}
}

func TestRedisStoreMissingTokenIsAbsent(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, 0)
	mr.HSet("blog:tab:tab-1", "username", "alice")

	if _, found, err := store.Read(context.Background()); err != nil || found {
		t.Fatalf("expected partial record to read as absent, found=%v err=%v", found, err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, 0)
	mr.SetError("LOADING redis is loading the dataset in memory")
	ctx := context.Background()

	if err := store.Write(ctx, Record{AccessToken: "tok"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on write, got %v", err)
	}
	if _, _, err := store.Read(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on read, got %v", err)
	}
	if err := store.Clear(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on clear, got %v", err)
	}
}

func TestRedisStoreTabsAreIsolated(t *testing.T) {
	store, _, rdb := newRedisStoreTest(t, 0)
	other, err := NewRedisStore(rdb, "blog", "tab-2", 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, Record{AccessToken: "tok", Username: "alice"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, found, _ := other.Read(ctx); found {
		t.Fatal("expected other tab to see nothing")
	}
}

func TestNewRedisStoreValidation(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	if _, err := NewRedisStore(nil, "p", "tab", 0); err == nil {
		t.Fatal("expected nil client to be rejected")
	}
	if _, err := NewRedisStore(rdb, "p", "  ", 0); err == nil {
		t.Fatal("expected blank tab id to be rejected")
	}
	if _, err := NewRedisStore(rdb, "p", "tab", -time.Second); err == nil {
		t.Fatal("expected negative ttl to be rejected")
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, found, _ := store.Read(ctx); found {
		t.Fatal("expected empty store")
	}
	if err := store.Write(ctx, Record{AccessToken: "tok", Username: "alice"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, found, _ := store.Read(ctx)
	if !found || got.AccessToken != "tok" {
		t.Fatalf("unexpected read %+v found=%v", got, found)
	}
	_ = store.Clear(ctx)
	_ = store.Clear(ctx)
	if _, found, _ := store.Read(ctx); found {
		t.Fatal("expected cleared store")
	}
}

func TestMemoryStoreMissingTokenIsAbsent(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Write(context.Background(), Record{Username: "alice"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, found, _ := store.Read(context.Background()); found {
		t.Fatal("expected record without token to read as absent")
	}
}

func TestNewTabIDIsValid(t *testing.T) {
	id := NewTabID()
	if !ValidTabID(id) {
		t.Fatalf("expected %q to be a valid tab id", id)
	}
	if ValidTabID("not-a-uuid") {
		t.Fatal("expected invalid tab id to be rejected")
	}
}

func TestRedisStorePing(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, 0)

	if _, err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	mr.SetError("LOADING redis is loading the dataset in memory")
	if _, err := store.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
