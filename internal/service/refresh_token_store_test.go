package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedisKV guarda las claves en un map y registra los TTL pedidos.
type fakeRedisKV struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedisKV() *fakeRedisKV {
	return &fakeRedisKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedisKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.data[key] = value.(string)
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedisKV) GetDel(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	val, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	delete(f.data, key)
	cmd.SetVal(val)
	return cmd
}

func (f *fakeRedisKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestMemoryRefreshTokenStoreConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore()

	if err := store.Store(ctx, "jti-1", "u1", time.Minute); err != nil {
		t.Fatalf("store: %v", err)
	}
	owner, ok, err := store.Consume(ctx, " jti-1 ")
	if err != nil || !ok || owner != "u1" {
		t.Fatalf("expected u1 on first consume, got %q %v %v", owner, ok, err)
	}
	if _, ok, _ := store.Consume(ctx, "jti-1"); ok {
		t.Fatalf("jti must not be consumable twice")
	}
}

func TestMemoryRefreshTokenStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore()

	if err := store.Store(ctx, "short", "u1", 30*time.Millisecond); err != nil {
		t.Fatalf("store: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok, _ := store.Consume(ctx, "short"); ok {
		t.Fatalf("expected expired jti gone")
	}
}

func TestMemoryRefreshTokenStoreDefaultTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore().(*memoryRefreshTokenStore)

	before := time.Now()
	if err := store.Store(ctx, "no-ttl", "u1", 0); err != nil {
		t.Fatalf("store: %v", err)
	}
	_, expires, ok := store.cache.GetWithExpiration("no-ttl")
	if !ok {
		t.Fatalf("expected entry stored with default ttl")
	}
	if expires.Before(before.Add(defaultRefreshStoreTTL)) || expires.After(time.Now().Add(defaultRefreshStoreTTL)) {
		t.Fatalf("expected expiry ~%v from now, got %v", defaultRefreshStoreTTL, expires.Sub(before))
	}
}

func TestMemoryRefreshTokenStoreRevokeAndBlankJTI(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore()

	if err := store.Store(ctx, "  ", "u1", time.Minute); err != nil {
		t.Fatalf("blank jti should be ignored, got %v", err)
	}
	if _, ok, _ := store.Consume(ctx, ""); ok {
		t.Fatalf("blank jti must never be valid")
	}

	_ = store.Store(ctx, "jti-2", "u1", time.Minute)
	if err := store.Revoke(ctx, "jti-2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, ok, _ := store.Consume(ctx, "jti-2"); ok {
		t.Fatalf("expected revoked jti gone")
	}
}

func TestRedisRefreshTokenStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newFakeRedisKV()
	store := &redisRefreshTokenStore{client: kv}

	if err := store.Store(ctx, " j1 ", "u1", 0); err != nil {
		t.Fatalf("store: %v", err)
	}
	if kv.data["auth:refresh:j1"] != "u1" || kv.ttls["auth:refresh:j1"] != defaultRefreshStoreTTL {
		t.Fatalf("unexpected redis state: %+v ttl=%v", kv.data, kv.ttls)
	}

	owner, ok, err := store.Consume(ctx, "j1")
	if err != nil || !ok || owner != "u1" {
		t.Fatalf("expected u1, got %q %v %v", owner, ok, err)
	}
	if _, ok, err := store.Consume(ctx, "j1"); err != nil || ok {
		t.Fatalf("expected missing key as not found, got %v %v", ok, err)
	}

	_ = store.Store(ctx, "j2", "u1", time.Hour)
	if err := store.Revoke(ctx, "j2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, exists := kv.data["auth:refresh:j2"]; exists {
		t.Fatalf("expected key deleted")
	}
}

func TestRedisRefreshTokenStoreErrors(t *testing.T) {
	ctx := context.Background()
	kv := newFakeRedisKV()
	kv.err = errors.New("connection refused")
	store := &redisRefreshTokenStore{client: kv}

	if err := store.Store(ctx, "j1", "u1", time.Minute); err == nil {
		t.Fatalf("expected store error")
	}
	if _, _, err := store.Consume(ctx, "j1"); err == nil {
		t.Fatalf("expected consume error")
	}
	if err := store.Revoke(ctx, "j1"); err == nil {
		t.Fatalf("expected revoke error")
	}
	// Un jti vacio nunca llega a redis.
	if err := store.Store(ctx, "", "u1", time.Minute); err != nil {
		t.Fatalf("blank jti should be ignored, got %v", err)
	}
}
