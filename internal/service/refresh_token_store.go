package service

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// RefreshTokenStore registra los refresh tokens vigentes por jti. Rotar una
// sesion consume el jti viejo; logout lo revoca.
type RefreshTokenStore interface {
	Store(ctx context.Context, jti, userID string, ttl time.Duration) error
	// Consume borra el jti y devuelve el usuario dueño. ok=false si ya no existe.
	Consume(ctx context.Context, jti string) (userID string, ok bool, err error)
	Revoke(ctx context.Context, jti string) error
}

const (
	defaultRefreshStoreTTL = 30 * 24 * time.Hour
	refreshKeyPrefix       = "auth:refresh:"
	redisStoreTimeout      = 500 * time.Millisecond
)

type memoryRefreshTokenStore struct {
	cache *gocache.Cache
}

// NewMemoryRefreshTokenStore sirve para una sola instancia de la API.
func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{
		cache: gocache.New(defaultRefreshStoreTTL, 10*time.Minute),
	}
}

func (s *memoryRefreshTokenStore) Store(_ context.Context, jti, userID string, ttl time.Duration) error {
	if jti = strings.TrimSpace(jti); jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.cache.Set(jti, userID, ttl)
	return nil
}

func (s *memoryRefreshTokenStore) Consume(_ context.Context, jti string) (string, bool, error) {
	jti = strings.TrimSpace(jti)
	val, ok := s.cache.Get(jti)
	if !ok {
		return "", false, nil
	}
	s.cache.Delete(jti)
	userID, _ := val.(string)
	return userID, true, nil
}

func (s *memoryRefreshTokenStore) Revoke(_ context.Context, jti string) error {
	s.cache.Delete(strings.TrimSpace(jti))
	return nil
}

// redisKV es el subconjunto de *redis.Client que usa el store.
type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisRefreshTokenStore struct {
	client redisKV
}

// NewRedisRefreshTokenStore comparte las sesiones entre instancias de la API.
func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return &redisRefreshTokenStore{client: client}
}

func (s *redisRefreshTokenStore) Store(ctx context.Context, jti, userID string, ttl time.Duration) error {
	if jti = strings.TrimSpace(jti); jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultRefreshStoreTTL
	}
	ctx, cancel := context.WithTimeout(ctx, redisStoreTimeout)
	defer cancel()
	return s.client.Set(ctx, refreshKeyPrefix+jti, userID, ttl).Err()
}

// Consume usa GETDEL: dos rotaciones concurrentes del mismo token no pueden
// ganar las dos.
func (s *redisRefreshTokenStore) Consume(ctx context.Context, jti string) (string, bool, error) {
	if jti = strings.TrimSpace(jti); jti == "" {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisStoreTimeout)
	defer cancel()
	userID, err := s.client.GetDel(ctx, refreshKeyPrefix+jti).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (s *redisRefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	if jti = strings.TrimSpace(jti); jti == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisStoreTimeout)
	defer cancel()
	return s.client.Del(ctx, refreshKeyPrefix+jti).Err()
}
