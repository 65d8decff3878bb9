// README: Driver reservations backed by Redis, with an in-process fallback.
package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"taxidispatch/internal/types"
)

const reservationKeyPrefix = "matching:driver:%s:reservation"

// releaseScript deletes the key only when it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisReserver struct {
	redis *redis.Client
}

func NewRedisReserver(client *redis.Client) *RedisReserver {
	return &RedisReserver{redis: client}
}

func (s *RedisReserver) Reserve(ctx context.Context, driverID types.ID, token string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, reservationKey(driverID), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve driver: %w", err)
	}
	return ok, nil
}

func (s *RedisReserver) Release(ctx context.Context, driverID types.ID, token string) error {
	if err := releaseScript.Run(ctx, s.redis, []string{reservationKey(driverID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release driver: %w", err)
	}
	return nil
}

func reservationKey(driverID types.ID) string {
	return fmt.Sprintf(reservationKeyPrefix, string(driverID))
}

// MemoryReserver keeps reservations in process. It only protects a single API instance.
type MemoryReserver struct {
	mu   sync.Mutex
	held map[types.ID]memoryReservation
	now  func() time.Time
}

type memoryReservation struct {
	token   string
	expires time.Time
}

func NewMemoryReserver() *MemoryReserver {
	return &MemoryReserver{held: make(map[types.ID]memoryReservation), now: time.Now}
}

func (m *MemoryReserver) Reserve(_ context.Context, driverID types.ID, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if r, ok := m.held[driverID]; ok && now.Before(r.expires) {
		return false, nil
	}
	m.held[driverID] = memoryReservation{token: token, expires: now.Add(ttl)}
	return true, nil
}

func (m *MemoryReserver) Release(_ context.Context, driverID types.ID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.held[driverID]; ok && r.token == token {
		delete(m.held, driverID)
	}
	return nil
}
