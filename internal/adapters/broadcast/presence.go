package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"clipstream-client/internal/domain"
	"clipstream-client/internal/infra/metrics"
)

// Ключ членства истекает сам: пропавший клиент выпадает из "онлайн"
// без явного прощания. Метка последнего визита живёт отдельно и не истекает.
const (
	onlineTTL         = time.Minute
	onlineKeyPrefix   = "presence:online:"
	lastSeenKeyPrefix = "presence:last_seen:"
)

// RedisPresence реализует канал присутствия поверх ключей с TTL.
type RedisPresence struct {
	client *redis.Client
}

var _ domain.Presence = (*RedisPresence)(nil)

// NewPresence создаёт адаптер присутствия.
func NewPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

// Heartbeat продлевает членство пользователя и обновляет метку визита.
func (p *RedisPresence) Heartbeat(ctx context.Context, user uuid.UUID) error {
	if user == uuid.Nil {
		return domain.ErrInvalidInput
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	start := time.Now()
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, onlineKeyPrefix+user.String(), "1", onlineTTL)
		pipe.Set(ctx, lastSeenKeyPrefix+user.String(), now, 0)
		return nil
	})
	metrics.ObserveNetworkRequest("broadcast", "heartbeat", "presence", start, err)
	if err != nil {
		return fmt.Errorf("heartbeat присутствия: %w", err)
	}
	return nil
}

// Online сообщает, жив ли ключ членства пользователя.
func (p *RedisPresence) Online(ctx context.Context, user uuid.UUID) (bool, error) {
	start := time.Now()
	n, err := p.client.Exists(ctx, onlineKeyPrefix+user.String()).Result()
	metrics.ObserveNetworkRequest("broadcast", "online", "presence", start, err)
	if err != nil {
		return false, fmt.Errorf("проверка присутствия: %w", err)
	}
	return n > 0, nil
}

// LastSeen возвращает метку последнего heartbeat пользователя.
// Для никогда не появлявшихся возвращает ErrNotFound.
func (p *RedisPresence) LastSeen(ctx context.Context, user uuid.UUID) (time.Time, error) {
	start := time.Now()
	raw, err := p.client.Get(ctx, lastSeenKeyPrefix+user.String()).Result()
	metrics.ObserveNetworkRequest("broadcast", "last_seen", "presence", start, err)
	if errors.Is(err, redis.Nil) {
		return time.Time{}, domain.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("чтение метки визита: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("разбор метки визита: %w", err)
	}
	return ts, nil
}
