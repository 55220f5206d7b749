package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"universo-edu/internal/domain"
	"universo-edu/internal/infra/metrics"
)

// inactivityTTL сессия без новых сообщений удаляется хранилищем.
const inactivityTTL = 24 * time.Hour

const keyPrefix = "chat:session:"

// RedisStore реализует domain.SessionRepo поверх Redis. Истечение сессии
// обеспечивается TTL ключа, обновляемым при каждой записи.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.SessionRepo = (*RedisStore)(nil)

// NewRedisStore создаёт хранилище сессий.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: inactivityTTL}
}

func (s *RedisStore) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// GetSession возвращает сессию по идентификатору.
func (s *RedisStore) GetSession(id string) (domain.ChatSession, error) {
	ctx, cancel := s.connCtx()
	defer cancel()

	start := time.Now()
	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	metrics.ObserveNetworkRequest("redis", "session_get", "chat_sessions", start, err)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ChatSession{}, domain.ErrNotFound
		}
		return domain.ChatSession{}, fmt.Errorf("чтение сессии: %w", err)
	}
	var session domain.ChatSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.ChatSession{}, fmt.Errorf("декодирование сессии: %w", err)
	}
	return session, nil
}

// SaveSession сохраняет сессию и продлевает TTL неактивности.
func (s *RedisStore) SaveSession(session domain.ChatSession) error {
	if session.SessionID == "" {
		return fmt.Errorf("%w: session id is empty", domain.ErrValidation)
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("кодирование сессии: %w", err)
	}
	ctx, cancel := s.connCtx()
	defer cancel()

	start := time.Now()
	err = s.client.Set(ctx, keyPrefix+session.SessionID, payload, s.ttl).Err()
	metrics.ObserveNetworkRequest("redis", "session_set", "chat_sessions", start, err)
	if err != nil {
		return fmt.Errorf("запись сессии: %w", err)
	}
	return nil
}

// DeleteSession удаляет сессию без возможности восстановления.
func (s *RedisStore) DeleteSession(id string) error {
	ctx, cancel := s.connCtx()
	defer cancel()

	start := time.Now()
	err := s.client.Del(ctx, keyPrefix+id).Err()
	metrics.ObserveNetworkRequest("redis", "session_del", "chat_sessions", start, err)
	if err != nil {
		return fmt.Errorf("удаление сессии: %w", err)
	}
	return nil
}
