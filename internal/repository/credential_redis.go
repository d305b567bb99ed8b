package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chat-client/internal/domain"
)

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCredentialStore guarda la sesion bajo claves propias de la instalacion.
// SET sobre una sola clave es atomico, no hace falta lock local.
type RedisCredentialStore struct {
	client  redisKV
	prefix  string
	timeout time.Duration
	logger  *zap.Logger
}

func NewRedisCredentialStore(client *redis.Client, installationID string, logger *zap.Logger) *RedisCredentialStore {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCredentialStore{
		client:  client,
		prefix:  redisPrefix(installationID),
		timeout: 500 * time.Millisecond,
		logger:  logger,
	}
}

func redisPrefix(installationID string) string {
	id := strings.TrimSpace(installationID)
	if id == "" {
		id = "default"
	}
	return "chat-client:" + id + ":"
}

func (s *RedisCredentialStore) sessionKey() string  { return s.prefix + "session" }
func (s *RedisCredentialStore) verifiedKey() string { return s.prefix + "verified_at" }

func (s *RedisCredentialStore) Read(ctx context.Context) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.sessionKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		s.logger.Warn("corrupt session record, clearing", zap.String("key", s.sessionKey()), zap.Error(err))
		if err := s.client.Del(ctx, s.sessionKey(), s.verifiedKey()).Err(); err != nil {
			return nil, fmt.Errorf("redis repair session: %w", err)
		}
		return nil, nil
	}
	return &session, nil
}

func (s *RedisCredentialStore) Write(ctx context.Context, session domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Set(ctx, s.sessionKey(), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *RedisCredentialStore) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Del(ctx, s.sessionKey(), s.verifiedKey()).Err(); err != nil {
		return fmt.Errorf("redis clear session: %w", err)
	}
	return nil
}

func (s *RedisCredentialStore) VerifiedAt(ctx context.Context) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ms, err := s.client.Get(ctx, s.verifiedKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) {
			return time.Time{}, false, fmt.Errorf("redis get verification: %w", err)
		}
		s.logger.Warn("corrupt verification record, clearing", zap.String("key", s.verifiedKey()), zap.Error(err))
		if err := s.client.Del(ctx, s.verifiedKey()).Err(); err != nil {
			return time.Time{}, false, fmt.Errorf("redis repair verification: %w", err)
		}
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *RedisCredentialStore) MarkVerifiedAt(ctx context.Context, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if at.IsZero() {
		if err := s.client.Del(ctx, s.verifiedKey()).Err(); err != nil {
			return fmt.Errorf("redis reset verification: %w", err)
		}
		return nil
	}
	if err := s.client.Set(ctx, s.verifiedKey(), at.UnixMilli(), 0).Err(); err != nil {
		return fmt.Errorf("redis set verification: %w", err)
	}
	return nil
}
