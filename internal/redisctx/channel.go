// Package redisctx provides the Redis-backed durable application context
// channel and device presence registry. The context channel retains only
// the most recent payload per session; a device that was down at publish
// time picks it up on its next activation.
package redisctx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xinchenjiangau/PickUpSoccer/internal/config"
)

// ContextService provides Redis-based durable context and presence operations
type ContextService struct {
	client    *redis.Client
	sessionID string
	logger    *slog.Logger
}

// NewContextService creates a new Redis context service. The session ID
// namespaces the channel so paired devices of different sessions never see
// each other's payloads.
func NewContextService(cfg *config.RedisConfig, sessionID string, logger *slog.Logger) (*ContextService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &ContextService{
		client:    client,
		sessionID: sessionID,
		logger:    logger,
	}, nil
}

// Close closes the Redis connection
func (s *ContextService) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *ContextService) Client() *redis.Client {
	return s.client
}

// contextKey returns the Redis key holding the session's latest payload
func (s *ContextService) contextKey() string {
	return fmt.Sprintf("session:%s:context", s.sessionID)
}

// presenceKey returns the Redis key marking a device as alive
func (s *ContextService) presenceKey(deviceID string) string {
	return fmt.Sprintf("session:%s:presence:%s", s.sessionID, deviceID)
}

// Publish stores a payload as the session's current context, replacing
// whatever was there before.
func (s *ContextService) Publish(ctx context.Context, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding context payload: %w", err)
	}

	if err := s.client.Set(ctx, s.contextKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("publishing context: %w", err)
	}
	return nil
}

// Latest returns the session's current context payload. The second return
// reports whether a payload was present.
func (s *ContextService) Latest(ctx context.Context) (map[string]any, bool, error) {
	data, err := s.client.Get(ctx, s.contextKey()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting context: %w", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false, fmt.Errorf("decoding context payload: %w", err)
	}
	return payload, true, nil
}

// Clear removes the session's current context payload
func (s *ContextService) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.contextKey()).Err(); err != nil {
		return fmt.Errorf("clearing context: %w", err)
	}
	return nil
}

// Heartbeat marks a device as alive for the given TTL. Presence expires on
// its own when the device stops heartbeating.
func (s *ContextService) Heartbeat(ctx context.Context, deviceID string, ttl time.Duration) error {
	key := s.presenceKey(deviceID)
	if err := s.client.Set(ctx, key, time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("setting presence: %w", err)
	}
	return nil
}

// Alive reports whether a device has a live presence marker
func (s *ContextService) Alive(ctx context.Context, deviceID string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.presenceKey(deviceID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking presence: %w", err)
	}
	return exists > 0, nil
}
