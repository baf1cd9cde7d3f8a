package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStorage implements the Storage interface using Redis for session
// snapshots and player flags
type RedisStorage struct {
	client     *redis.Client
	logger     *slog.Logger
	sessionTTL time.Duration
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(redisAddr string, sessionTTL time.Duration, logger *slog.Logger) *RedisStorage {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}

	return &RedisStorage{
		client:     rdb,
		logger:     logger,
		sessionTTL: sessionTTL,
	}
}

// Client returns the underlying Redis client for pub/sub consumers
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Session snapshot operations

func sessionKey(id uuid.UUID) string {
	return "conversation:" + id.String()
}

func (r *RedisStorage) SaveSession(ctx context.Context, id uuid.UUID, snap *Snapshot) error {
	snap.UpdatedAt = time.Now()

	data, err := json.Marshal(snap)
	if err != nil {
		r.logger.Error("Failed to marshal session snapshot", "uuid", id, "error", err)
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}

	cmd := r.client.Set(ctx, sessionKey(id), string(data), r.sessionTTL)
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to save session snapshot", "uuid", id, "error", err)
		return fmt.Errorf("failed to save session snapshot: %w", err)
	}

	return nil
}

func (r *RedisStorage) LoadSession(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	cmd := r.client.Get(ctx, sessionKey(id))
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil // Return nil for not found
		}
		r.logger.Error("Failed to load session snapshot", "uuid", id, "error", err)
		return nil, fmt.Errorf("failed to load session snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(cmd.Val()), &snap); err != nil {
		r.logger.Error("Failed to unmarshal session snapshot", "uuid", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}

	return &snap, nil
}

func (r *RedisStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	cmd := r.client.Del(ctx, sessionKey(id))
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to delete session snapshot", "uuid", id, "error", err)
		return fmt.Errorf("failed to delete session snapshot: %w", err)
	}
	return nil
}

// Flag operations (Redis hash per player)

func flagsKey(playerID string) string {
	return "flags:" + playerID
}

func (r *RedisStorage) GetFlags(ctx context.Context, playerID string) (map[string]string, error) {
	cmd := r.client.HGetAll(ctx, flagsKey(playerID))
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to load flags", "player_id", playerID, "error", err)
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}
	return cmd.Val(), nil
}

func (r *RedisStorage) SetFlag(ctx context.Context, playerID, key, value string) error {
	cmd := r.client.HSet(ctx, flagsKey(playerID), key, value)
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to set flag", "player_id", playerID, "key", key, "error", err)
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}

func (r *RedisStorage) SetFlags(ctx context.Context, playerID string, flags map[string]string) error {
	if len(flags) == 0 {
		return nil
	}
	values := make([]any, 0, len(flags)*2)
	for k, v := range flags {
		values = append(values, k, v)
	}
	cmd := r.client.HSet(ctx, flagsKey(playerID), values...)
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to set flags", "player_id", playerID, "error", err)
		return fmt.Errorf("failed to set flags: %w", err)
	}
	return nil
}
