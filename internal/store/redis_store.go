package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int

	// Prefix namespaces all keys. Defaults to "annealcycle".
	Prefix string
	// TTL expires checkpoints after the given duration. Zero keeps them.
	TTL time.Duration
}

// RedisStore keeps checkpoints in Redis so several servers can share them.
// Each checkpoint is one JSON string; a set indexes the job IDs.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisStore(client, opts), nil
}

func newRedisStore(client *redis.Client, opts RedisOptions) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "annealcycle"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *RedisStore) key(jobID string) string {
	return s.prefix + ":checkpoint:" + jobID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":checkpoints"
}

func (s *RedisStore) SaveCheckpoint(ctx context.Context, jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(jobID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "backend", "redis")
	return nil
}

func (s *RedisStore) LoadCheckpoint(ctx context.Context, jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	data, err := s.client.Get(ctx, s.key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListCheckpoints reads every indexed checkpoint. IDs whose key expired are
// dropped from the index.
func (s *RedisStore) ListCheckpoints(ctx context.Context) ([]CheckpointInfo, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	infos := []CheckpointInfo{}
	if len(ids) == 0 {
		return infos, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}

	var stale []interface{}
	for i, val := range vals {
		str, ok := val.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var checkpoint Checkpoint
		if err := json.Unmarshal([]byte(str), &checkpoint); err != nil {
			slog.Warn("Failed to load checkpoint for listing", "jobID", ids[i], "error", err)
			continue
		}
		infos = append(infos, checkpoint.ToInfo())
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			slog.Warn("Failed to prune checkpoint index", "error", err)
		}
	}
	sortNewestFirst(infos)
	return infos, nil
}

func (s *RedisStore) DeleteCheckpoint(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(jobID))
	pipe.SRem(ctx, s.indexKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if del.Val() == 0 {
		return &NotFoundError{JobID: jobID}
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
