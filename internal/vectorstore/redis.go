package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the snapshot when no key is configured.
const DefaultRedisKey = "modelhub:rag:index"

// RedisSnapshot stores the snapshot as a single JSON string value.
type RedisSnapshot struct {
	rdb *redis.Client
	key string
}

// NewRedisSnapshot connects to redisURL and verifies the connection.
func NewRedisSnapshot(ctx context.Context, redisURL, key string) (*RedisSnapshot, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, &StorageError{Op: "connect", Location: opts.Addr, Err: err}
	}
	return NewRedisSnapshotFromClient(rdb, key), nil
}

// NewRedisSnapshotFromClient uses an existing client.
func NewRedisSnapshotFromClient(rdb *redis.Client, key string) *RedisSnapshot {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSnapshot{rdb: rdb, key: key}
}

func (r *RedisSnapshot) Location() string {
	return fmt.Sprintf("redis://%s/%s", r.rdb.Options().Addr, r.key)
}

func (r *RedisSnapshot) Load(ctx context.Context) ([]Record, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Location: r.Location(), Err: err}
	}
	return decodeRecords(data, r.Location())
}

func (r *RedisSnapshot) Save(ctx context.Context, records []Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return &StorageError{Op: "encode", Location: r.Location(), Err: err}
	}
	if err := r.rdb.Set(ctx, r.key, data, 0).Err(); err != nil {
		return &StorageError{Op: "write", Location: r.Location(), Err: err}
	}
	return nil
}

// Close releases the client.
func (r *RedisSnapshot) Close() error {
	return r.rdb.Close()
}
