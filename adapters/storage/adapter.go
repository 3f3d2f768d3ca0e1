// Package storage provides durable backends for the progress marker.
// Supports multiple backends: file, PostgreSQL, Redis and memory.
package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"usage-cost/core/progress"
	"usage-cost/internal/errors"
)

// Backend is a storage backend type
type Backend string

const (
	BackendFile     Backend = "file"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendMemory   Backend = "memory"
)

// DefaultKey names the marker in shared backends.
const DefaultKey = "usage-cost:progress"

// Config selects and configures a backend.
type Config struct {
	// Backend is one of file, postgres, redis, memory
	Backend string `hcl:"backend,optional" json:"backend"`

	// File is the marker file of the file backend
	File string `hcl:"file,optional" json:"file"`

	// PostgresDSN is the connection string of the postgres backend
	PostgresDSN string `hcl:"postgres_dsn,optional" json:"-"`

	// RedisAddr, RedisPassword and RedisDB address the redis backend
	RedisAddr     string `hcl:"redis_addr,optional" json:"redis_addr"`
	RedisPassword string `hcl:"redis_password,optional" json:"-"`
	RedisDB       int    `hcl:"redis_db,optional" json:"redis_db"`

	// Key names the marker row or key in shared backends
	Key string `hcl:"key,optional" json:"key"`
}

// DefaultConfig keeps the marker in a local file named progress.
func DefaultConfig() Config {
	return Config{
		Backend: string(BackendFile),
		File:    "progress",
		Key:     DefaultKey,
	}
}

// Tracker is a progress tracker holding backend resources.
type Tracker interface {
	progress.Tracker
	io.Closer
}

// NewTracker connects the configured backend.
func NewTracker(ctx context.Context, cfg Config) (Tracker, error) {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}

	switch Backend(cfg.Backend) {
	case BackendFile, "":
		path := cfg.File
		if path == "" {
			path = "progress"
		}
		return fileTracker{progress.NewFileTracker(path)}, nil

	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.Config("postgres progress backend needs postgres_dsn")
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, errors.Progress("failed to connect postgres", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, errors.Progress("failed to ping postgres", err)
		}
		t := NewPostgresTracker(pool, key)
		t.closer = pool.Close
		if err := t.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return t, nil

	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.Config("redis progress backend needs redis_addr")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, errors.Progress("failed to ping redis", err)
		}
		t := NewRedisTracker(rdb, key)
		t.closer = rdb.Close
		return t, nil

	case BackendMemory:
		return NewMemoryTracker(""), nil

	default:
		return nil, errors.Config(fmt.Sprintf("unsupported progress backend: %s", cfg.Backend))
	}
}

// fileTracker adds a no-op Close to the file tracker.
type fileTracker struct {
	*progress.FileTracker
}

func (fileTracker) Close() error {
	return nil
}

// MemoryTracker keeps the marker in memory (for testing and dry runs)
type MemoryTracker struct {
	mu     sync.RWMutex
	marker string
}

// NewMemoryTracker creates a memory tracker starting at marker
func NewMemoryTracker(marker string) *MemoryTracker {
	return &MemoryTracker{marker: marker}
}

func (t *MemoryTracker) Load(ctx context.Context) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.marker, nil
}

func (t *MemoryTracker) Advance(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marker = id
	return nil
}

func (t *MemoryTracker) Close() error {
	return nil
}

// Ensure interfaces are implemented
var _ Tracker = (*MemoryTracker)(nil)
var _ Tracker = (*PostgresTracker)(nil)
var _ Tracker = (*RedisTracker)(nil)
var _ Tracker = fileTracker{}
