package storage

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usage-cost/internal/errors"
)

type fakeRow struct {
	val string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.val
	return nil
}

// fakeDB models the progress table as a map.
type fakeDB struct {
	rows    map[string]string
	execErr error
	execs   []string
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	id, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{val: id}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	if sql == schemaSQL {
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	}
	f.rows[args[0].(string)] = args[1].(string)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

type fakeRedis struct {
	values map[string]string
	err    error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func exercise(t *testing.T, tracker Tracker) {
	t.Helper()
	ctx := context.Background()

	marker, err := tracker.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", marker, "nothing processed yet")

	require.NoError(t, tracker.Advance(ctx, "0001.csv.gz"))
	require.NoError(t, tracker.Advance(ctx, "0002.csv.gz"))

	marker, err = tracker.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0002.csv.gz", marker)
	assert.NoError(t, tracker.Close())
}

func TestMemoryTracker(t *testing.T) {
	exercise(t, NewMemoryTracker(""))
}

func TestPostgresTracker(t *testing.T) {
	db := &fakeDB{rows: map[string]string{}}
	tracker := NewPostgresTracker(db, DefaultKey)
	require.NoError(t, tracker.EnsureSchema(context.Background()))
	exercise(t, tracker)
	assert.Equal(t, map[string]string{DefaultKey: "0002.csv.gz"}, db.rows)
}

func TestPostgresTrackerErrors(t *testing.T) {
	db := &fakeDB{rows: map[string]string{}, execErr: stderrors.New("connection reset")}
	tracker := NewPostgresTracker(db, DefaultKey)

	err := tracker.Advance(context.Background(), "0001.csv.gz")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeProgress))

	err = tracker.EnsureSchema(context.Background())
	assert.True(t, errors.IsType(err, errors.TypeProgress))
}

func TestRedisTracker(t *testing.T) {
	rdb := &fakeRedis{values: map[string]string{}}
	exercise(t, NewRedisTracker(rdb, "marker"))
	assert.Equal(t, "0002.csv.gz", rdb.values["marker"])
}

func TestRedisTrackerErrors(t *testing.T) {
	tracker := NewRedisTracker(&fakeRedis{values: map[string]string{}, err: stderrors.New("READONLY")}, "marker")

	_, err := tracker.Load(context.Background())
	assert.True(t, errors.IsType(err, errors.TypeProgress))

	err = tracker.Advance(context.Background(), "0001.csv.gz")
	assert.True(t, errors.IsType(err, errors.TypeProgress))
}

func TestNewTrackerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress")
	tracker, err := NewTracker(context.Background(), Config{Backend: "file", File: path})
	require.NoError(t, err)
	exercise(t, tracker)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0002.csv.gz", string(data))
}

func TestNewTrackerConfigErrors(t *testing.T) {
	tests := map[string]Config{
		"unknown backend":  {Backend: "etcd"},
		"postgres no dsn":  {Backend: "postgres"},
		"redis no address": {Backend: "redis"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewTracker(context.Background(), cfg)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.TypeConfig))
		})
	}
}

func TestNewTrackerMemory(t *testing.T) {
	tracker, err := NewTracker(context.Background(), Config{Backend: "memory"})
	require.NoError(t, err)
	exercise(t, tracker)
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	key := "test:" + t.Name() + ":" + time.Now().Format(time.RFC3339Nano)
	tracker, err := NewTracker(context.Background(), Config{Backend: "postgres", PostgresDSN: dsn, Key: key})
	require.NoError(t, err)
	exercise(t, tracker)
}

func TestRedisIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	key := "test:" + t.Name() + ":" + time.Now().Format(time.RFC3339Nano)
	tracker, err := NewTracker(context.Background(), Config{Backend: "redis", RedisAddr: addr, Key: key})
	require.NoError(t, err)
	exercise(t, tracker)
}
