package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// memoryBlobStore keeps blobs in process memory
type memoryBlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBlobStore creates a BlobStore that lives only as long as the process
func NewMemoryBlobStore() BlobStore {
	return &memoryBlobStore{data: make(map[string][]byte)}
}

func (s *memoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *memoryBlobStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

const sqliteBlobSchema = `CREATE TABLE IF NOT EXISTS blobs (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteBlobStore persists blobs in a single-table SQLite database
type SQLiteBlobStore struct {
	db *sql.DB
}

// NewSQLiteBlobStore opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway store.
func NewSQLiteBlobStore(ctx context.Context, path string) (*SQLiteBlobStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		sqliteBlobSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize sqlite (%s): %w", stmt, err)
		}
	}

	return &SQLiteBlobStore{db: db}, nil
}

func (s *SQLiteBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteBlobStore) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write blob %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying database
func (s *SQLiteBlobStore) Close() error {
	return s.db.Close()
}

// RedisBlobStore keeps blobs in Redis so several API instances share state
type RedisBlobStore struct {
	rdb    *goredis.Client
	prefix string
}

// RedisOptions configures NewRedisBlobStore
type RedisOptions struct {
	Addr   string
	DB     int
	Prefix string
}

// NewRedisBlobStore connects and pings the server before returning
func NewRedisBlobStore(ctx context.Context, opts RedisOptions) (*RedisBlobStore, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisBlobStoreFromClient(rdb, opts.Prefix), nil
}

// NewRedisBlobStoreFromClient wraps an existing client
func NewRedisBlobStoreFromClient(rdb *goredis.Client, prefix string) *RedisBlobStore {
	return &RedisBlobStore{rdb: rdb, prefix: prefix}
}

func (s *RedisBlobStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	return value, nil
}

func (s *RedisBlobStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write blob %q: %w", key, err)
	}
	return nil
}

// Close releases the client
func (s *RedisBlobStore) Close() error {
	return s.rdb.Close()
}
