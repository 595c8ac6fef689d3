// Package storage provides key/value persistence for campaign state behind
// one interface, with memory, filesystem, Redis and MinIO backends.
//
// Keys are opaque strings; values are opaque bytes. Callers (the ledger)
// own the key layout and the encoding.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get and Delete for an absent key.
	ErrNotFound = errors.New("storage: key not found")

	// ErrExists is returned by Create when the key is already present.
	ErrExists = errors.New("storage: key already exists")
)

// Store is a key/value store for campaign state.
type Store interface {
	// Put writes value under key, replacing any existing value.
	Put(ctx context.Context, key string, value []byte) error
	// Create writes value under key only if key is absent.
	Create(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory     = "memory"
	BackendFilesystem = "filesystem"
	BackendRedis      = "redis"
	BackendMinio      = "minio"
)

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Path is the root directory of the filesystem backend.
	Path     string      `yaml:"path" mapstructure:"path"`
	RedisURL string      `yaml:"redis_url" mapstructure:"redis_url"`
	Minio    MinioConfig `yaml:"minio" mapstructure:"minio"`
}

// Open connects the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFilesystem, "":
		path := cfg.Path
		if path == "" {
			path = ".nroy"
		}
		return NewFileStore(path)
	case BackendRedis:
		return NewRedisStoreFromURL(ctx, cfg.RedisURL)
	case BackendMinio:
		return NewMinioStore(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected %s, %s, %s or %s)",
			cfg.Backend, BackendMemory, BackendFilesystem, BackendRedis, BackendMinio)
	}
}
