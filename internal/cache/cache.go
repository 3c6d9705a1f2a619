// Package cache stores rendered images keyed by a hash of the request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Entry is one cached render.
type Entry struct {
	Data        []byte `json:"data"`
	ContentType string `json:"contentType"`
	Ext         string `json:"ext"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Cache is a get/put store with a fixed TTL. Implementations are safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Close() error
}

type Config struct {
	Enabled       bool
	Size          int
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// New returns Redis when an address is configured, an in-memory LRU
// otherwise, and a no-op cache when disabled.
func New(ctx context.Context, cfg Config) (Cache, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if cfg.RedisAddr != "" {
		return NewRedis(ctx, cfg)
	}
	return NewMemory(cfg.Size, cfg.TTL), nil
}

// Key hashes the JSON form of v. Struct fields encode in declaration order
// and map keys sorted, so equal values give equal keys.
func Key(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cache: key: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b)), nil
}

// ---- No-op ----

type Nop struct{}

func (Nop) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }
func (Nop) Set(context.Context, string, Entry) error         { return nil }
func (Nop) Close() error                                     { return nil }

// ---- Memory ----

type Memory struct {
	lru *expirable.LRU[string, Entry]
}

// NewMemory returns an LRU holding at most size entries for ttl each.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = 256
	}
	return &Memory{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := m.lru.Get(key)
	return e, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, e Entry) error {
	m.lru.Add(key, e)
	return nil
}

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}

func (m *Memory) Len() int { return m.lru.Len() }

// ---- Redis ----

type Redis struct {
	cli    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis connects and pings the configured server.
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cli.Ping(pctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", cfg.RedisAddr, err)
	}
	return &Redis{cli: cli, ttl: cfg.TTL, prefix: cfg.Prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	b, err := r.cli.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return e, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.cli.Set(ctx, r.prefix+key, b, r.ttl).Err()
}

func (r *Redis) Close() error {
	return r.cli.Close()
}
