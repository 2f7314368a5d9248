package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fentz26/ntbk/internal/logger"
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config selects and configures a Store backend.
type Config struct {
	Driver   string        `koanf:"driver" yaml:"driver" validate:"oneof=memory sqlite redis"`
	Path     string        `koanf:"path" yaml:"path" validate:"required_if=Driver sqlite"`
	RedisURL string        `koanf:"redis_url" yaml:"redis_url" validate:"required_if=Driver redis"`
	TTL      time.Duration `koanf:"ttl" yaml:"ttl" validate:"gte=0"`
}

const redisPingTimeout = 3 * time.Second

// Open builds the configured store. An unreachable Redis server degrades to
// the memory store with a warning instead of failing startup.
func Open(ctx context.Context, cfg Config, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Discard()
	}

	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil

	case DriverSQLite:
		s, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil

	case DriverRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		s := NewRedis(redis.NewClient(opts), WithTTL(cfg.TTL))

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			log.Warn("redis unavailable, using in-memory task store", "addr", opts.Addr, "error", err)
			_ = s.Close()
			return NewMemory(), nil
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
