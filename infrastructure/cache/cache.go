// Package cache provides CacheStore adapters for scored evaluations.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
)

// Config selects and configures a cache driver.
type Config struct {
	Driver   string        `koanf:"driver" yaml:"driver" validate:"omitempty,oneof=none memory redis"`
	Addr     string        `koanf:"addr" yaml:"addr"`
	Password string        `koanf:"password" yaml:"password"`
	DB       int           `koanf:"db" yaml:"db"`
	TTL      time.Duration `koanf:"ttl" yaml:"ttl"`
}

// Open returns the CacheStore selected by cfg.Driver, or nil for "none".
func Open(ctx context.Context, cfg Config) (ports.CacheStore, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(cfg.TTL), nil
	case "redis":
		c, err := NewRedis(ctx, WithAddress(cfg.Addr), WithPassword(cfg.Password), WithDB(cfg.DB))
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q: %w", cfg.Driver, domain.ErrInvalidConfiguration)
	}
}
