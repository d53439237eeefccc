package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sotruth/dualtrack/internal/ports"
)

// Options configures the Redis connection.
type Options struct {
	Address     string
	Password    string
	DB          int
	Prefix      string
	DialTimeout time.Duration
}

// Option mutates Options before the client is created.
type Option func(*Options)

// WithAddress sets host:port. An empty address keeps the default.
func WithAddress(addr string) Option {
	return func(o *Options) {
		if addr != "" {
			o.Address = addr
		}
	}
}

// WithPassword sets the AUTH password.
func WithPassword(pass string) Option {
	return func(o *Options) { o.Password = pass }
}

// WithDB selects the logical database.
func WithDB(db int) Option {
	return func(o *Options) { o.DB = db }
}

// WithPrefix namespaces every key. Clear only removes keys under it.
func WithPrefix(prefix string) Option {
	return func(o *Options) { o.Prefix = prefix }
}

// WithDialTimeout bounds establishing each new connection.
func WithDialTimeout(d time.Duration) Option {
	return func(o *Options) { o.DialTimeout = d }
}

// Redis is a CacheStore backed by a Redis server.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts ...Option) (*Redis, error) {
	options := &Options{
		Address:     "localhost:6379",
		Prefix:      "dualtrack:",
		DialTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        options.Address,
		Password:    options.Password,
		DB:          options.DB,
		DialTimeout: options.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, ports.NewCacheError("", "ping", fmt.Errorf("redis %s: %w", options.Address, err))
	}
	return &Redis{client: client, prefix: options.Prefix}, nil
}

// Get returns the value stored under the prefixed key. redis.Nil reports a miss.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ports.NewCacheError(key, "get", err)
	}
	return val, true, nil
}

// Set stores value with the given expiration. Zero means no expiry.
func (c *Redis) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, expiration).Err(); err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	return nil
}

// Delete removes the prefixed key.
func (c *Redis) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return ports.NewCacheError(key, "delete", err)
	}
	return nil
}

// Clear deletes every key under the configured prefix.
func (c *Redis) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return ports.NewCacheError(c.prefix+"*", "clear", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return ports.NewCacheError(c.prefix+"*", "clear", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return ports.NewCacheError(c.prefix+"*", "clear", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (c *Redis) Close() error { return c.client.Close() }

var _ ports.CacheStore = (*Redis)(nil)
