// Package redis connects the shared go-redis client used by the distributed
// rate-limit store and the readiness probe.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"haven/internal/platform/config"
)

const connectAttempts = 3

type Client struct {
	*redis.Client
	probeTimeout time.Duration
}

// New connects to cfg.URL. An empty URL yields a nil client and no error so
// the caller can choose the in-process store instead.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyPool(opts, cfg)

	rdb := redis.NewClient(opts)
	if err := waitReady(ctx, rdb, cfg.DialTimeout); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{Client: rdb, probeTimeout: cfg.ReadTimeout}, nil
}

// applyPool overrides URL options only where the config sets a value.
func applyPool(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
}

// waitReady pings a few times with linear backoff; a container started
// alongside the service often accepts connections a moment late.
func waitReady(ctx context.Context, rdb *redis.Client, dial time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, dial+time.Second)
		lastErr = rdb.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis ping: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
		}
	}
	return fmt.Errorf("redis ping failed after %d attempts: %w", connectAttempts, lastErr)
}

// Health pings with the read timeout so a stalled server fails the readiness
// probe instead of hanging it.
func (c *Client) Health(ctx context.Context) error {
	if c.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.probeTimeout)
		defer cancel()
	}
	return c.Ping(ctx).Err()
}
