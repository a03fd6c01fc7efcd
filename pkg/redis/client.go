package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/tradedesk/pkg/config"
)

// ErrDisabled is returned by Ping when Redis is switched off
var ErrDisabled = errors.New("redis disabled")

const dialTimeout = 3 * time.Second

// Client is the desk's handle on the shared quote store and order throttle.
// With REDIS_ENABLED off it holds no connection and the quote cache and
// throttle built on it do nothing.
type Client struct {
	rdb  *redis.Client
	addr string
}

// Addr returns host:port from the Redis settings
func Addr(cfg config.RedisConfig) string {
	return net.JoinHostPort(cfg.Host, cfg.Port)
}

// New connects to Redis and checks the connection with a ping
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{}, nil
	}

	addr := Addr(cfg.Redis)
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		ClientName:  "tradedesk",
		DialTimeout: dialTimeout,
	})

	c := &Client{rdb: rdb, addr: addr}
	if _, err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return c, nil
}

// NewFromClient wraps an existing go-redis client. A nil rdb gives a disabled client.
func NewFromClient(rdb *redis.Client) *Client {
	c := &Client{rdb: rdb}
	if rdb != nil {
		c.addr = rdb.Options().Addr
	}
	return c
}

// Ping measures a round trip to the server
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	if c.rdb == nil {
		return 0, ErrDisabled
	}
	start := time.Now()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Addr is the server address, empty when disabled
func (c *Client) Addr() string { return c.addr }

// Enabled reports whether a connection is held
func (c *Client) Enabled() bool { return c.rdb != nil }

// Redis exposes the go-redis client to the cache and throttle
func (c *Client) Redis() *redis.Client { return c.rdb }

// Close drops the connection
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
