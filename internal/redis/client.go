// Package redis wraps the go-redis client. Only this package imports
// go-redis directly; the gateway uses the re-exported handles below.
package redis

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Cmdable is a type alias for redis.Cmdable. Components accept this
// interface instead of importing go-redis directly.
type Cmdable = redis.Cmdable

// PubSub is a type alias for redis.PubSub, the subscription handle the
// backplane adapter consumes from.
type PubSub = redis.PubSub

// Message is a type alias for redis.Message received on a subscription.
type Message = redis.Message

// Config holds the parameters needed to connect to a Redis instance.
type Config struct {
	Addr         string
	Password     string
	DB           int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Client wraps a go-redis client. The RDB field satisfies the Cmdable
// interface and also exposes Subscribe for the backplane.
type Client struct {
	RDB *redis.Client
}

// NewClient creates a new Redis client configured from cfg.
func NewClient(cfg Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &Client{RDB: rdb}
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.RDB.Close()
}
