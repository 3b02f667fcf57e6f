package client

import (
	"log/slog"
	"time"

	"github.com/xraph/replay/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithToken sets the API token presented during the auth handshake.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithFormat selects the frame encoding, "json" (default) or "msgpack".
func WithFormat(format string) Option {
	return func(c *Client) { c.format = format }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReconnect turns on automatic reconnection. Attempts are paced by
// exponential backoff with full jitter starting at baseDelay, capped at
// 30s, unless WithReconnectStrategy overrides it.
func WithReconnect(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.reconnect = true
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

// WithReconnectStrategy replaces the default reconnect pacing.
func WithReconnectStrategy(s backoff.Strategy) Option {
	return func(c *Client) { c.retryDelay = s }
}
