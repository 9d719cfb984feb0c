package speech

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// DialOptions 控制 Volcengine websocket 建连行为
type DialOptions struct {
	HandshakeTimeout time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
}

// DefaultDialOptions returns the dial settings used by the speech clients.
func DefaultDialOptions() DialOptions {
	return DialOptions{
		HandshakeTimeout: 30 * time.Second,
		MaxRetries:       3,
		RetryDelay:       time.Second,
	}
}

// wsDialer dials provider websockets, retrying transient handshake failures.
// Throttling and other 4xx answers are returned immediately.
type wsDialer struct {
	opts   DialOptions
	dialer *websocket.Dialer
}

func newWSDialer(opts DialOptions) *wsDialer {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	return &wsDialer{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
	}
}

func (d *wsDialer) dial(ctx context.Context, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < d.opts.MaxRetries; attempt++ {
		conn, resp, err := d.dialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, resp, nil
		}
		if resp != nil && isRateLimitStatus(resp.StatusCode) {
			return nil, resp, fmt.Errorf("%w: handshake status %d", ErrRateLimited, resp.StatusCode)
		}
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, resp, fmt.Errorf("websocket handshake rejected with status %d: %w", resp.StatusCode, err)
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if attempt == d.opts.MaxRetries-1 {
			break
		}

		log.Debug().Str("component", "speech").Int("attempt", attempt+1).Err(err).Msg("websocket dial failed, retrying")

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * d.opts.RetryDelay):
		}
	}

	return nil, nil, fmt.Errorf("failed to connect after %d attempts: %w", d.opts.MaxRetries, lastErr)
}
