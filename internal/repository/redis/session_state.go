package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for Redis session state.
func stateKey(code string) string     { return "session:" + code + ":state" }
func turnTimerKey(code string) string { return "session:" + code + ":turn_timer" }

// SaveState stores the session state snapshot. Called after every accepted
// action, before the update is broadcast.
func (c *Client) SaveState(ctx context.Context, code string, state json.RawMessage) error {
	return c.rdb.Set(ctx, stateKey(code), []byte(state), 0).Err()
}

// LoadState retrieves the session state snapshot, or nil if none exists.
func (c *Client) LoadState(ctx context.Context, code string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, stateKey(code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	return json.RawMessage(data), nil
}

// DeleteState removes all Redis data for a session (on teardown).
func (c *Client) DeleteState(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, stateKey(code), turnTimerKey(code)).Err()
}

// turnGracePeriod is the extra time after the displayed deadline before the
// stalled-turn policy triggers, giving the active player a few seconds of
// leeway.
const turnGracePeriod = 5 * time.Second

// SetTurnTimer creates a timer key with a TTL. When the key expires, Redis
// keyspace notifications trigger the stalled-turn policy.
func (c *Client) SetTurnTimer(ctx context.Context, code string, deadline time.Time) error {
	ttl := time.Until(deadline) + turnGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, turnTimerKey(code), deadline.Unix(), ttl).Err()
}

// ClearTurnTimer removes the turn timer for a session.
func (c *Client) ClearTurnTimer(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, turnTimerKey(code)).Err()
}
