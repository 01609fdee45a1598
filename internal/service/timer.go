package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// TurnTimerListener listens for Redis keyspace notifications on expired
// turn-timer keys and triggers the stalled-turn policy. Also runs a polling
// fallback over the registry's in-memory deadlines in case keyspace
// notifications are unavailable.
type TurnTimerListener struct {
	rdb      *redis.Client
	registry *Registry
}

// NewTurnTimerListener creates a TurnTimerListener.
func NewTurnTimerListener(rdb *redis.Client, registry *Registry) *TurnTimerListener {
	return &TurnTimerListener{rdb: rdb, registry: registry}
}

// Start begins listening for expired key events and runs the poll fallback.
func (t *TurnTimerListener) Start(ctx context.Context) {
	go t.listenKeyspace(ctx)
	t.pollDeadlines(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TurnTimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Turn timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollDeadlines periodically sweeps the registry for sessions past their
// turn deadline.
func (t *TurnTimerListener) pollDeadlines(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	log.Info().Msg("Turn deadline poller started (10s interval)")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Turn deadline poller stopped")
			return
		case now := <-ticker.C:
			for _, code := range t.registry.ExpiredTurns(now) {
				log.Info().Str("sessionCode", code).Msg("Poller found expired turn")
				if err := t.registry.ForceCompleteTurn(ctx, code); err != nil {
					log.Error().Err(err).Str("sessionCode", code).Msg("Force-complete failed from poller")
				}
			}
		}
	}
}

// handleExpiry processes an expired key. Only acts on turn timer keys.
func (t *TurnTimerListener) handleExpiry(ctx context.Context, key string) {
	if !strings.HasPrefix(key, "session:") || !strings.HasSuffix(key, ":turn_timer") {
		return
	}

	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return
	}
	code := parts[1]

	log.Info().Str("sessionCode", code).Msg("Turn timer expired, applying stalled-turn policy")
	if err := t.registry.ForceCompleteTurn(ctx, code); err != nil {
		log.Error().Err(err).Str("sessionCode", code).Msg("Force-complete failed after timer expiry")
	}
}
