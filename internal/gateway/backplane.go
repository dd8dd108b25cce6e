package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/attitudes-vip/event-gateway/internal/domain"
	redisclient "github.com/attitudes-vip/event-gateway/internal/redis"
	"github.com/attitudes-vip/event-gateway/pkg/protocol"
)

// EnvelopeKind distinguishes what an envelope carries.
type EnvelopeKind string

const (
	// EnvelopeEvents carries client events (a batch, or one urgent event).
	EnvelopeEvents EnvelopeKind = "events"
	// EnvelopePresence carries a presence transition.
	EnvelopePresence EnvelopeKind = "presence"
)

// Envelope is the unit published on the backplane. Every gateway
// instance, the publisher included, receives it on its subscription
// and forwards it to locally-held connections in the tenant's room.
type Envelope struct {
	Kind      EnvelopeKind `json:"kind"`
	WeddingID string       `json:"wedding_id"`

	// Critical marks urgent events that bypassed the batching pipeline.
	Critical bool `json:"critical,omitempty"`

	Events   []domain.Event     `json:"events,omitempty"`
	Presence *protocol.Presence `json:"presence,omitempty"`

	// ExcludeConnectionID names a connection that must not receive the
	// fan-out (e.g. the connection whose join caused a user_online).
	ExcludeConnectionID string `json:"exclude_connection_id,omitempty"`

	Origin      string `json:"origin"`
	PublishedAt int64  `json:"published_at"`
}

// Backplane republishes locally-emitted room events onto a shared Redis
// pub/sub channel so every gateway instance observes and forwards each
// other's broadcasts. Delivery is at least once with no cross-tenant
// ordering; the subscription receiving an envelope (self-published
// included) is the delivery path.
type Backplane struct {
	client  *redisclient.Client
	channel string
	logger  *slog.Logger
	handler func(Envelope)

	degraded  atomic.Bool
	published atomic.Int64
	received  atomic.Int64
}

// NewBackplane creates a backplane adapter on the given pub/sub channel.
// SetHandler must be called before Run or Publish.
func NewBackplane(client *redisclient.Client, channel string, logger *slog.Logger) *Backplane {
	return &Backplane{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// SetHandler installs the local delivery callback. Called once at wiring
// time, before any goroutine touches the backplane.
func (bp *Backplane) SetHandler(h func(Envelope)) {
	bp.handler = h
}

// Publish sends an envelope to every gateway instance. When the
// backplane is unreachable the envelope is handed straight to the local
// delivery path instead: same-instance connections keep working while
// cross-instance fan-out degrades.
func (bp *Backplane) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := bp.client.RDB.Publish(ctx, bp.channel, data).Err(); err != nil {
		bp.degraded.Store(true)
		bp.logger.Warn("backplane publish failed, delivering locally only",
			slog.String("wedding_id", env.WeddingID),
			slog.String("error", err.Error()),
		)
		if bp.handler != nil {
			bp.handler(env)
		}
		return fmt.Errorf("publish to %s: %w: %w", bp.channel, domain.ErrBackplaneUnavailable, err)
	}

	bp.published.Add(1)
	return nil
}

// Run subscribes to the backplane channel and forwards every received
// envelope to the local delivery handler. A lost subscription is retried
// with exponential backoff; the adapter never gives up while ctx lives.
func (bp *Backplane) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever

	for {
		if ctx.Err() != nil {
			return nil
		}

		sub := bp.client.RDB.Subscribe(ctx, bp.channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return nil
			}
			bp.degraded.Store(true)
			wait := bo.NextBackOff()
			bp.logger.Warn("backplane subscribe failed, retrying",
				slog.String("error", err.Error()),
				slog.Duration("backoff", wait),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		bp.degraded.Store(false)
		bo.Reset()
		bp.logger.Info("backplane subscription established", slog.String("channel", bp.channel))

		bp.consume(ctx, sub)
		_ = sub.Close()

		if ctx.Err() != nil {
			return nil
		}
		bp.degraded.Store(true)
		bp.logger.Warn("backplane subscription lost, reconnecting")
	}
}

func (bp *Backplane) consume(ctx context.Context, sub *redisclient.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				bp.logger.Warn("discarding malformed backplane envelope",
					slog.String("error", err.Error()),
				)
				continue
			}
			bp.received.Add(1)
			if bp.handler != nil {
				bp.handler(env)
			}
		}
	}
}

// Degraded reports whether the adapter is currently in
// local-delivery-only mode.
func (bp *Backplane) Degraded() bool {
	return bp.degraded.Load()
}
