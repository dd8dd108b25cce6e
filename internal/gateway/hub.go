package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/errmap"
	"github.com/attitudes-vip/event-gateway/pkg/protocol"
)

// Publisher is the hub-facing slice of the backplane adapter.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// AuditSink is the hub-facing slice of the persistence collaborator.
// *store.EventLog satisfies it.
type AuditSink interface {
	AppendEvent(ctx context.Context, ev *domain.Event) error
}

// Stats holds the gateway's rolling counters. Never persisted; the
// supervisor samples them on a fixed cadence.
type Stats struct {
	TotalConnections atomic.Int64
	PeakConnections  atomic.Int64
	EventsIn         atomic.Int64
	EventsDelivered  atomic.Int64
	Errors           atomic.Int64
}

// Hub ties the gateway components together: it triages inbound events
// into the batching pipeline or the urgent bypass path, publishes to the
// backplane, and fans received envelopes out to local room members.
type Hub struct {
	registry  *Registry
	admission *Admission
	batcher   *Batcher
	publisher Publisher
	audit     AuditSink
	pool      *Pool
	stats     *Stats
	clock     domain.Clock
	logger    *slog.Logger

	instanceID string
}

// HubConfig holds the hub's collaborators.
type HubConfig struct {
	Registry   *Registry
	Admission  *Admission
	Publisher  Publisher
	Audit      AuditSink
	Pool       *Pool
	Stats      *Stats
	Clock      domain.Clock
	Logger     *slog.Logger
	InstanceID string
}

// NewHub creates the gateway hub. The batching pipeline is created here
// so its flush path is wired to the hub's publish logic; retrieve it
// with Batcher() to run its flush loop.
func NewHub(cfg HubConfig, batchCfg BatcherConfig) *Hub {
	h := &Hub{
		registry:   cfg.Registry,
		admission:  cfg.Admission,
		publisher:  cfg.Publisher,
		audit:      cfg.Audit,
		pool:       cfg.Pool,
		stats:      cfg.Stats,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		instanceID: cfg.InstanceID,
	}
	h.batcher = NewBatcher(batchCfg, h.publishBatch, cfg.Logger)
	return h
}

// Batcher exposes the batching pipeline for lifecycle wiring.
func (h *Hub) Batcher() *Batcher { return h.batcher }

// OnConnect records an admitted connection in the rolling counters.
func (h *Hub) OnConnect() {
	h.stats.TotalConnections.Add(1)
	active := int64(h.registry.ActiveConnections())
	for {
		peak := h.stats.PeakConnections.Load()
		if active <= peak || h.stats.PeakConnections.CompareAndSwap(peak, active) {
			return
		}
	}
}

// Disconnect releases a connection's admission reservation and schedules
// its room-leave and presence-grace logic. Safe to call for connections
// that never fully joined.
func (h *Hub) Disconnect(s Session) {
	h.admission.ReleaseConnection(s.RemoteAddr())
	h.registry.Leave(s)
}

// HandleEvent triages one inbound client event: rate limit, then either
// the urgent bypass path or the batching pipeline.
func (h *Hub) HandleEvent(s Session, in protocol.EventIn) {
	ev := domain.Event{
		Type:               domain.EventType(in.Type),
		Payload:            in.Payload,
		SenderConnectionID: s.ID(),
		SenderUserID:       s.UserID(),
		SenderName:         s.Member().DisplayName,
		SenderRole:         s.Member().Role,
		WeddingID:          s.WeddingID(),
		Timestamp:          domain.NowUTCMillis(h.clock),
		Priority:           domain.PriorityFor(domain.EventType(in.Type)),
	}

	decision := h.admission.AllowEvent(s.UserID())
	if !decision.Allowed {
		h.stats.Errors.Add(1)
		h.notifyError(s, domain.ErrRateLimited, "event rate limit exceeded")
		if decision.CloseConnection {
			h.logger.Warn("closing connection after sustained rate-limit abuse",
				slog.String("connection_id", s.ID()),
				slog.String("user_id", s.UserID()),
			)
			s.CloseWith(errmap.ToWebSocketClose(domain.ErrRateLimited))
		}
		return
	}

	h.stats.EventsIn.Add(1)

	if ev.Priority == domain.PriorityUrgent {
		h.EmitUrgent(ev)
		return
	}

	if err := h.batcher.Enqueue(ev); err != nil {
		h.stats.Errors.Add(1)
		h.notifyError(s, err, "event rejected")
	}
}

// EmitUrgent routes a safety-critical event around the batching pipeline:
// it is published immediately with a critical marker, ahead of any
// queued normal-priority batch for its tenant, and handed to the
// persistence collaborator for durable audit without blocking delivery.
func (h *Hub) EmitUrgent(ev domain.Event) {
	if err := ev.Validate(); err != nil {
		h.stats.Errors.Add(1)
		h.logger.Warn("dropping invalid urgent event",
			slog.String("wedding_id", ev.WeddingID),
			slog.String("error", err.Error()),
		)
		return
	}

	h.publish(Envelope{
		Kind:      EnvelopeEvents,
		WeddingID: ev.WeddingID,
		Critical:  true,
		Events:    []domain.Event{ev},
	})

	h.auditAsync(ev)
}

// publishBatch is the batcher's flush target: one envelope per wedding
// per flush. Chat messages additionally go to the audit log.
func (h *Hub) publishBatch(weddingID string, events []domain.Event) {
	h.publish(Envelope{
		Kind:      EnvelopeEvents,
		WeddingID: weddingID,
		Events:    events,
	})

	for _, ev := range events {
		if ev.Type == domain.EventChatMessage {
			h.auditAsync(ev)
		}
	}
}

// PresenceChanged is the registry's presence callback: genuine presence
// transitions are published so every instance's room members see them.
func (h *Hub) PresenceChanged(weddingID string, member protocol.Member, online bool, excludeConnID string) {
	h.publish(Envelope{
		Kind:      EnvelopePresence,
		WeddingID: weddingID,
		Presence: &protocol.Presence{
			UserID:      member.UserID,
			DisplayName: member.DisplayName,
			Role:        member.Role,
			Online:      online,
		},
		ExcludeConnectionID: excludeConnID,
	})
}

// DeliverEnvelope is the backplane's delivery callback: it forwards an
// envelope (published by any instance, this one included) to
// locally-held connections in the tenant's room.
func (h *Hub) DeliverEnvelope(env Envelope) {
	var frame *protocol.Frame
	var err error

	switch env.Kind {
	case EnvelopePresence:
		if env.Presence == nil {
			return
		}
		frame, err = protocol.NewFrame(protocol.FrameTypePresence, env.Presence)

	case EnvelopeEvents:
		if len(env.Events) == 0 {
			return
		}
		if env.Critical {
			frame, err = protocol.NewFrame(protocol.FrameTypeEvent, toEventOut(env.Events[0]))
		} else {
			batch := protocol.EventBatch{Events: make([]protocol.EventOut, 0, len(env.Events))}
			for _, ev := range env.Events {
				batch.Events = append(batch.Events, toEventOut(ev))
			}
			frame, err = protocol.NewFrame(protocol.FrameTypeEventBatch, batch)
		}

	default:
		return
	}

	if err != nil {
		h.logger.Error("encode outbound frame", slog.String("error", err.Error()))
		return
	}

	n := h.registry.Broadcast(env.WeddingID, frame, env.ExcludeConnectionID)
	h.stats.EventsDelivered.Add(int64(n))
}

func (h *Hub) publish(env Envelope) {
	env.Origin = h.instanceID
	env.PublishedAt = domain.NowUTCMillis(h.clock)

	ctx, cancel := context.WithTimeout(context.Background(), domain.RedisTimeout)
	defer cancel()

	// Publish errors degrade to local-only delivery inside the adapter;
	// nothing more to do here beyond counting.
	if err := h.publisher.Publish(ctx, env); err != nil {
		h.stats.Errors.Add(1)
	}
}

// auditAsync hands an event to the persistence collaborator through the
// bounded worker pool. Fire-and-forget: a persistence failure is logged
// and never blocks delivery.
func (h *Hub) auditAsync(ev domain.Event) {
	if h.audit == nil {
		return
	}
	h.pool.Submit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, domain.DynamoDBTimeout)
		defer cancel()
		if err := h.audit.AppendEvent(ctx, &ev); err != nil {
			h.logger.Warn("event audit append failed",
				slog.String("wedding_id", ev.WeddingID),
				slog.String("event_type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	})
}

func (h *Hub) notifyError(s Session, err error, msg string) {
	frame, ferr := protocol.NewFrame(protocol.FrameTypeError, protocol.Error{
		Code:    errmap.ErrorCode(err),
		Message: msg,
	})
	if ferr != nil {
		return
	}
	s.Send(frame)
}

func toEventOut(ev domain.Event) protocol.EventOut {
	return protocol.EventOut{
		Type:       string(ev.Type),
		Payload:    ev.Payload,
		SenderID:   ev.SenderUserID,
		SenderName: ev.SenderName,
		SenderRole: ev.SenderRole,
		Timestamp:  ev.Timestamp,
	}
}
