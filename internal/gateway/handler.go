package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"github.com/attitudes-vip/event-gateway/internal/auth"
	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/errmap"
	"github.com/attitudes-vip/event-gateway/internal/observability"
	"github.com/attitudes-vip/event-gateway/pkg/protocol"
)

// HandlerConfig holds transport-level tuning for the WebSocket endpoint.
type HandlerConfig struct {
	// AllowedOrigins is the Origin allow-list. Requests without an
	// Origin header (non-browser clients) are always allowed; browser
	// requests must match the list, or the request's own host when the
	// list is empty.
	AllowedOrigins []string

	// HandshakeTimeout bounds how long a client may take to present
	// its credential after the upgrade.
	HandshakeTimeout time.Duration

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Handler is the WebSocket endpoint: it upgrades the connection, runs
// the admission sequence (identity, rate limit, room join), then serves
// the connection's read/write pumps until disconnect.
type Handler struct {
	hub       *Hub
	identity  *IdentityCache
	issuer    *auth.ReconnectIssuer
	admission *Admission
	registry  *Registry
	stats     *Stats
	clock     domain.Clock
	logger    *slog.Logger
	cfg       HandlerConfig
	upgrader  websocket.Upgrader

	// shutdown closes when the server lifecycle ends; write pumps react
	// by sending a going-away close to their client.
	shutdown <-chan struct{}
}

// NewHandler creates the WebSocket endpoint handler. shutdown should be
// the server lifecycle context's Done channel.
func NewHandler(hub *Hub, identity *IdentityCache, issuer *auth.ReconnectIssuer, admission *Admission, registry *Registry, stats *Stats, clock domain.Clock, logger *slog.Logger, cfg HandlerConfig, shutdown <-chan struct{}) *Handler {
	h := &Handler{
		hub:       hub,
		identity:  identity,
		issuer:    issuer,
		admission: admission,
		registry:  registry,
		stats:     stats,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
		shutdown:  shutdown,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if len(h.cfg.AllowedOrigins) == 0 {
		return u.Host == r.Host
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed || u.Host == allowed {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and serves the connection to completion.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	h.serve(ws, sourceAddr(r))
}

// serve runs the handshake, admission, and pump lifecycle for one
// connection. Every exit path releases whatever was reserved.
func (h *Handler) serve(ws *websocket.Conn, addr string) {
	ctx, span := observability.Tracer("gateway").Start(context.Background(), "websocket.admit")
	logger := observability.WithTraceID(ctx, h.logger)

	ident, err := h.handshake(ctx, ws)
	if err != nil {
		span.RecordError(err)
		span.End()
		h.stats.Errors.Add(1)
		h.refuse(ws, err)
		return
	}

	if err := h.admission.AllowConnection(ident.UserID, addr); err != nil {
		span.RecordError(err)
		span.End()
		h.stats.Errors.Add(1)
		h.refuse(ws, err)
		return
	}

	span.SetAttributes(
		attribute.String("user.id", ident.UserID),
		attribute.String("wedding.id", ident.WeddingID),
	)
	span.End()

	connID := domain.GenerateConnectionID().String()
	conn := NewConn(ws, connID, *ident, addr, ConnConfig{
		HeartbeatInterval: h.cfg.HeartbeatInterval,
		HeartbeatTimeout:  h.cfg.HeartbeatTimeout,
	}, h.logger, h.clock.Now())

	roster := h.registry.Join(conn)
	h.hub.OnConnect()

	token, err := h.issuer.Mint(ident.UserID, ident.WeddingID, ident.DisplayName, domain.Role(ident.Role))
	if err != nil {
		// Admission already succeeded; the session works, it just
		// cannot fast-resume later.
		h.logger.Error("mint reconnect token", slog.String("error", err.Error()))
	}

	ack, err := protocol.NewFrame(protocol.FrameTypeHelloAck, protocol.HelloAck{
		ConnectionID:        connID,
		HeartbeatIntervalMs: int(h.cfg.HeartbeatInterval.Milliseconds()),
		ReconnectToken:      token,
		Roster:              roster,
	})
	if err == nil {
		conn.Send(ack)
	}

	logger.Info("connection admitted",
		slog.String("connection_id", connID),
		slog.String("user_id", ident.UserID),
		slog.String("wedding_id", ident.WeddingID),
	)

	go conn.WriteLoop(h.shutdown)
	conn.ReadLoop(func(f *protocol.Frame) { h.dispatch(conn, f) })

	conn.CloseWith(errmap.ToWebSocketClose(nil))
	h.hub.Disconnect(conn)

	logger.Info("connection closed",
		slog.String("connection_id", connID),
		slog.String("user_id", ident.UserID),
	)
}

// handshake reads the client's hello within the handshake timeout and
// resolves its identity. A valid reconnect token skips the full
// credential path; an expired or unknown one falls back to it.
func (h *Handler) handshake(ctx context.Context, ws *websocket.Conn) (*Identity, error) {
	if err := ws.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout)); err != nil {
		return nil, domain.ErrUnavailable
	}

	var frame protocol.Frame
	if err := ws.ReadJSON(&frame); err != nil {
		return nil, domain.ErrAuthRequired
	}
	if frame.Type != protocol.FrameTypeHello {
		return nil, domain.ErrAuthRequired
	}

	var hello protocol.Hello
	if err := frame.ParsePayload(&hello); err != nil {
		return nil, domain.ErrAuthRequired
	}

	if hello.ReconnectToken != "" {
		if claims, err := h.issuer.Validate(hello.ReconnectToken); err == nil {
			return &Identity{
				UserID:      claims.Subject,
				DisplayName: claims.DisplayName,
				Role:        claims.Role,
				WeddingID:   claims.WeddingID,
			}, nil
		}
		// Fall through to full authentication.
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.HandshakeTimeout)
	defer cancel()
	return h.identity.Authenticate(ctx, hello.Credential)
}

// refuse writes a typed close frame and drops the connection.
func (h *Handler) refuse(ws *websocket.Conn, err error) {
	wc := errmap.ToWebSocketClose(err)
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(wc.Code, wc.Reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = ws.Close()
	h.logger.Info("connection refused",
		slog.String("reason", wc.Reason),
	)
}

// dispatch routes one inbound frame from an admitted connection.
func (h *Handler) dispatch(conn *Conn, f *protocol.Frame) {
	switch f.Type {
	case protocol.FrameTypeEvent:
		var in protocol.EventIn
		if err := f.ParsePayload(&in); err != nil {
			h.stats.Errors.Add(1)
			return
		}
		h.hub.HandleEvent(conn, in)

	case protocol.FrameTypePing:
		if pong, err := protocol.NewFrame(protocol.FrameTypePong, protocol.Pong{
			Timestamp: domain.NowUTCMillis(h.clock),
		}); err == nil {
			conn.Send(pong)
		}

	case protocol.FrameTypePong:
		// Liveness already recorded by the read loop.

	default:
		h.logger.Debug("ignoring unexpected frame",
			slog.String("frame_type", string(f.Type)),
			slog.String("connection_id", conn.ID()),
		)
	}
}

// sourceAddr extracts the client host without the ephemeral port, so
// per-address limits group all connections from one source.
func sourceAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
