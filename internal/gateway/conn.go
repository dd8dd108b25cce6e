// Package gateway implements the realtime event broadcast core: the
// connection lifecycle, tenant-room membership, admission control, event
// batching, the urgent bypass path, and the broadcast backplane adapter.
package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/errmap"
	"github.com/attitudes-vip/event-gateway/pkg/protocol"
)

// Session is the registry- and hub-facing view of a connection.
// *Conn is the production implementation; tests substitute fakes.
type Session interface {
	ID() string
	UserID() string
	WeddingID() string
	RemoteAddr() string
	Member() protocol.Member

	// Send queues a frame for delivery without blocking. It returns
	// false when the outbound buffer is full (slow consumer).
	Send(f *protocol.Frame) bool

	// CloseWith terminates the connection with a close code and reason.
	CloseWith(wc errmap.WebSocketClose)

	// Alive reports whether the connection has not yet been closed.
	Alive() bool
}

// ConnConfig holds per-connection transport tuning.
type ConnConfig struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Conn is a single admitted WebSocket connection. It is owned exclusively
// by the gateway instance that accepted it and is destroyed on disconnect.
type Conn struct {
	id          string
	userID      string
	displayName string
	role        string
	weddingID   string
	remoteAddr  string

	ws  *websocket.Conn
	cfg ConnConfig

	send chan *protocol.Frame
	done chan struct{}

	logger      *slog.Logger
	connectedAt time.Time
	lastActive  atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewConn wraps an upgraded WebSocket in a Conn for the given identity.
func NewConn(ws *websocket.Conn, id string, ident Identity, remoteAddr string, cfg ConnConfig, logger *slog.Logger, connectedAt time.Time) *Conn {
	c := &Conn{
		id:          id,
		userID:      ident.UserID,
		displayName: ident.DisplayName,
		role:        ident.Role,
		weddingID:   ident.WeddingID,
		remoteAddr:  remoteAddr,
		ws:          ws,
		cfg:         cfg,
		send:        make(chan *protocol.Frame, domain.OutboundBufferSize),
		done:        make(chan struct{}),
		logger: logger.With(
			slog.String("connection_id", id),
			slog.String("wedding_id", ident.WeddingID),
		),
		connectedAt: connectedAt,
	}
	c.lastActive.Store(connectedAt.UnixMilli())
	return c
}

func (c *Conn) ID() string         { return c.id }
func (c *Conn) UserID() string     { return c.userID }
func (c *Conn) WeddingID() string  { return c.weddingID }
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Member returns the roster summary for this connection's user.
func (c *Conn) Member() protocol.Member {
	return protocol.Member{
		UserID:      c.userID,
		DisplayName: c.displayName,
		Role:        c.role,
	}
}

// ConnectedAt returns when the connection was admitted.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// LastActive returns the wall-clock millis of the last inbound frame.
func (c *Conn) LastActive() int64 { return c.lastActive.Load() }

// Send queues a frame without blocking. A full buffer means the client
// is not draining; the caller disconnects it as a slow consumer.
func (c *Conn) Send(f *protocol.Frame) bool {
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return true // closing; frame loss is acceptable here
	default:
		return false
	}
}

// Alive reports whether the connection has not been closed.
func (c *Conn) Alive() bool { return !c.closed.Load() }

// CloseWith sends a close control frame and tears the connection down.
// Safe to call from any goroutine, any number of times.
func (c *Conn) CloseWith(wc errmap.WebSocketClose) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(wc.Code, wc.Reason)
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug("write close frame", slog.String("error", err.Error()))
		}
		close(c.done)
		if err := c.ws.Close(); err != nil {
			c.logger.Debug("close websocket", slog.String("error", err.Error()))
		}
	})
}

// ReadLoop reads frames until the connection errors or closes, passing
// each decoded frame to handle. The read deadline advances on every
// inbound frame; a silent client is force-closed by the deadline.
func (c *Conn) ReadLoop(handle func(*protocol.Frame)) {
	c.ws.SetReadLimit(domain.MaxFrameSize)

	for {
		if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout)); err != nil {
			return
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("connection read ended", slog.String("error", err.Error()))
			}
			return
		}

		c.lastActive.Store(time.Now().UnixMilli())

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("malformed frame", slog.String("error", err.Error()))
			c.CloseWith(errmap.CloseProtocolViolation)
			return
		}

		handle(&frame)
	}
}

// WriteLoop drains the outbound buffer and emits heartbeat pings until
// the connection closes or the gateway shuts down.
func (c *Conn) WriteLoop(shutdown <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case <-shutdown:
			if f, err := protocol.NewFrame(protocol.FrameTypeConnectionClosing, protocol.ConnectionClosing{}); err == nil {
				_ = c.writeFrame(f)
			}
			c.CloseWith(errmap.CloseServerShutdown)
			return

		case f := <-c.send:
			if err := c.writeFrame(f); err != nil {
				c.logger.Debug("write frame", slog.String("error", err.Error()))
				c.CloseWith(errmap.WebSocketClose{Code: errmap.CloseInternalError, Reason: "write_failed"})
				return
			}

		case <-ticker.C:
			ping, err := protocol.NewFrame(protocol.FrameTypePing, protocol.Ping{Timestamp: time.Now().UnixMilli()})
			if err != nil {
				continue
			}
			if err := c.writeFrame(ping); err != nil {
				c.CloseWith(errmap.CloseHeartbeatSilence)
				return
			}
		}
	}
}

func (c *Conn) writeFrame(f *protocol.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Ensure Conn implements Session at compile time.
var _ Session = (*Conn)(nil)
