package gateway_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/errmap"
	"github.com/attitudes-vip/event-gateway/internal/gateway"
	"github.com/attitudes-vip/event-gateway/pkg/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSession is an in-memory gateway.Session double that records sent
// frames and close calls.
type fakeSession struct {
	id        string
	userID    string
	weddingID string
	addr      string
	name      string
	role      string

	mu       sync.Mutex
	sent     []*protocol.Frame
	closed   bool
	closedWc errmap.WebSocketClose
	full     bool // simulate a saturated outbound buffer
}

func newFakeSession(id, userID, weddingID string) *fakeSession {
	return &fakeSession{
		id:        id,
		userID:    userID,
		weddingID: weddingID,
		addr:      "203.0.113.7",
		name:      "Guest " + userID,
		role:      "guest",
	}
}

func (s *fakeSession) ID() string         { return s.id }
func (s *fakeSession) UserID() string     { return s.userID }
func (s *fakeSession) WeddingID() string  { return s.weddingID }
func (s *fakeSession) RemoteAddr() string { return s.addr }

func (s *fakeSession) Member() protocol.Member {
	return protocol.Member{UserID: s.userID, DisplayName: s.name, Role: s.role}
}

func (s *fakeSession) Send(f *protocol.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.sent = append(s.sent, f)
	return true
}

func (s *fakeSession) CloseWith(wc errmap.WebSocketClose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closedWc = wc
}

func (s *fakeSession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *fakeSession) sentFrames() []*protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*protocol.Frame, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSession) closedWith() (bool, errmap.WebSocketClose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closedWc
}

// fakePublisher records published envelopes in order.
type fakePublisher struct {
	mu        sync.Mutex
	published []gateway.Envelope
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, env gateway.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, env)
	return nil
}

func (p *fakePublisher) envelopes() []gateway.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]gateway.Envelope, len(p.published))
	copy(out, p.published)
	return out
}

// fakeAudit records appended events.
type fakeAudit struct {
	mu     sync.Mutex
	events []domain.Event
}

func (a *fakeAudit) AppendEvent(ctx context.Context, ev *domain.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *ev)
	return nil
}

func (a *fakeAudit) appended() []domain.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Event, len(a.events))
	copy(out, a.events)
	return out
}

// presenceRecorder captures presence callbacks from a registry.
type presenceRecorder struct {
	mu    sync.Mutex
	calls []presenceCall
}

type presenceCall struct {
	weddingID string
	member    protocol.Member
	online    bool
	exclude   string
}

func (r *presenceRecorder) record(weddingID string, member protocol.Member, online bool, exclude string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, presenceCall{weddingID, member, online, exclude})
}

func (r *presenceRecorder) recorded() []presenceCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]presenceCall, len(r.calls))
	copy(out, r.calls)
	return out
}

const testGrace = 25 * time.Millisecond
