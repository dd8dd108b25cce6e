package gateway

import (
	"sync"
	"time"

	"github.com/attitudes-vip/event-gateway/internal/domain"
	"github.com/attitudes-vip/event-gateway/internal/errmap"
	"github.com/attitudes-vip/event-gateway/pkg/protocol"
)

// PresenceFunc is invoked when a user's presence in a wedding room
// genuinely changes: the first connection of a user coming online, or
// the offline grace period elapsing with no reconnect. excludeConnID
// names the connection that triggered the change (empty for offline).
type PresenceFunc func(weddingID string, member protocol.Member, online bool, excludeConnID string)

// presenceEntry tracks one user's connections within one wedding room.
// The member summary is retained so an offline announcement can be built
// after the last connection is gone.
type presenceEntry struct {
	conns      map[string]struct{}
	member     protocol.Member
	graceTimer *time.Timer
}

// Registry maintains tenant-scoped membership and presence. Rooms are
// structural containers only: they hold no event history. The registry
// is the sole mutator of its maps; all access goes through its mutex.
type Registry struct {
	grace      time.Duration
	onPresence PresenceFunc

	mu       sync.Mutex
	rooms    map[string]map[string]Session // weddingID -> connID -> session
	presence map[string]*presenceEntry     // weddingID + "/" + userID
}

// NewRegistry creates a room registry. grace is the delay before a user
// with no remaining connections is declared offline.
func NewRegistry(grace time.Duration, onPresence PresenceFunc) *Registry {
	return &Registry{
		grace:      grace,
		onPresence: onPresence,
		rooms:      make(map[string]map[string]Session),
		presence:   make(map[string]*presenceEntry),
	}
}

func presenceKey(weddingID, userID string) string {
	return weddingID + "/" + userID
}

// Join adds the connection to its wedding room and to the user's
// presence set, returning the room's current online-member list.
// A user_online announcement fires only when this is the user's first
// live connection and no offline grace window was pending. A reconnect
// inside the grace period cancels the pending offline silently, and a
// second tab for an already-online user announces nothing.
func (r *Registry) Join(s Session) []protocol.Member {
	weddingID := s.WeddingID()
	key := presenceKey(weddingID, s.UserID())

	r.mu.Lock()

	room, ok := r.rooms[weddingID]
	if !ok {
		room = make(map[string]Session)
		r.rooms[weddingID] = room
	}
	room[s.ID()] = s

	entry, ok := r.presence[key]
	announce := false
	switch {
	case !ok:
		entry = &presenceEntry{conns: make(map[string]struct{}), member: s.Member()}
		r.presence[key] = entry
		announce = true
	case entry.graceTimer != nil:
		// Reconnect within the grace window: the user never appeared
		// offline, so coming back announces nothing.
		entry.graceTimer.Stop()
		entry.graceTimer = nil
	}
	entry.conns[s.ID()] = struct{}{}
	entry.member = s.Member()

	roster := r.rosterLocked(weddingID)
	r.mu.Unlock()

	if announce && r.onPresence != nil {
		r.onPresence(weddingID, s.Member(), true, s.ID())
	}
	return roster
}

// Leave removes the connection from both the room and presence sets
// atomically. When the user's last connection is gone, a grace timer is
// started; user_offline fires exactly once per disconnect episode, and
// only if no connection for the user reappears within the window.
func (r *Registry) Leave(s Session) {
	weddingID := s.WeddingID()
	key := presenceKey(weddingID, s.UserID())

	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[weddingID]; ok {
		delete(room, s.ID())
		if len(room) == 0 {
			delete(r.rooms, weddingID)
		}
	}

	entry, ok := r.presence[key]
	if !ok {
		return
	}
	delete(entry.conns, s.ID())
	if len(entry.conns) > 0 || entry.graceTimer != nil {
		return
	}

	entry.graceTimer = time.AfterFunc(r.grace, func() {
		r.expirePresence(weddingID, key)
	})
}

// expirePresence runs when a grace timer fires: if the user still has no
// connections, the presence entry is removed and user_offline announced.
func (r *Registry) expirePresence(weddingID, key string) {
	r.mu.Lock()
	entry, ok := r.presence[key]
	if !ok || len(entry.conns) > 0 {
		if ok {
			entry.graceTimer = nil
		}
		r.mu.Unlock()
		return
	}
	member := entry.member
	delete(r.presence, key)
	r.mu.Unlock()

	if r.onPresence != nil {
		r.onPresence(weddingID, member, false, "")
	}
}

// rosterLocked collects the online members of a room. A member is online
// iff it has at least one live connection (grace-pending users excluded).
func (r *Registry) rosterLocked(weddingID string) []protocol.Member {
	members := make([]protocol.Member, 0)
	seen := make(map[string]struct{})
	for _, s := range r.rooms[weddingID] {
		if _, ok := seen[s.UserID()]; ok {
			continue
		}
		seen[s.UserID()] = struct{}{}
		members = append(members, s.Member())
	}
	return members
}

// ListOnline returns the online-member summaries for a wedding room.
func (r *Registry) ListOnline(weddingID string) []protocol.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked(weddingID)
}

// Broadcast fans a frame out to every live connection in the room except
// exceptConnID. Connections whose outbound buffer is full are closed as
// slow consumers. Returns the number of connections reached.
func (r *Registry) Broadcast(weddingID string, f *protocol.Frame, exceptConnID string) int {
	r.mu.Lock()
	targets := make([]Session, 0, len(r.rooms[weddingID]))
	for id, s := range r.rooms[weddingID] {
		if id == exceptConnID {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.Unlock()

	delivered := 0
	var slow []Session
	for _, s := range targets {
		if s.Send(f) {
			delivered++
		} else {
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		s.CloseWith(errmap.ToWebSocketClose(domain.ErrSlowConsumer))
	}
	return delivered
}

// ActiveConnections reports the number of connections across all rooms.
func (r *Registry) ActiveConnections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, room := range r.rooms {
		n += len(room)
	}
	return n
}

// RoomCount reports the number of non-empty wedding rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// SweepOrphans removes bookkeeping for connections that are confirmed
// closed but were not cleaned synchronously. Defensive: the disconnect
// path normally handles this. Returns the number of entries removed.
func (r *Registry) SweepOrphans() int {
	r.mu.Lock()
	var orphans []Session
	for _, room := range r.rooms {
		for _, s := range room {
			if !s.Alive() {
				orphans = append(orphans, s)
			}
		}
	}
	r.mu.Unlock()

	for _, s := range orphans {
		r.Leave(s)
	}
	return len(orphans)
}
