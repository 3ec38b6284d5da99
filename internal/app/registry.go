package app

import (
	"context"
	"sync"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Conn   core.SignalConnection
	Addr   string
	Cancel context.CancelFunc

	// set once the connection has joined
	Room domain.RoomID
	User domain.UserID
}

// Registry maps live connection ids to their transport handle and
// connection-local state. Rooms only ever hold ids.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*connEntry)}
}

func (r *Registry) Bind(id domain.ConnID, conn core.SignalConnection, addr string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{Conn: conn, Addr: addr, Cancel: cancel}
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("addr", addr).Msg("bound connection")
}

func (r *Registry) Get(id domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Addr(id domain.ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Addr, true
	}
	return "", false
}

// Membership returns the room and user the connection joined as.
func (r *Registry) Membership(id domain.ConnID) (domain.RoomID, domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.Room == "" {
		return "", "", false
	}
	return e.Room, e.User, true
}

func (r *Registry) SetMembership(id domain.ConnID, room domain.RoomID, user domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.Room, e.User = room, user
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(room)).Msg("joined room")
	return true
}

func (r *Registry) ClearMembership(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.Room, e.User = "", ""
	}
}

// Unbind forgets the connection and returns its last membership.
func (r *Registry) Unbind(id domain.ConnID) (domain.RoomID, domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return "", "", false
	}
	delete(r.conns, id)
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Msg("unbound connection")
	return e.Room, e.User, e.Room != ""
}

// Cancel stops the connection's pumps; the transport then reports the
// disconnect.
func (r *Registry) Cancel(id domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	e.Conn.Close()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
