package orch

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// Notifier is told about every room change that should reach storage.
type Notifier interface {
	NotifyChanged()
}

type nopNotifier struct{}

func (nopNotifier) NotifyChanged() {}

type Options struct {
	// IdleTTL is how long a room nobody is connected to survives.
	IdleTTL       time.Duration
	JanitorPeriod time.Duration
	Now           func() time.Time
}

// Orchestrator is the session coordinator. Every entry point takes mu, so a
// message is handled completely, fan-out included, before the next one.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *core.RoomStore
	Guard    *app.Guard
	Policy   app.Policy
	Persist  Notifier

	mu      sync.Mutex
	opts    Options
	entropy *ulid.MonotonicEntropy
}

func New(reg *app.Registry, rooms *core.RoomStore, guard *app.Guard, policy app.Policy, persist Notifier, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.JanitorPeriod <= 0 {
		opts.JanitorPeriod = time.Minute
	}
	if policy == nil {
		policy = app.DropPolicy{}
	}
	if persist == nil {
		persist = nopNotifier{}
	}
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Guard:    guard,
		Policy:   policy,
		Persist:  persist,
		opts:     opts,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

func (o *Orchestrator) now() time.Time { return o.opts.Now() }

// OnConnect registers a fresh connection. It returns false, after closing
// conn, when addr is blocked.
func (o *Orchestrator) OnConnect(id domain.ConnID, conn core.SignalConnection, addr string, cancel context.CancelFunc) bool {
	if o.Guard.IsBlocked(addr) {
		conn.Close()
		if cancel != nil {
			cancel()
		}
		return false
	}
	o.Registry.Bind(id, conn, addr, cancel)
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("addr", addr).Msg("new connection")
	return true
}

func (o *Orchestrator) OnMessage(id domain.ConnID, data []byte) {
	addr, ok := o.Registry.Addr(id)
	if !ok {
		return
	}
	if o.Guard.IsBlocked(addr) {
		o.Registry.Cancel(id)
		return
	}

	msg, err := core.DecodeInbound(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(id)).Msg("dropped message")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch m := msg.(type) {
	case core.JoinMsg:
		o.handleJoin(id, addr, m)
	case core.SyncMsg:
		o.handleSync(id, m)
	case core.ControlMsg:
		o.handleControl(id, m)
	case core.LoadVideoMsg:
		o.handleLoadVideo(id, m)
	case core.ChatMsg:
		o.handleChat(id, addr, m)
	default:
		log.Warn().Str("module", "orch").Str("type", string(msg.Kind())).Msg("unhandled message")
	}
}

// OnDisconnect runs leave handling for a closed connection.
func (o *Orchestrator) OnDisconnect(id domain.ConnID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	room, user, joined := o.Registry.Unbind(id)
	if !joined {
		return
	}
	o.leave(room, user, id)
}

// Run drives the janitor until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	t := time.NewTicker(o.opts.JanitorPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			o.sweep()
		}
	}
}

func (o *Orchestrator) sweep() {
	pruned := o.Guard.Prune()
	var evicted []domain.RoomID
	if o.opts.IdleTTL > 0 {
		o.mu.Lock()
		evicted = o.Rooms.EvictIdle(o.now().Add(-o.opts.IdleTTL))
		o.mu.Unlock()
	}
	if len(evicted) > 0 {
		o.Persist.NotifyChanged()
	}
	log.Debug().Str("module", "orch").Int("guard_pruned", pruned).Int("rooms_evicted", len(evicted)).Msg("janitor sweep")
}

// member resolves the connection's current membership. ok is false when the
// connection never joined or a newer connection took over the user.
func (o *Orchestrator) member(id domain.ConnID) (*domain.Room, domain.UserID, bool) {
	roomID, user, ok := o.Registry.Membership(id)
	if !ok {
		return nil, "", false
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil, "", false
	}
	if bound, ok := room.BoundConn(user); !ok || bound != id {
		return nil, "", false
	}
	return room, user, true
}

// host is member restricted to the room's current host.
func (o *Orchestrator) host(id domain.ConnID) (*domain.Room, bool) {
	room, user, ok := o.member(id)
	if !ok || !room.IsHost(user, id) {
		return nil, false
	}
	return room, true
}

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("marshal outbound")
		return nil, false
	}
	return b, true
}

func (o *Orchestrator) sendTo(id domain.ConnID, v any) {
	f, ok := encode(v)
	if !ok {
		return
	}
	o.deliver("", id, f)
}

func (o *Orchestrator) sendError(id domain.ConnID, err error) {
	o.sendTo(id, core.NewErrorMsg(err.Error()))
}

// broadcast sends v to every connection in room except the excluded ones.
func (o *Orchestrator) broadcast(room *domain.Room, v any, exclude ...domain.ConnID) {
	f, ok := encode(v)
	if !ok {
		return
	}
	sent := 0
	for _, c := range room.Conns() {
		if excluded(c, exclude) {
			continue
		}
		if o.deliver(room.ID, c, f) {
			sent++
		}
	}
	log.Debug().Str("module", "orch").Str("room", string(room.ID)).Int("sent_to", sent).Msg("broadcast")
}

func excluded(c domain.ConnID, list []domain.ConnID) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func (o *Orchestrator) deliver(room domain.RoomID, id domain.ConnID, f core.Frame) bool {
	conn, ok := o.Registry.Get(id)
	if !ok {
		return false
	}
	err := conn.TrySend(f)
	if err == nil {
		return true
	}
	if !errors.Is(err, core.ErrBackpressure) {
		return false
	}
	switch o.Policy.OnBackPressure(room, id) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("conn", string(id)).Msg("kicking slow connection")
		o.Registry.Cancel(id)
	case app.DropFrame, app.NoAction:
		log.Debug().Str("module", "orch").Str("conn", string(id)).Msg("frame dropped")
	}
	return false
}
