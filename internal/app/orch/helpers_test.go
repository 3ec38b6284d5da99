package orch

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, append([]byte(nil), f...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// messages decodes everything received so far and forgets it.
func (c *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		out = append(out, m)
	}
	c.frames = nil
	return out
}

func ofType(msgs []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, m := range msgs {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

type countNotifier struct {
	mu sync.Mutex
	n  int
}

func (c *countNotifier) NotifyChanged() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type harness struct {
	t      *testing.T
	o      *Orchestrator
	clock  *fakeClock
	notify *countNotifier
	conns  map[string]*fakeConn
}

func newHarness(t *testing.T, policy app.Policy) *harness {
	clk := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	n := &countNotifier{}
	o := New(
		app.NewRegistry(),
		core.NewRoomStore(1000, clk.Now),
		app.NewGuard(app.DefaultGuardConfig(), clk.Now),
		policy, n,
		Options{Now: clk.Now, IdleTTL: time.Hour},
	)
	return &harness{t: t, o: o, clock: clk, notify: n, conns: make(map[string]*fakeConn)}
}

func (h *harness) connect(id, addr string) *fakeConn {
	c := &fakeConn{}
	h.conns[id] = c
	h.o.OnConnect(domain.ConnID(id), c, addr, nil)
	return c
}

func (h *harness) send(id string, msg map[string]any) {
	h.t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		h.t.Fatal(err)
	}
	h.o.OnMessage(domain.ConnID(id), b)
}

// join connects id from its own address and joins room as user.
func (h *harness) join(id, room, user string) *fakeConn {
	c := h.connect(id, "10.0.0."+id)
	h.send(id, map[string]any{"type": "join", "channelId": room, "odUserId": user, "username": "name-" + user})
	return c
}

func (h *harness) room(id string) *domain.Room {
	h.t.Helper()
	r, ok := h.o.Rooms.Get(domain.RoomID(id))
	if !ok {
		h.t.Fatalf("room %s not found", id)
	}
	return r
}

func (h *harness) drain() {
	for _, c := range h.conns {
		c.messages(h.t)
	}
}

func coreStore(max int, clk *fakeClock) *core.RoomStore {
	return core.NewRoomStore(max, clk.Now)
}
