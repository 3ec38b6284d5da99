package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type GuardKind int

const (
	GuardJoin GuardKind = iota
	GuardChat
)

func (k GuardKind) String() string {
	if k == GuardChat {
		return "chat"
	}
	return "join"
}

type GuardConfig struct {
	Window   time.Duration
	MaxJoins int
	MaxChats int
	BlockFor time.Duration
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Window:   time.Minute,
		MaxJoins: 10,
		MaxChats: 30,
		BlockFor: 10 * time.Minute,
	}
}

type rateRecord struct {
	joins     int
	chats     int
	lastReset time.Time
}

// Guard counts joins and chats per source address in a fixed window and
// blocks addresses that go over a threshold.
type Guard struct {
	mu      sync.Mutex
	cfg     GuardConfig
	now     func() time.Time
	records map[string]*rateRecord
	blocked map[string]time.Time
}

func NewGuard(cfg GuardConfig, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{
		cfg:     cfg,
		now:     now,
		records: make(map[string]*rateRecord),
		blocked: make(map[string]time.Time),
	}
}

// CheckAndRecord counts one action for addr. It returns false when the
// action pushed addr over the limit; addr is blocked from then on.
func (g *Guard) CheckAndRecord(addr string, kind GuardKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	rec, ok := g.records[addr]
	if !ok || now.Sub(rec.lastReset) > g.cfg.Window {
		rec = &rateRecord{lastReset: now}
		g.records[addr] = rec
	}

	var count, limit int
	switch kind {
	case GuardChat:
		rec.chats++
		count, limit = rec.chats, g.cfg.MaxChats
	default:
		rec.joins++
		count, limit = rec.joins, g.cfg.MaxJoins
	}
	if count <= limit {
		return true
	}

	g.blocked[addr] = now.Add(g.cfg.BlockFor)
	log.Warn().Str("module", "app.guard").Str("addr", addr).Str("kind", kind.String()).
		Dur("block_for", g.cfg.BlockFor).Msg("address blocked")
	return false
}

func (g *Guard) IsBlocked(addr string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.blocked[addr]
	if !ok {
		return false
	}
	if g.now().Before(until) {
		return true
	}
	delete(g.blocked, addr)
	return false
}

// Prune drops expired blocks and rate records. Returns how many entries went.
func (g *Guard) Prune() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	n := 0
	for addr, until := range g.blocked {
		if !now.Before(until) {
			delete(g.blocked, addr)
			n++
		}
	}
	for addr, rec := range g.records {
		if now.Sub(rec.lastReset) > g.cfg.Window {
			delete(g.records, addr)
			n++
		}
	}
	return n
}
