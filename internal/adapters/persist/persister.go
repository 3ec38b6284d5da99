// Package persist keeps a copy of room state outside the process so rooms
// survive restarts.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by Sink.Load when nothing was saved yet.
var ErrNotFound = errors.New("no saved state")

// Sink stores one encoded snapshot.
type Sink interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
}

// Store is the part of the room store the persister needs.
type Store interface {
	Snapshot() []core.SavedRoom
	Restore([]core.SavedRoom) int
}

const flushTimeout = 5 * time.Second

// Persister writes debounced snapshots. NotifyChanged never blocks: the dirty
// channel has one slot, so a burst of changes costs a single save.
type Persister struct {
	sink     Sink
	store    Store
	debounce time.Duration
	dirty    chan struct{}
}

func NewPersister(sink Sink, store Store, debounce time.Duration) *Persister {
	return &Persister{
		sink:     sink,
		store:    store,
		debounce: debounce,
		dirty:    make(chan struct{}, 1),
	}
}

func (p *Persister) NotifyChanged() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// Run saves after each change burst until ctx is done, then flushes once
// more if anything is pending.
func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flushPending()
			return nil
		case <-p.dirty:
		}

		if p.debounce > 0 {
			timer := time.NewTimer(p.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				p.flush()
				return nil
			case <-timer.C:
			}
		}
		// Changes during the delay are covered by this save.
		select {
		case <-p.dirty:
		default:
		}
		if err := p.Save(ctx); err != nil {
			if ctx.Err() != nil {
				// The slot is already drained; retry outside the canceled ctx.
				p.flush()
				return nil
			}
			log.Error().Err(err).Str("module", "persist").Msg("save rooms")
		}
	}
}

func (p *Persister) flushPending() {
	select {
	case <-p.dirty:
		p.flush()
	default:
	}
}

func (p *Persister) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := p.Save(ctx); err != nil {
		log.Error().Err(err).Str("module", "persist").Msg("final save")
		return
	}
	log.Info().Str("module", "persist").Msg("final snapshot flushed")
}

// Save writes the current snapshot right away.
func (p *Persister) Save(ctx context.Context) error {
	rooms := p.store.Snapshot()
	data, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := p.sink.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	log.Debug().Str("module", "persist").Int("rooms", len(rooms)).Int("bytes", len(data)).Msg("snapshot saved")
	return nil
}

// Load restores rooms from the sink. A missing or unreadable snapshot is
// logged and leaves the store empty; it returns the number of rooms loaded.
func (p *Persister) Load(ctx context.Context) int {
	data, err := p.sink.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		log.Info().Str("module", "persist").Msg("no saved rooms")
		return 0
	}
	if err != nil {
		log.Error().Err(err).Str("module", "persist").Msg("load rooms")
		return 0
	}
	var rooms []core.SavedRoom
	if err := json.Unmarshal(data, &rooms); err != nil {
		log.Error().Err(err).Str("module", "persist").Msg("corrupt snapshot, starting empty")
		return 0
	}
	n := p.store.Restore(rooms)
	log.Info().Str("module", "persist").Int("rooms", n).Msg("loaded rooms from storage")
	return n
}
