package orch

import (
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
)

// Host-only handlers. Anything from a non-host is dropped without a reply.

func (o *Orchestrator) handleSync(id domain.ConnID, m core.SyncMsg) {
	room, ok := o.host(id)
	if !ok {
		return
	}
	if m.CurrentTime == nil || !domain.ValidTime(*m.CurrentTime) {
		o.sendError(id, domain.ErrInvalidTime)
		return
	}
	now := o.now()
	room, err := o.Rooms.Update(room.ID, func(r *domain.Room) {
		episode := m.EpisodeID
		if episode == "" && r.CurrentVideo != nil {
			episode = r.CurrentVideo.EpisodeID
		}
		r.Playback = domain.PlaybackState{
			Playing:     m.Playing,
			CurrentTime: *m.CurrentTime,
			LastUpdate:  now.UnixMilli(),
			EpisodeID:   episode,
		}
	})
	if err != nil {
		return
	}
	o.broadcast(room, core.SyncOut{Type: core.TypeSync, PlaybackState: room.Playback}, id)
	o.Persist.NotifyChanged()
}

func (o *Orchestrator) handleControl(id domain.ConnID, m core.ControlMsg) {
	room, ok := o.host(id)
	if !ok {
		return
	}
	if m.CurrentTime != nil && !domain.ValidTime(*m.CurrentTime) {
		o.sendError(id, domain.ErrInvalidTime)
		return
	}
	if m.Type == core.TypeSeek && m.CurrentTime == nil {
		o.sendError(id, domain.ErrInvalidTime)
		return
	}
	now := o.now()
	room, err := o.Rooms.Update(room.ID, func(r *domain.Room) {
		p := &r.Playback
		if m.CurrentTime != nil {
			p.CurrentTime = *m.CurrentTime
		} else {
			p.CurrentTime = p.Position(now)
		}
		switch m.Type {
		case core.TypePlay:
			p.Playing = true
		case core.TypePause:
			p.Playing = false
		}
		p.LastUpdate = now.UnixMilli()
	})
	if err != nil {
		return
	}
	log.Debug().Str("module", "orch").Str("room", string(room.ID)).Str("type", string(m.Type)).
		Float64("t", room.Playback.CurrentTime).Msg("playback control")
	o.broadcast(room, core.ControlOut{
		Type:        m.Type,
		CurrentTime: room.Playback.CurrentTime,
		Playing:     room.Playback.Playing,
	})
	o.Persist.NotifyChanged()
}

func (o *Orchestrator) handleLoadVideo(id domain.ConnID, m core.LoadVideoMsg) {
	room, ok := o.host(id)
	if !ok {
		return
	}
	if err := m.Video.Validate(); err != nil {
		o.sendError(id, err)
		return
	}
	now := o.now()
	room, err := o.Rooms.Update(room.ID, func(r *domain.Room) {
		r.CurrentVideo = m.Video.Clone()
		r.Playback = domain.NewPlaybackState(now)
	})
	if err != nil {
		return
	}
	log.Info().Str("module", "orch").Str("room", string(room.ID)).Str("episode", room.CurrentVideo.EpisodeID).Msg("video loaded")
	o.broadcast(room, core.LoadVideoOut{
		Type:          core.TypeLoadVideo,
		Video:         room.CurrentVideo,
		PlaybackState: room.Playback,
	})
	o.Persist.NotifyChanged()
}
