package orch

import (
	"errors"

	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) handleJoin(id domain.ConnID, addr string, m core.JoinMsg) {
	roomID, err := domain.ParseRoomID(m.ChannelID)
	if err != nil {
		o.sendError(id, err)
		return
	}
	user, err := domain.NewUser(m.UserID, m.Username, m.Avatar)
	if err != nil {
		o.sendError(id, err)
		return
	}
	if !o.Guard.CheckAndRecord(addr, app.GuardJoin) {
		o.Registry.Cancel(id)
		return
	}

	// Refuse before touching the current binding so a rejected join keeps
	// the user where they were.
	if !o.Rooms.Admits(roomID) {
		o.sendError(id, domain.ErrCapacityExceeded)
		return
	}

	// A connection belongs to at most one room.
	if prevRoom, prevUser, ok := o.Registry.Membership(id); ok && (prevRoom != roomID || prevUser != user.ID) {
		o.Registry.ClearMembership(id)
		o.leave(prevRoom, prevUser, id)
	}

	room, isHost, err := o.Rooms.GetOrCreate(roomID, user, id)
	if err != nil {
		if errors.Is(err, domain.ErrCapacityExceeded) {
			o.sendError(id, err)
		} else {
			log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("join")
		}
		return
	}
	if !isHost {
		if isHost, err = o.Rooms.Join(roomID, user, id); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("join")
			return
		}
	}
	o.Registry.SetMembership(id, roomID, user.ID)
	o.Persist.NotifyChanged()

	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("user", string(user.ID)).
		Bool("host", isHost).Msg("joined")

	o.sendTo(id, core.RoleMsg{
		Type:          core.TypeRole,
		IsHost:        isHost,
		HostID:        room.HostID,
		CurrentVideo:  room.CurrentVideo,
		PlaybackState: room.Playback.Reconciled(o.now()),
		ViewerCount:   room.ViewerCount(),
	})
	o.broadcast(room, core.ViewerJoinedMsg{
		Type:        core.TypeViewerJoined,
		UserID:      user.ID,
		Username:    user.Username,
		ViewerCount: room.ViewerCount(),
	}, id)
}

// leave removes user's binding on conn from the room and tells the others.
func (o *Orchestrator) leave(roomID domain.RoomID, user domain.UserID, conn domain.ConnID) {
	res := o.Rooms.Leave(roomID, user, conn)
	switch res.Kind {
	case core.LeaveStale:
		return
	case core.LeaveViewer:
		o.broadcast(res.Room, core.ViewerLeftMsg{
			Type:        core.TypeViewerLeft,
			UserID:      user,
			ViewerCount: res.Room.ViewerCount(),
		})
	case core.LeaveHandoff:
		o.announceHost(res.Room)
	case core.LeaveClosed:
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("user", string(user)).Msg("left")
	o.Persist.NotifyChanged()
}

// announceHost sends the current host its role and everyone else
// host-changed.
func (o *Orchestrator) announceHost(room *domain.Room) {
	if room.HostConn != "" {
		o.sendTo(room.HostConn, core.RoleMsg{
			Type:          core.TypeRole,
			IsHost:        true,
			HostID:        room.HostID,
			CurrentVideo:  room.CurrentVideo,
			PlaybackState: room.Playback.Reconciled(o.now()),
			ViewerCount:   room.ViewerCount(),
		})
	}
	exclude := []domain.ConnID{}
	if room.HostConn != "" {
		exclude = append(exclude, room.HostConn)
	}
	o.broadcast(room, core.HostChangedMsg{
		Type:        core.TypeHostChanged,
		NewHostID:   room.HostID,
		ViewerCount: room.ViewerCount(),
	}, exclude...)
}
