package orch

import (
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) ListRooms() []core.RoomInfo {
	return o.Rooms.List()
}

// ForceHost makes user the host of room. The previous host stays as a
// viewer and learns about it through host-changed like everyone else.
func (o *Orchestrator) ForceHost(roomID domain.RoomID, user domain.UserID) (*core.RoomInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	room, err := o.Rooms.SetHost(roomID, user)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("new_host", string(user)).Msg("host reassigned by admin")
	o.announceHost(room)
	o.Persist.NotifyChanged()

	for _, info := range o.Rooms.List() {
		if info.ChannelID == roomID {
			return &info, nil
		}
	}
	return nil, domain.ErrRoomNotFound
}
