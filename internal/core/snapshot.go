package core

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dkeye/WatchParty/internal/domain"
)

// SavedViewer is the persisted part of a viewer.
type SavedViewer struct {
	UserID   domain.UserID
	Username string
	Avatar   string
}

// MarshalJSON writes the viewer as a [userId, {username, avatar}] pair.
func (v SavedViewer) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{v.UserID, struct {
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}{v.Username, v.Avatar}})
}

func (v *SavedViewer) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("viewer entry: want 2 elements, got %d", len(pair))
	}
	var meta struct {
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	if err := json.Unmarshal(pair[0], &v.UserID); err != nil {
		return fmt.Errorf("viewer id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &meta); err != nil {
		return fmt.Errorf("viewer meta: %w", err)
	}
	v.Username, v.Avatar = meta.Username, meta.Avatar
	return nil
}

// SavedRoom is a room without connections, in persisted order of viewers.
type SavedRoom struct {
	ID            domain.RoomID        `json:"id"`
	HostID        domain.UserID        `json:"hostId"`
	HostUsername  string               `json:"hostUsername,omitempty"`
	HostAvatar    string               `json:"hostAvatar,omitempty"`
	Viewers       []SavedViewer        `json:"viewers"`
	CurrentVideo  *domain.Video        `json:"currentVideo"`
	PlaybackState domain.PlaybackState `json:"playbackState"`
}

// Snapshot deep-copies every room, dropping connection ids.
func (s *RoomStore) Snapshot() []SavedRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SavedRoom, 0, len(s.rooms))
	for _, r := range s.rooms {
		sr := SavedRoom{
			ID:            r.ID,
			HostID:        r.HostID,
			HostUsername:  r.HostUsername,
			HostAvatar:    r.HostAvatar,
			Viewers:       make([]SavedViewer, 0, len(r.Viewers)),
			CurrentVideo:  r.CurrentVideo.Clone(),
			PlaybackState: r.Playback,
		}
		type seqd struct {
			seq uint64
			v   SavedViewer
		}
		vs := make([]seqd, 0, len(r.Viewers))
		for id, v := range r.Viewers {
			vs = append(vs, seqd{v.JoinedSeq, SavedViewer{UserID: id, Username: v.Username, Avatar: v.Avatar}})
		}
		sort.Slice(vs, func(i, j int) bool { return vs[i].seq < vs[j].seq })
		for _, x := range vs {
			sr.Viewers = append(sr.Viewers, x.v)
		}
		out = append(out, sr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore replaces the store content. Restored rooms have no connections;
// entries without an id or host are skipped.
func (s *RoomStore) Restore(saved []SavedRoom) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.rooms = make(map[domain.RoomID]*domain.Room, len(saved))
	for _, sr := range saved {
		if sr.ID == "" || sr.HostID == "" {
			continue
		}
		r := &domain.Room{
			ID:           sr.ID,
			HostID:       sr.HostID,
			HostUsername: sr.HostUsername,
			HostAvatar:   sr.HostAvatar,
			Viewers:      make(map[domain.UserID]*domain.Viewer, len(sr.Viewers)),
			CurrentVideo: sr.CurrentVideo,
			Playback:     sr.PlaybackState,
			LastActive:   now,
		}
		if r.HostUsername == "" {
			r.HostUsername = domain.DefaultUsername
		}
		for _, v := range sr.Viewers {
			if v.UserID == "" || v.UserID == sr.HostID {
				continue
			}
			s.seq++
			r.Viewers[v.UserID] = &domain.Viewer{Username: v.Username, Avatar: v.Avatar, JoinedSeq: s.seq}
		}
		s.rooms[r.ID] = r
	}
	return len(s.rooms)
}
