package core

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomStore is the authoritative set of rooms.
// Mutations take the write lock; callers may read returned rooms without it
// as long as they are the only writer (the coordinator serializes all
// writes), while Snapshot and List may run concurrently under the read lock.
type RoomStore struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]*domain.Room
	maxRooms int
	seq      uint64
	now      func() time.Time
}

func NewRoomStore(maxRooms int, now func() time.Time) *RoomStore {
	if now == nil {
		now = time.Now
	}
	return &RoomStore{
		rooms:    make(map[domain.RoomID]*domain.Room),
		maxRooms: maxRooms,
		now:      now,
	}
}

// GetOrCreate returns the room, creating it with user as host when absent.
// created reports whether user became host of a new room.
func (s *RoomStore) GetOrCreate(id domain.RoomID, user *domain.User, conn domain.ConnID) (room *domain.Room, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		return r, false, nil
	}
	if s.maxRooms > 0 && len(s.rooms) >= s.maxRooms {
		log.Warn().Str("module", "core.room_store").Int("max_rooms", s.maxRooms).Msg("room limit reached")
		return nil, false, domain.ErrCapacityExceeded
	}
	r := domain.NewRoom(id, user, conn, s.now())
	s.rooms[id] = r
	log.Info().Str("module", "core.room_store").Str("room", string(id)).Str("host", string(user.ID)).Msg("room created")
	return r, true, nil
}

// Admits reports whether a join to id fits under the room cap.
func (s *RoomStore) Admits(id domain.RoomID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[id]; ok {
		return true
	}
	return s.maxRooms <= 0 || len(s.rooms) < s.maxRooms
}

// Join binds user to conn inside an existing room and reports whether user
// is the host.
func (s *RoomStore) Join(id domain.RoomID, user *domain.User, conn domain.ConnID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	r.LastActive = s.now()
	if r.HostID == user.ID {
		r.HostConn = conn
		r.HostUsername, r.HostAvatar = user.Username, user.Avatar
		return true, nil
	}
	if v, ok := r.Viewers[user.ID]; ok {
		v.Username, v.Avatar, v.Conn = user.Username, user.Avatar, conn
		return false, nil
	}
	s.seq++
	r.Viewers[user.ID] = &domain.Viewer{
		Username:  user.Username,
		Avatar:    user.Avatar,
		Conn:      conn,
		JoinedSeq: s.seq,
	}
	return false, nil
}

type LeaveKind int

const (
	// LeaveStale means conn was no longer bound to the user; nothing changed.
	LeaveStale LeaveKind = iota
	LeaveViewer
	LeaveHandoff
	LeaveClosed
)

type LeaveResult struct {
	Kind    LeaveKind
	Room    *domain.Room
	NewHost domain.UserID
}

func (s *RoomStore) Leave(id domain.RoomID, user domain.UserID, conn domain.ConnID) LeaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return LeaveResult{Kind: LeaveStale}
	}
	bound, ok := r.BoundConn(user)
	if !ok || bound != conn {
		return LeaveResult{Kind: LeaveStale, Room: r}
	}
	r.LastActive = s.now()

	if user != r.HostID {
		delete(r.Viewers, user)
		return LeaveResult{Kind: LeaveViewer, Room: r}
	}

	next, ok := nextHost(r)
	if !ok {
		delete(s.rooms, id)
		log.Info().Str("module", "core.room_store").Str("room", string(id)).Msg("room closed")
		return LeaveResult{Kind: LeaveClosed, Room: r}
	}
	promote(r, next)
	log.Info().Str("module", "core.room_store").Str("room", string(id)).Str("new_host", string(next)).Msg("host handed off")
	return LeaveResult{Kind: LeaveHandoff, Room: r, NewHost: next}
}

// nextHost picks the earliest joined viewer that is still connected,
// falling back to the earliest joined one.
func nextHost(r *domain.Room) (domain.UserID, bool) {
	var (
		best, bestLive   domain.UserID
		bestSeq, liveSeq uint64
		found, foundLive bool
	)
	for id, v := range r.Viewers {
		if !found || v.JoinedSeq < bestSeq || (v.JoinedSeq == bestSeq && id < best) {
			best, bestSeq, found = id, v.JoinedSeq, true
		}
		if v.Conn != "" && (!foundLive || v.JoinedSeq < liveSeq || (v.JoinedSeq == liveSeq && id < bestLive)) {
			bestLive, liveSeq, foundLive = id, v.JoinedSeq, true
		}
	}
	if foundLive {
		return bestLive, true
	}
	return best, found
}

func promote(r *domain.Room, id domain.UserID) {
	v := r.Viewers[id]
	delete(r.Viewers, id)
	r.HostID = id
	r.HostUsername, r.HostAvatar = v.Username, v.Avatar
	r.HostConn = v.Conn
}

// SetHost hands the host role to a current viewer. The previous host stays
// in the room as a viewer.
func (s *RoomStore) SetHost(id domain.RoomID, user domain.UserID) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if r.HostID == user {
		return r, nil
	}
	if _, ok := r.Viewers[user]; !ok {
		return nil, domain.ErrNotMember
	}
	s.seq++
	old := &domain.Viewer{
		Username:  r.HostUsername,
		Avatar:    r.HostAvatar,
		Conn:      r.HostConn,
		JoinedSeq: s.seq,
	}
	oldID := r.HostID
	promote(r, user)
	r.Viewers[oldID] = old
	r.LastActive = s.now()
	return r, nil
}

// Update runs fn on the room under the write lock.
func (s *RoomStore) Update(id domain.RoomID, fn func(*domain.Room)) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	fn(r)
	r.LastActive = s.now()
	return r, nil
}

func (s *RoomStore) Get(id domain.RoomID) (*domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

func (s *RoomStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

type ViewerInfo struct {
	UserID    domain.UserID `json:"userId"`
	Username  string        `json:"username"`
	Avatar    string        `json:"avatar"`
	Connected bool          `json:"connected"`
}

// RoomInfo is a read-only view for the admin API.
type RoomInfo struct {
	ChannelID     domain.RoomID        `json:"channelId"`
	HostID        domain.UserID        `json:"hostId"`
	HostUsername  string               `json:"hostUsername"`
	HostConnected bool                 `json:"hostConnected"`
	Viewers       []ViewerInfo         `json:"viewers"`
	ViewerCount   int                  `json:"viewerCount"`
	TotalUsers    int                  `json:"totalUsers"`
	CurrentVideo  *domain.Video        `json:"currentVideo"`
	PlaybackState domain.PlaybackState `json:"playbackState"`
}

func (s *RoomStore) List() []RoomInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RoomInfo, 0, len(s.rooms))
	for _, r := range s.rooms {
		info := RoomInfo{
			ChannelID:     r.ID,
			HostID:        r.HostID,
			HostUsername:  r.HostUsername,
			HostConnected: r.HostConn != "",
			Viewers:       make([]ViewerInfo, 0, len(r.Viewers)),
			ViewerCount:   len(r.Viewers),
			TotalUsers:    r.ViewerCount(),
			CurrentVideo:  r.CurrentVideo.Clone(),
			PlaybackState: r.Playback,
		}
		for id, v := range r.Viewers {
			info.Viewers = append(info.Viewers, ViewerInfo{
				UserID: id, Username: v.Username, Avatar: v.Avatar, Connected: v.Conn != "",
			})
		}
		sort.Slice(info.Viewers, func(i, j int) bool { return info.Viewers[i].UserID < info.Viewers[j].UserID })
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// EvictIdle drops rooms nobody is connected to that have been idle since
// before cutoff. Returns the evicted ids.
func (s *RoomStore) EvictIdle(cutoff time.Time) []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RoomID
	for id, r := range s.rooms {
		if r.HasLiveConn() || !r.LastActive.Before(cutoff) {
			continue
		}
		delete(s.rooms, id)
		out = append(out, id)
	}
	if len(out) > 0 {
		log.Info().Str("module", "core.room_store").Int("count", len(out)).Msg("evicted idle rooms")
	}
	return out
}
