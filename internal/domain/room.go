package domain

import (
	"errors"
	"time"
	"unicode/utf8"
)

const MaxRoomIDLen = 64

var (
	ErrRoomIDInvalid    = errors.New("invalid channel id")
	ErrCapacityExceeded = errors.New("server at capacity, please try again later")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotMember        = errors.New("user is not a member of the room")
)

type RoomID string

func ParseRoomID(s string) (RoomID, error) {
	if s == "" || utf8.RuneCountInString(s) > MaxRoomIDLen {
		return "", ErrRoomIDInvalid
	}
	return RoomID(s), nil
}

// Room is the unit of synchronization. It has exactly one host; the host is
// never present in Viewers.
type Room struct {
	ID           RoomID
	HostID       UserID
	HostUsername string
	HostAvatar   string
	// HostConn is empty while the host is disconnected but not yet replaced.
	HostConn     ConnID
	Viewers      map[UserID]*Viewer
	CurrentVideo *Video
	Playback     PlaybackState
	LastActive   time.Time
}

func NewRoom(id RoomID, host *User, conn ConnID, now time.Time) *Room {
	return &Room{
		ID:           id,
		HostID:       host.ID,
		HostUsername: host.Username,
		HostAvatar:   host.Avatar,
		HostConn:     conn,
		Viewers:      make(map[UserID]*Viewer),
		Playback:     NewPlaybackState(now),
		LastActive:   now,
	}
}

// ViewerCount counts the host too, matching what clients display.
func (r *Room) ViewerCount() int { return len(r.Viewers) + 1 }

// IsHost reports whether user on conn currently holds the host role.
func (r *Room) IsHost(user UserID, conn ConnID) bool {
	return r.HostID == user && r.HostConn != "" && r.HostConn == conn
}

// BoundConn returns the connection currently bound to user in this room.
func (r *Room) BoundConn(user UserID) (ConnID, bool) {
	if user == r.HostID {
		return r.HostConn, true
	}
	if v, ok := r.Viewers[user]; ok {
		return v.Conn, true
	}
	return "", false
}

func (r *Room) HasLiveConn() bool {
	if r.HostConn != "" {
		return true
	}
	for _, v := range r.Viewers {
		if v.Conn != "" {
			return true
		}
	}
	return false
}

// Conns lists every bound connection, host first.
func (r *Room) Conns() []ConnID {
	out := make([]ConnID, 0, len(r.Viewers)+1)
	if r.HostConn != "" {
		out = append(out, r.HostConn)
	}
	for _, v := range r.Viewers {
		if v.Conn != "" {
			out = append(out, v.Conn)
		}
	}
	return out
}
