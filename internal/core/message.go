package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/WatchParty/internal/domain"
)

type MessageType string

const (
	TypeJoin      MessageType = "join"
	TypeSync      MessageType = "sync"
	TypePlay      MessageType = "play"
	TypePause     MessageType = "pause"
	TypeSeek      MessageType = "seek"
	TypeLoadVideo MessageType = "load-video"
	TypeChat      MessageType = "chat"

	TypeRole         MessageType = "role"
	TypeViewerJoined MessageType = "viewer-joined"
	TypeViewerLeft   MessageType = "viewer-left"
	TypeHostChanged  MessageType = "host-changed"
	TypeError        MessageType = "error"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Inbound is one decoded client message. The concrete types below are the
// full set.
type Inbound interface {
	Kind() MessageType
}

type JoinMsg struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"odUserId"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar"`
}

type SyncMsg struct {
	Playing     bool     `json:"playing"`
	CurrentTime *float64 `json:"currentTime"`
	EpisodeID   string   `json:"episodeId"`
}

// ControlMsg is play, pause or seek.
type ControlMsg struct {
	Type        MessageType `json:"type"`
	CurrentTime *float64    `json:"currentTime"`
}

type LoadVideoMsg struct {
	Video *domain.Video
}

type ChatMsg struct {
	Content  *string `json:"content"`
	Username string  `json:"username"`
}

func (JoinMsg) Kind() MessageType      { return TypeJoin }
func (SyncMsg) Kind() MessageType      { return TypeSync }
func (m ControlMsg) Kind() MessageType { return m.Type }
func (LoadVideoMsg) Kind() MessageType { return TypeLoadVideo }
func (ChatMsg) Kind() MessageType      { return TypeChat }

// legacyLoadVideo is the older flat load-video shape; a nested video wins.
type legacyLoadVideo struct {
	domain.Video
	Nested *domain.Video `json:"video"`
}

func DecodeInbound(data []byte) (Inbound, error) {
	var env struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		msg Inbound
		err error
	)
	switch env.Type {
	case TypeJoin:
		var m JoinMsg
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeSync:
		var m SyncMsg
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePlay, TypePause, TypeSeek:
		var m ControlMsg
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeLoadVideo:
		var m legacyLoadVideo
		err = json.Unmarshal(data, &m)
		v := m.Nested
		if v == nil {
			v = &m.Video
		}
		msg = LoadVideoMsg{Video: v}
	case TypeChat:
		var m ChatMsg
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

// Outbound messages.

type RoleMsg struct {
	Type          MessageType          `json:"type"`
	IsHost        bool                 `json:"isHost"`
	HostID        domain.UserID        `json:"hostId"`
	CurrentVideo  *domain.Video        `json:"currentVideo"`
	PlaybackState domain.PlaybackState `json:"playbackState"`
	ViewerCount   int                  `json:"viewerCount"`
}

type SyncOut struct {
	Type MessageType `json:"type"`
	domain.PlaybackState
}

type ControlOut struct {
	Type        MessageType `json:"type"`
	CurrentTime float64     `json:"currentTime"`
	Playing     bool        `json:"playing"`
}

type LoadVideoOut struct {
	Type          MessageType          `json:"type"`
	Video         *domain.Video        `json:"video"`
	PlaybackState domain.PlaybackState `json:"playbackState"`
}

type ViewerJoinedMsg struct {
	Type        MessageType   `json:"type"`
	UserID      domain.UserID `json:"userId"`
	Username    string        `json:"username"`
	ViewerCount int           `json:"viewerCount"`
}

type ViewerLeftMsg struct {
	Type        MessageType   `json:"type"`
	UserID      domain.UserID `json:"userId"`
	ViewerCount int           `json:"viewerCount"`
}

type HostChangedMsg struct {
	Type        MessageType   `json:"type"`
	NewHostID   domain.UserID `json:"newHostId"`
	ViewerCount int           `json:"viewerCount"`
}

type ChatOut struct {
	Type      MessageType   `json:"type"`
	ID        string        `json:"id"`
	UserID    domain.UserID `json:"userId"`
	Username  string        `json:"username"`
	Content   string        `json:"content"`
	Timestamp int64         `json:"timestamp"`
}

type ErrorMsg struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func NewErrorMsg(msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Message: msg}
}
