// Package domain contains entities and their validation, no transport.
package domain

import (
	"errors"
	"unicode/utf8"
)

const (
	MaxUserIDLen    = 64
	MaxUsernameLen  = 100
	MaxAvatarLen    = 256
	DefaultUsername = "Anonymous"
)

var (
	ErrUserIDInvalid   = errors.New("invalid user id")
	ErrUsernameTooLong = errors.New("invalid username")
	ErrAvatarTooLong   = errors.New("invalid avatar")
)

type (
	UserID string
	// ConnID is an opaque handle of a live connection. Rooms keep ids only;
	// the connection registry resolves them.
	ConnID string
)

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// NewUser validates join identity fields. An empty username falls back to
// DefaultUsername.
func NewUser(id, username, avatar string) (*User, error) {
	if id == "" || utf8.RuneCountInString(id) > MaxUserIDLen {
		return nil, ErrUserIDInvalid
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	if utf8.RuneCountInString(avatar) > MaxAvatarLen {
		return nil, ErrAvatarTooLong
	}
	if username == "" {
		username = DefaultUsername
	}
	return &User{ID: UserID(id), Username: username, Avatar: avatar}, nil
}

// Viewer is a non-host room member.
type Viewer struct {
	Username string
	Avatar   string
	Conn     ConnID
	// JoinedSeq orders viewers for host handoff.
	JoinedSeq uint64
}
