package app

import "github.com/dkeye/WatchParty/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, conn domain.ConnID) BackpressureAction
}

// DropPolicy loses the frame and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomID, domain.ConnID) BackpressureAction { return DropFrame }

// KickPolicy closes slow connections; they leave the room through the
// normal disconnect path.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.RoomID, domain.ConnID) BackpressureAction { return KickMember }

func PolicyByName(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return DropPolicy{}
}
