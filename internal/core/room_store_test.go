package core

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
)

func user(id string) *domain.User {
	return &domain.User{ID: domain.UserID(id), Username: "user-" + id}
}

func newStore(max int) (*RoomStore, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	return NewRoomStore(max, func() time.Time { return now }), &now
}

func TestFirstJoinerIsHost(t *testing.T) {
	s, _ := newStore(10)

	r, created, err := s.GetOrCreate("room", user("a"), "c-a")
	if err != nil || !created {
		t.Fatalf("expected new room, got created=%v err=%v", created, err)
	}
	if r.HostID != "a" || r.HostConn != "c-a" || r.CurrentVideo != nil || r.Playback.Playing {
		t.Fatalf("unexpected initial room %+v", r)
	}

	_, created, _ = s.GetOrCreate("room", user("b"), "c-b")
	if created {
		t.Fatal("second joiner must not create the room")
	}
	isHost, err := s.Join("room", user("b"), "c-b")
	if err != nil || isHost {
		t.Fatalf("second joiner must be a viewer, got host=%v err=%v", isHost, err)
	}
	if r.ViewerCount() != 2 {
		t.Fatalf("expected viewer count 2, got %d", r.ViewerCount())
	}
}

func TestHostRejoinRebindsConnection(t *testing.T) {
	s, _ := newStore(10)
	r, _, _ := s.GetOrCreate("room", user("a"), "c1")

	isHost, _ := s.Join("room", user("a"), "c2")
	if !isHost || r.HostConn != "c2" {
		t.Fatalf("host reconnect must rebind, got host=%v conn=%q", isHost, r.HostConn)
	}

	res := s.Leave("room", "a", "c1")
	if res.Kind != LeaveStale {
		t.Fatalf("leave from the old socket must be ignored, got %v", res.Kind)
	}
	if _, ok := s.Get("room"); !ok {
		t.Fatal("room must survive a stale leave")
	}
}

func TestCapacity(t *testing.T) {
	s, _ := newStore(2)
	s.GetOrCreate("r1", user("a"), "c1")
	s.GetOrCreate("r2", user("b"), "c2")

	if _, _, err := s.GetOrCreate("r3", user("c"), "c3"); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if _, _, err := s.GetOrCreate("r1", user("d"), "c4"); err != nil {
		t.Fatalf("existing room must stay joinable at capacity: %v", err)
	}
	if s.Admits("r3") || !s.Admits("r1") {
		t.Fatal("Admits must refuse only new rooms at capacity")
	}
}

func TestHandoffPicksEarliestConnectedViewer(t *testing.T) {
	s, _ := newStore(10)
	r, _, _ := s.GetOrCreate("room", user("h"), "c-h")
	s.Join("room", user("v1"), "c-1")
	s.Join("room", user("v2"), "c-2")
	s.Join("room", user("v3"), "c-3")
	r.Viewers["v1"].Conn = "" // v1 is gone but not yet cleaned up

	res := s.Leave("room", "h", "c-h")
	if res.Kind != LeaveHandoff || res.NewHost != "v2" {
		t.Fatalf("expected handoff to v2, got %+v", res)
	}
	if r.HostID != "v2" || r.HostConn != "c-2" || r.HostUsername != "user-v2" {
		t.Fatalf("new host not bound: %+v", r)
	}
	if _, ok := r.Viewers["v2"]; ok {
		t.Fatal("host must not remain a viewer")
	}
	if r.ViewerCount() != 3 {
		t.Fatalf("expected 3 users left, got %d", r.ViewerCount())
	}
}

func TestLastLeaveDeletesRoom(t *testing.T) {
	s, _ := newStore(10)
	s.GetOrCreate("room", user("h"), "c-h")
	s.Join("room", user("v"), "c-v")

	if res := s.Leave("room", "v", "c-v"); res.Kind != LeaveViewer {
		t.Fatalf("expected viewer leave, got %v", res.Kind)
	}
	if res := s.Leave("room", "h", "c-h"); res.Kind != LeaveClosed {
		t.Fatalf("expected room closed, got %v", res.Kind)
	}
	if s.Count() != 0 {
		t.Fatalf("expected empty store, got %d rooms", s.Count())
	}
}

func TestSetHostKeepsOldHostAsViewer(t *testing.T) {
	s, _ := newStore(10)
	r, _, _ := s.GetOrCreate("room", user("h"), "c-h")
	s.Join("room", user("v"), "c-v")

	if _, err := s.SetHost("room", "nobody"); !errors.Is(err, domain.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if _, err := s.SetHost("missing", "v"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if _, err := s.SetHost("room", "v"); err != nil {
		t.Fatal(err)
	}
	if r.HostID != "v" || r.HostConn != "c-v" {
		t.Fatalf("unexpected host %q on %q", r.HostID, r.HostConn)
	}
	old, ok := r.Viewers["h"]
	if !ok || old.Conn != "c-h" || old.Username != "user-h" {
		t.Fatalf("old host must stay as viewer, got %+v", old)
	}
}

func TestEvictIdle(t *testing.T) {
	s, now := newStore(10)
	s.GetOrCreate("live", user("a"), "c-a")
	r, _, _ := s.GetOrCreate("dead", user("b"), "c-b")
	r.HostConn = ""

	*now = now.Add(2 * time.Hour)
	evicted := s.EvictIdle(now.Add(-time.Hour))
	if len(evicted) != 1 || evicted[0] != "dead" {
		t.Fatalf("expected only the disconnected room evicted, got %v", evicted)
	}
	if _, ok := s.Get("live"); !ok {
		t.Fatal("room with a live connection must stay")
	}
}

func TestList(t *testing.T) {
	s, _ := newStore(10)
	s.GetOrCreate("b", user("h2"), "c3")
	s.GetOrCreate("a", user("h1"), "c1")
	s.Join("a", user("v1"), "c2")

	rooms := s.List()
	if len(rooms) != 2 || rooms[0].ChannelID != "a" {
		t.Fatalf("expected rooms sorted by id, got %+v", rooms)
	}
	if rooms[0].TotalUsers != 2 || rooms[0].ViewerCount != 1 || len(rooms[0].Viewers) != 1 {
		t.Fatalf("unexpected counts %+v", rooms[0])
	}
}
