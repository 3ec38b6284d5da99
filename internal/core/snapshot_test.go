package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s, _ := newStore(10)
	r, _, _ := s.GetOrCreate("room", user("h"), "c-h")
	s.Join("room", user("v1"), "c-1")
	s.Join("room", user("v2"), "c-2")
	r.CurrentVideo = &domain.Video{URL: "u", EpisodeID: "ep", Episode: json.RawMessage(`3`)}
	r.Playback = domain.PlaybackState{Playing: true, CurrentTime: 12.5, LastUpdate: 1_700_000_000_000, EpisodeID: "ep"}

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "c-1") {
		t.Fatalf("snapshot must not carry connection ids: %s", data)
	}
	if !strings.Contains(string(data), `"viewers":[["v1",{"username":"user-v1","avatar":""}],["v2"`) {
		t.Fatalf("viewers must be [id, meta] pairs in join order: %s", data)
	}

	var saved []SavedRoom
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	restored := NewRoomStore(10, time.Now)
	if n := restored.Restore(saved); n != 1 {
		t.Fatalf("expected 1 room, got %d", n)
	}
	got, ok := restored.Get("room")
	if !ok {
		t.Fatal("room missing after restore")
	}
	if got.HostID != "h" || got.HostConn != "" || len(got.Viewers) != 2 {
		t.Fatalf("unexpected restored room %+v", got)
	}
	if got.Viewers["v1"].Conn != "" || got.Viewers["v1"].Username != "user-v1" {
		t.Fatalf("unexpected restored viewer %+v", got.Viewers["v1"])
	}
	if got.Playback != r.Playback {
		t.Fatalf("playback changed: %+v vs %+v", got.Playback, r.Playback)
	}
	if got.CurrentVideo.EpisodeID != "ep" || string(got.CurrentVideo.Episode) != "3" {
		t.Fatalf("video changed: %+v", got.CurrentVideo)
	}

	// restored members rejoin in the saved order
	res := restored.Leave("room", "h", "")
	if res.Kind != LeaveHandoff || res.NewHost != "v1" {
		t.Fatalf("expected v1 to take over, got %+v", res)
	}
}

func TestRestoreOlderFormat(t *testing.T) {
	data := `[{"id":"r","hostId":"h","viewers":[["v",{"username":"bob","avatar":"x"}]],"currentVideo":null,
		"playbackState":{"playing":false,"currentTime":3,"lastUpdate":1}}]`
	var saved []SavedRoom
	if err := json.Unmarshal([]byte(data), &saved); err != nil {
		t.Fatal(err)
	}
	s := NewRoomStore(10, nil)
	s.Restore(saved)
	r, ok := s.Get("r")
	if !ok || r.HostUsername != domain.DefaultUsername || r.Viewers["v"].Avatar != "x" {
		t.Fatalf("unexpected room %+v", r)
	}
}
