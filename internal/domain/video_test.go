package domain

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestPlaybackReconciled(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	p := PlaybackState{Playing: true, CurrentTime: 100, LastUpdate: start.UnixMilli()}

	got := p.Reconciled(start.Add(5 * time.Second))
	if got.CurrentTime != 105 {
		t.Fatalf("expected 105, got %v", got.CurrentTime)
	}
	if got.LastUpdate != p.LastUpdate {
		t.Fatalf("lastUpdate must be kept, got %d", got.LastUpdate)
	}

	p.Playing = false
	if got := p.Reconciled(start.Add(time.Minute)); got.CurrentTime != 100 {
		t.Fatalf("paused state must not advance, got %v", got.CurrentTime)
	}
}

func TestPlaybackClockSkew(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	p := PlaybackState{Playing: true, CurrentTime: 10, LastUpdate: now.Add(time.Second).UnixMilli()}
	if got := p.Position(now); got != 10 {
		t.Fatalf("future checkpoint must not rewind, got %v", got)
	}
}

func TestVideoValidate(t *testing.T) {
	ok := Video{URL: "https://cdn/x.m3u8", Title: "Ep 1", EpisodeID: "show-1", Episode: json.RawMessage(`1`)}
	cases := []struct {
		name string
		mut  func(v *Video)
		want error
	}{
		{"valid", func(v *Video) {}, nil},
		{"no episode id", func(v *Video) { v.EpisodeID = "" }, ErrEpisodeIDEmpty},
		{"long title", func(v *Video) { v.Title = strings.Repeat("t", MaxTitleLen+1) }, ErrVideoField},
		{"long url", func(v *Video) { v.URL = strings.Repeat("u", MaxURLLen+1) }, ErrVideoField},
		{"long episode", func(v *Video) { v.Episode = json.RawMessage(`"` + strings.Repeat("9", 40) + `"`) }, ErrVideoField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := ok
			tc.mut(&v)
			if err := v.Validate(); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	var nilVideo *Video
	if err := nilVideo.Validate(); err != ErrVideoMissing {
		t.Fatalf("expected ErrVideoMissing, got %v", err)
	}
}

func TestVideoCloneIsDeep(t *testing.T) {
	v := &Video{EpisodeID: "e", Episode: json.RawMessage(`12`)}
	c := v.Clone()
	c.Episode[0] = '9'
	if string(v.Episode) != "12" {
		t.Fatalf("clone shares episode bytes: %s", v.Episode)
	}
}

func TestValidTime(t *testing.T) {
	for _, v := range []float64{-1, math.NaN(), math.Inf(1)} {
		if ValidTime(v) {
			t.Fatalf("%v must be invalid", v)
		}
	}
	if !ValidTime(0) || !ValidTime(1234.5) {
		t.Fatal("expected valid times")
	}
}
