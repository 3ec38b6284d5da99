package domain

import (
	"encoding/json"
	"errors"
	"math"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLen    = 256
	MaxURLLen      = 2048
	MaxEpisodeLen  = 32
	MaxProviderLen = 64
	MaxEpisodeID   = 256
)

var (
	ErrVideoMissing   = errors.New("missing video")
	ErrEpisodeIDEmpty = errors.New("video must carry an episode id")
	ErrVideoField     = errors.New("invalid video field")
	ErrInvalidTime    = errors.New("invalid playback time")
)

// Video describes what the host loaded. Episode is kept verbatim since
// clients send either a number or a string.
type Video struct {
	URL       string          `json:"url"`
	Title     string          `json:"title"`
	Episode   json.RawMessage `json:"episode,omitempty"`
	Thumbnail string          `json:"thumbnail"`
	EpisodeID string          `json:"episodeId"`
	Provider  string          `json:"provider"`
	IsDub     bool            `json:"isDub"`
	Subtitle  string          `json:"subtitle,omitempty"`
}

func (v *Video) Validate() error {
	if v == nil {
		return ErrVideoMissing
	}
	if v.EpisodeID == "" {
		return ErrEpisodeIDEmpty
	}
	switch {
	case utf8.RuneCountInString(v.EpisodeID) > MaxEpisodeID,
		utf8.RuneCountInString(v.Title) > MaxTitleLen,
		utf8.RuneCountInString(v.Provider) > MaxProviderLen,
		len(v.URL) > MaxURLLen,
		len(v.Thumbnail) > MaxURLLen,
		len(v.Subtitle) > MaxURLLen,
		len(v.Episode) > MaxEpisodeLen:
		return ErrVideoField
	}
	return nil
}

func (v *Video) Clone() *Video {
	if v == nil {
		return nil
	}
	c := *v
	if v.Episode != nil {
		c.Episode = append(json.RawMessage(nil), v.Episode...)
	}
	return &c
}

// PlaybackState is a checkpoint: CurrentTime (seconds) is valid as of
// LastUpdate (unix milliseconds).
type PlaybackState struct {
	Playing     bool    `json:"playing"`
	CurrentTime float64 `json:"currentTime"`
	LastUpdate  int64   `json:"lastUpdate"`
	EpisodeID   string  `json:"episodeId,omitempty"`
}

func NewPlaybackState(now time.Time) PlaybackState {
	return PlaybackState{LastUpdate: now.UnixMilli()}
}

// Position extrapolates the checkpoint to now.
func (p PlaybackState) Position(now time.Time) float64 {
	if !p.Playing {
		return p.CurrentTime
	}
	elapsed := float64(now.UnixMilli()-p.LastUpdate) / 1000
	if elapsed < 0 {
		elapsed = 0
	}
	return p.CurrentTime + elapsed
}

// Reconciled returns the state a late joiner should seek to.
func (p PlaybackState) Reconciled(now time.Time) PlaybackState {
	p.CurrentTime = p.Position(now)
	return p
}

func ValidTime(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0) && t >= 0
}
