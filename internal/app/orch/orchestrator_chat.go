package orch

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const MaxChatLen = 500

var (
	ErrChatEmpty  = errors.New("message content is required")
	ErrChatLength = errors.New("message too long (max 500 characters)")
)

func (o *Orchestrator) handleChat(id domain.ConnID, addr string, m core.ChatMsg) {
	room, user, ok := o.member(id)
	if !ok {
		return
	}
	if m.Content == nil || *m.Content == "" {
		o.sendError(id, ErrChatEmpty)
		return
	}
	if utf8.RuneCountInString(*m.Content) > MaxChatLen {
		o.sendError(id, ErrChatLength)
		return
	}
	content := strings.TrimSpace(*m.Content)
	if content == "" {
		return
	}
	if !o.Guard.CheckAndRecord(addr, app.GuardChat) {
		o.Registry.Cancel(id)
		return
	}

	username := m.Username
	if username == "" {
		username = domain.DefaultUsername
	}
	if r := []rune(username); len(r) > domain.MaxUsernameLen {
		username = string(r[:domain.MaxUsernameLen])
	}

	now := o.now()
	msgID, err := ulid.New(ulid.Timestamp(now), o.entropy)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("chat id")
		return
	}
	o.broadcast(room, core.ChatOut{
		Type:      core.TypeChat,
		ID:        msgID.String(),
		UserID:    user,
		Username:  username,
		Content:   content,
		Timestamp: now.UnixMilli(),
	})
}
