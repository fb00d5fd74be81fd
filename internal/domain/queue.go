package domain

import (
	"errors"
	"time"
)

// ErrChannelNotFound lo devuelve la plataforma cuando un canal ya no existe.
var ErrChannelNotFound = errors.New("channel not found")

// Kind distingue colas de voz (se llenan moviendo gente) de colas de texto.
type Kind string

const (
	KindVoice Kind = "voice"
	KindText  Kind = "text"
)

// AutoFill decide cuántos miembros se jalan por cada vacante del target.
type AutoFill string

const (
	AutoFillOff      AutoFill = "off"      // nunca se llena solo
	AutoFillPullNum  AutoFill = "pull_num" // PullNum por vacante
	AutoFillCapacity AutoFill = "capacity" // hasta la capacidad del destino
)

type Queue struct {
	ID          string // channel id
	GuildID     string
	Kind        Kind
	TargetID    string // "" = sin destino
	Capacity    int    // 0 = sin límite
	GracePeriod time.Duration
	AutoFill    AutoFill
	PullNum     int
}

// Relocatable: sólo las colas de voz con destino mueven miembros.
func (q Queue) Relocatable() bool {
	return q.Kind == KindVoice && q.TargetID != ""
}

func (q Queue) AutoFillEnabled() bool {
	return q.AutoFill == AutoFillPullNum || q.AutoFill == AutoFillCapacity
}

// PullCount normaliza PullNum (default 1).
func (q Queue) PullCount() int {
	if q.PullNum <= 0 {
		return 1
	}
	return q.PullNum
}

type Member struct {
	QueueID  string
	UserID   string
	Position int64 // unix nanos del join, única dentro de la cola
	Priority bool
	Note     string
}

func (m Member) JoinedAt() time.Time { return time.Unix(0, m.Position) }

// ChannelInfo es lo que el core necesita saber de un canal destino.
type ChannelInfo struct {
	ID              string
	GuildID         string
	Capacity        int // 0 = sin límite
	NonBotOccupants int
}

// Full reporta si el canal ya no admite a nadie más.
func (c ChannelInfo) Full() bool {
	return c.Capacity > 0 && c.NonBotOccupants >= c.Capacity
}

// Vacancies: lugares libres (0 si no hay capacidad numérica).
func (c ChannelInfo) Vacancies() int {
	if c.Capacity <= 0 {
		return 0
	}
	if n := c.Capacity - c.NonBotOccupants; n > 0 {
		return n
	}
	return 0
}

// PresenceChange es una transición de canal observada para un usuario.
type PresenceChange struct {
	GuildID string
	UserID  string
	Bot     bool // cualquier bot
	Self    bool // nuestra propia identidad
	Before  string
	After   string
}
