// Package domain contains entities without transport, just meta-data
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultUsername is used when a client joins without a name.
const DefaultUsername = "anonymous"

type ParticipantID string

type Role string

const (
	RoleHost   Role = "host"
	RoleMember Role = "member"
)

// Participant is one joined client within a room.
type Participant struct {
	ID       ParticipantID
	Name     string
	RoomID   RoomID
	IsHost   bool
	Seq      uint64
	JoinedAt time.Time
}

// NewParticipant assigns a fresh id; ids are never taken from the client.
func NewParticipant(name string, roomID RoomID, seq uint64) *Participant {
	if name == "" {
		name = DefaultUsername
	}
	return &Participant{
		ID:       ParticipantID(uuid.NewString()),
		Name:     name,
		RoomID:   roomID,
		Seq:      seq,
		JoinedAt: time.Now(),
	}
}

func (p *Participant) Role() Role {
	if p.IsHost {
		return RoleHost
	}
	return RoleMember
}

// RosterEntry is the wire view of a participant.
type RosterEntry struct {
	ID     ParticipantID `json:"id"`
	Name   string        `json:"name"`
	IsHost bool          `json:"isHost"`
}

func (p *Participant) Entry() RosterEntry {
	return RosterEntry{ID: p.ID, Name: p.Name, IsHost: p.IsHost}
}
