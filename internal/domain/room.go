package domain

import (
	"slices"
	"time"
)

type RoomID string

// Room is a rendezvous namespace. Members are kept in join order,
// which makes host election deterministic.
type Room struct {
	ID        RoomID
	Name      string
	Members   []ParticipantID
	Capacity  int
	CreatedAt time.Time
	HostID    ParticipantID
}

func NewRoom(id RoomID, capacity int) *Room {
	return &Room{
		ID:        id,
		Name:      string(id),
		Capacity:  capacity,
		CreatedAt: time.Now(),
	}
}

func (r *Room) Size() int     { return len(r.Members) }
func (r *Room) IsEmpty() bool { return len(r.Members) == 0 }
func (r *Room) IsFull() bool  { return len(r.Members) >= r.Capacity }

func (r *Room) Has(id ParticipantID) bool {
	return slices.Contains(r.Members, id)
}

func (r *Room) Add(id ParticipantID) {
	if r.Has(id) {
		return
	}
	r.Members = append(r.Members, id)
}

// Remove drops id and reports whether it was a member.
func (r *Room) Remove(id ParticipantID) bool {
	i := slices.Index(r.Members, id)
	if i < 0 {
		return false
	}
	r.Members = slices.Delete(r.Members, i, i+1)
	if r.HostID == id {
		r.HostID = ""
	}
	return true
}

// NextHost picks the remaining member with the lowest join sequence.
// Members are appended on join, so that is the first one.
func (r *Room) NextHost() (ParticipantID, bool) {
	if r.IsEmpty() {
		return "", false
	}
	return r.Members[0], true
}
