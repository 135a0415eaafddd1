package app

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type sessionEntry struct {
	Conn          core.SignalConnection
	Cancel        context.CancelFunc
	ParticipantID domain.ParticipantID
}

// Registry owns sessions, participants and rooms behind one lock,
// so membership and back-references always change together.
type Registry struct {
	mu           sync.Mutex
	capacity     int
	seq          uint64
	sessions     map[core.SessionID]*sessionEntry
	participants map[domain.ParticipantID]*participantEntry
	rooms        map[domain.RoomID]*domain.Room
}

type participantEntry struct {
	*domain.Participant
	SID core.SessionID
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity:     capacity,
		sessions:     make(map[core.SessionID]*sessionEntry),
		participants: make(map[domain.ParticipantID]*participantEntry),
		rooms:        make(map[domain.RoomID]*domain.Room),
	}
}

// Target is a delivery snapshot of one participant.
type Target struct {
	ID   domain.ParticipantID
	SID  core.SessionID
	Conn core.SignalConnection
}

type JoinResult struct {
	Participant domain.Participant
	Room        domain.Room
	Created     bool
	Self        Target
	Roster      []domain.RosterEntry
	Others      []Target
}

type LeaveResult struct {
	Participant domain.Participant
	Roster      []domain.RosterEntry
	Others      []Target
	NewHost     *domain.Participant
	RoomDeleted bool
}

// SessionSnap is what the sweeper inspects.
type SessionSnap struct {
	SID  core.SessionID
	Conn core.SignalConnection
}

type RoomStats struct {
	ID        domain.RoomID
	Members   int
	Capacity  int
	HostID    domain.ParticipantID
	CreatedAt int64
}

type Stats struct {
	Sessions     int
	Participants int
	Rooms        []RoomStats
}

func (r *Registry) BindSession(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
}

// UnbindSession forgets sid. The caller must have torn down its
// membership first.
func (r *Registry) UnbindSession(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) HasSession(sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sid]
	return ok
}

// Join attaches a new participant for sid to roomID, creating the room
// when absent. The first member of a room becomes its host.
func (r *Registry) Join(sid core.SessionID, roomID domain.RoomID, name string) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sid]
	if !ok {
		return JoinResult{}, domain.ErrUnknownSession
	}
	if entry.ParticipantID != "" {
		return JoinResult{}, domain.ErrAlreadyJoined
	}

	room, exists := r.rooms[roomID]
	if exists && room.IsFull() {
		return JoinResult{}, domain.ErrRoomFull
	}
	if !exists {
		room = domain.NewRoom(roomID, r.capacity)
		r.rooms[roomID] = room
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("room created")
	}

	r.seq++
	p := domain.NewParticipant(name, roomID, r.seq)
	if room.IsEmpty() {
		p.IsHost = true
		room.HostID = p.ID
	}
	room.Add(p.ID)
	r.participants[p.ID] = &participantEntry{Participant: p, SID: sid}
	entry.ParticipantID = p.ID

	log.Info().Str("module", "app.registry").
		Str("sid", string(sid)).
		Str("participant", string(p.ID)).
		Str("room", string(roomID)).
		Str("role", string(p.Role())).
		Msg("participant joined")

	return JoinResult{
		Participant: *p,
		Room:        r.roomCopy(room),
		Created:     !exists,
		Self:        Target{ID: p.ID, SID: sid, Conn: entry.Conn},
		Roster:      r.roster(room),
		Others:      r.targets(room, p.ID),
	}, nil
}

// Leave detaches the participant of sid, re-elects a host when needed
// and deletes the room once empty. ok is false when sid holds no
// participant.
func (r *Registry) Leave(sid core.SessionID) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sid]
	if !ok || entry.ParticipantID == "" {
		return LeaveResult{}, false
	}
	p, ok := r.participants[entry.ParticipantID]
	entry.ParticipantID = ""
	if !ok {
		return LeaveResult{}, false
	}
	delete(r.participants, p.ID)

	res := LeaveResult{Participant: *p.Participant}
	room, ok := r.rooms[p.RoomID]
	if !ok {
		return res, true
	}
	room.Remove(p.ID)

	if room.IsEmpty() {
		delete(r.rooms, room.ID)
		res.RoomDeleted = true
		log.Info().Str("module", "app.registry").Str("room", string(room.ID)).Msg("room deleted")
	} else if p.IsHost {
		if next, ok := room.NextHost(); ok {
			h := r.participants[next]
			h.IsHost = true
			room.HostID = h.ID
			promoted := *h.Participant
			res.NewHost = &promoted
			log.Info().Str("module", "app.registry").
				Str("room", string(room.ID)).
				Str("host", string(h.ID)).
				Msg("host promoted")
		}
	}

	res.Roster = r.roster(room)
	res.Others = r.targets(room, "")

	log.Info().Str("module", "app.registry").
		Str("sid", string(sid)).
		Str("participant", string(p.ID)).
		Str("room", string(p.RoomID)).
		Msg("participant left")
	return res, true
}

// Sender returns the participant currently attached to sid.
func (r *Registry) Sender(sid core.SessionID) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.ParticipantID == "" {
		return domain.Participant{}, false
	}
	p, ok := r.participants[entry.ParticipantID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p.Participant, true
}

// RoomTargets snapshots every member of roomID except exclude.
func (r *Registry) RoomTargets(roomID domain.RoomID, exclude domain.ParticipantID) []Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return r.targets(room, exclude)
}

// Target resolves id inside roomID.
func (r *Registry) Target(roomID domain.RoomID, id domain.ParticipantID) (Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok || p.RoomID != roomID {
		return Target{}, false
	}
	s, ok := r.sessions[p.SID]
	if !ok {
		return Target{}, false
	}
	return Target{ID: p.ID, SID: p.SID, Conn: s.Conn}, true
}

func (r *Registry) Roster(roomID domain.RoomID) []domain.RosterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return r.roster(room)
}

func (r *Registry) Room(roomID domain.RoomID) (domain.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return domain.Room{}, false
	}
	return r.roomCopy(room), true
}

func (r *Registry) Sessions() []SessionSnap {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		out = append(out, SessionSnap{SID: sid, Conn: e.Conn})
	}
	return out
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Stats{
		Sessions:     len(r.sessions),
		Participants: len(r.participants),
		Rooms:        make([]RoomStats, 0, len(r.rooms)),
	}
	for _, room := range r.rooms {
		st.Rooms = append(st.Rooms, RoomStats{
			ID:        room.ID,
			Members:   room.Size(),
			Capacity:  room.Capacity,
			HostID:    room.HostID,
			CreatedAt: room.CreatedAt.Unix(),
		})
	}
	slices.SortFunc(st.Rooms, func(a, b RoomStats) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return st
}

// Counts is the cheap form of Stats.
func (r *Registry) Counts() (sessions, participants, rooms int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions), len(r.participants), len(r.rooms)
}

// Cancel stops the pumps of sid without touching membership.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.Lock()
	e, ok := r.sessions[sid]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

// Drain empties the registry and hands back every session for closing.
func (r *Registry) Drain() []SessionSnap {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		out = append(out, SessionSnap{SID: sid, Conn: e.Conn})
		if e.Cancel != nil {
			e.Cancel()
		}
	}
	r.sessions = make(map[core.SessionID]*sessionEntry)
	r.participants = make(map[domain.ParticipantID]*participantEntry)
	r.rooms = make(map[domain.RoomID]*domain.Room)
	return out
}

// roster and targets expect r.mu to be held.
func (r *Registry) roster(room *domain.Room) []domain.RosterEntry {
	return lo.FilterMap(room.Members, func(id domain.ParticipantID, _ int) (domain.RosterEntry, bool) {
		p, ok := r.participants[id]
		if !ok {
			return domain.RosterEntry{}, false
		}
		return p.Entry(), true
	})
}

func (r *Registry) targets(room *domain.Room, exclude domain.ParticipantID) []Target {
	out := make([]Target, 0, room.Size())
	for _, id := range room.Members {
		if id == exclude {
			continue
		}
		p, ok := r.participants[id]
		if !ok {
			continue
		}
		s, ok := r.sessions[p.SID]
		if !ok {
			continue
		}
		out = append(out, Target{ID: id, SID: p.SID, Conn: s.Conn})
	}
	return out
}

func (r *Registry) roomCopy(room *domain.Room) domain.Room {
	c := *room
	c.Members = slices.Clone(room.Members)
	return c
}
