package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join attaches sid to roomID, answers the joiner with its id, host flag
// and roster, and announces the new roster to everyone else in the room.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID, name string) error {
	res, err := o.Registry.Join(sid, roomID, name)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyJoined):
			o.Metrics.Rejected.WithLabelValues("already_joined").Inc()
		case errors.Is(err, domain.ErrRoomFull):
			o.Metrics.Rejected.WithLabelValues("room_full").Inc()
		}
		return fmt.Errorf("join %s: %w", roomID, err)
	}
	o.observe()

	p := res.Participant
	reply, err := core.NewEnvelope(core.TypeJoin, core.JoinReply{
		Success:    true,
		IsHost:     p.IsHost,
		Users:      res.Roster,
		ICEServers: o.ICEServers,
	})
	if err != nil {
		return err
	}
	reply.UserID = p.ID
	reply.RoomID = roomID
	_, evict := o.fanout(reply, res.Self)
	defer func() { o.evict(evict) }()

	entry := p.Entry()
	notice, err := core.NewEnvelope(core.TypeUserList, core.UserListPayload{
		NewUser: &entry,
		Users:   res.Roster,
		Message: fmt.Sprintf("%s joined the room", p.Name),
	})
	if err != nil {
		return err
	}
	_, failed := o.fanout(notice, res.Others...)
	evict = append(evict, failed...)
	return nil
}

// Leave is the explicit leave message; no-op when sid holds no participant.
func (o *Orchestrator) Leave(sid core.SessionID) bool {
	return o.teardown(sid, "leave")
}

// teardown is shared by leave, disconnect, sweep and delivery eviction.
func (o *Orchestrator) teardown(sid core.SessionID, source string) bool {
	res, ok := o.Registry.Leave(sid)
	if !ok {
		return false
	}
	o.Metrics.Evictions.WithLabelValues(source).Inc()
	o.observe()

	p := res.Participant
	log.Info().Str("module", "orch").
		Str("sid", string(sid)).
		Str("participant", string(p.ID)).
		Str("room", string(p.RoomID)).
		Str("source", source).
		Bool("room_deleted", res.RoomDeleted).
		Msg("participant removed")

	if res.RoomDeleted || len(res.Others) == 0 {
		return true
	}

	var evict []app.Target
	defer func() { o.evict(evict) }()

	notice, err := core.NewEnvelope(core.TypeLeave, core.LeavePayload{
		UserName: p.Name,
		Users:    res.Roster,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("leave notice")
		return true
	}
	notice.UserID = p.ID
	_, evict = o.fanout(notice, res.Others...)

	if res.NewHost != nil {
		o.Metrics.HostChanges.Inc()
		hostNotice, err := core.NewEnvelope(core.TypeUserList, core.UserListPayload{
			Users:   res.Roster,
			Message: fmt.Sprintf("%s is the new host", res.NewHost.Name),
		})
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Msg("host notice")
			return true
		}
		_, failed := o.fanout(hostNotice, res.Others...)
		evict = append(evict, failed...)
	}
	return true
}
