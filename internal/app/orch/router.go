package orch

import (
	"fmt"

	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

// Relay forwards an offer, answer or ice-candidate from sid. With a
// target the message goes to that participant only, otherwise to the
// whole room except the sender. Payload is passed through untouched.
func (o *Orchestrator) Relay(sid core.SessionID, env core.Envelope) error {
	sender, ok := o.Registry.Sender(sid)
	if !ok {
		return domain.ErrNotJoined
	}
	env.UserID = sender.ID

	if env.TargetUserID == "" {
		o.Broadcast(sender.RoomID, sender.ID, env)
		return nil
	}
	return o.Direct(sender.RoomID, env.TargetUserID, env)
}

// Broadcast delivers env to every member of roomID except exclude.
func (o *Orchestrator) Broadcast(roomID domain.RoomID, exclude domain.ParticipantID, env core.Envelope) int {
	return o.deliver(env, o.Registry.RoomTargets(roomID, exclude)...)
}

// Direct delivers env to one member of roomID.
func (o *Orchestrator) Direct(roomID domain.RoomID, id domain.ParticipantID, env core.Envelope) error {
	// Scoped to the sender's room: a peer elsewhere is never a valid
	// negotiation target, so it is dropped like a vanished one.
	t, ok := o.Registry.Target(roomID, id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTarget, id)
	}
	if o.deliver(env, t) == 0 {
		return core.ErrBackpressure
	}
	return nil
}

// deliver fans env out and evicts failed targets right away. Callers
// that send several messages for one state change use fanout and evict
// once everything went out, so the eviction notice is the last roster.
func (o *Orchestrator) deliver(env core.Envelope, targets ...app.Target) int {
	sent, evict := o.fanout(env, targets...)
	o.evict(evict)
	return sent
}

// fanout encodes env once and queues it on every target. A failing
// target never stops delivery to the rest; it is handed to the policy.
// Targets the policy wants gone now are returned, not torn down.
func (o *Orchestrator) fanout(env core.Envelope, targets ...app.Target) (int, []app.Target) {
	if len(targets) == 0 {
		return 0, nil
	}
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode outbound")
		return 0, nil
	}

	sent := 0
	var evict []app.Target
	for _, t := range targets {
		if err := t.Conn.TrySend(frame); err != nil {
			o.Metrics.DeliveryFailures.Inc()
			action := o.Policy.OnSendFailure(t, err)
			log.Warn().Err(err).Str("module", "orch").
				Str("sid", string(t.SID)).
				Str("participant", string(t.ID)).
				Str("type", string(env.Type)).
				Stringer("action", action).
				Msg("delivery failed")
			switch action {
			case app.MarkForSweep:
				t.Conn.Close()
			case app.EvictNow:
				evict = append(evict, t)
			case app.NoAction:
			}
			continue
		}
		sent++
	}
	log.Debug().Str("module", "orch").Str("type", string(env.Type)).Int("sent_to", sent).Int("failed", len(targets)-sent).Msg("delivery result")
	return sent, evict
}

func (o *Orchestrator) evict(targets []app.Target) {
	for _, t := range targets {
		t.Conn.Close()
		o.teardown(t.SID, "delivery")
	}
}
