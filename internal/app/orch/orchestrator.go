package orch

import (
	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Orchestrator performs every state transition of the signaling protocol
// and the fan-out that follows it.
type Orchestrator struct {
	Registry   *app.Registry
	Policy     app.Policy
	Metrics    *metrics.Metrics
	ICEServers []webrtc.ICEServer
}

func New(reg *app.Registry, policy app.Policy, m *metrics.Metrics) *Orchestrator {
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Orchestrator{Registry: reg, Policy: policy, Metrics: m}
}

// Connect registers a freshly accepted connection.
func (o *Orchestrator) Connect(sid core.SessionID, conn core.SignalConnection, cancel func()) {
	o.Registry.BindSession(sid, conn, cancel)
	o.observe()
}

// Disconnect tears down whatever sid holds and forgets the session.
// Safe to call more than once.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	o.teardown(sid, "disconnect")
	o.Registry.UnbindSession(sid)
	o.observe()
}

// Shutdown closes every open connection and empties the registry.
func (o *Orchestrator) Shutdown() {
	snaps := o.Registry.Drain()
	for _, s := range snaps {
		s.Conn.Close()
	}
	o.observe()
	log.Info().Str("module", "orch").Int("closed", len(snaps)).Msg("all sessions closed")
}

func (o *Orchestrator) observe() {
	sessions, participants, rooms := o.Registry.Counts()
	o.Metrics.Sessions.Set(float64(sessions))
	o.Metrics.Participants.Set(float64(participants))
	o.Metrics.Rooms.Set(float64(rooms))
}
