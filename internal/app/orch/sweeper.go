package orch

import (
	"context"
	"time"

	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/rs/zerolog/log"
)

// Sweep tears down every session whose transport is no longer usable.
// It returns the number of sessions cleaned.
func (o *Orchestrator) Sweep() int {
	cleaned := 0
	for _, s := range o.Registry.Sessions() {
		if !s.Conn.IsClosed() {
			continue
		}
		o.Registry.Cancel(s.SID)
		o.teardown(s.SID, "sweep")
		o.Registry.UnbindSession(s.SID)
		cleaned++
	}
	if cleaned > 0 {
		o.observe()
		log.Info().Str("module", "sweeper").Int("cleaned", cleaned).Msg("dead connections cleaned")
	}
	return cleaned
}

// Report logs occupancy of every room and refreshes the gauges.
func (o *Orchestrator) Report() app.Stats {
	st := o.Registry.Stats()
	o.observe()
	if len(st.Rooms) == 0 && st.Participants == 0 {
		return st
	}
	log.Info().Str("module", "reporter").
		Int("sessions", st.Sessions).
		Int("rooms", len(st.Rooms)).
		Int("participants", st.Participants).
		Msg("server state")
	for _, r := range st.Rooms {
		log.Info().Str("module", "reporter").
			Str("room", string(r.ID)).
			Int("members", r.Members).
			Int("capacity", r.Capacity).
			Str("host", string(r.HostID)).
			Msg("room state")
	}
	return st
}

// RunEvery calls fn every interval until ctx is done.
func RunEvery(ctx context.Context, interval time.Duration, fn func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

// RunSweeper blocks until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) {
	log.Info().Str("module", "sweeper").Dur("interval", interval).Msg("sweeper started")
	RunEvery(ctx, interval, func() { o.Sweep() })
}

// RunReporter blocks until ctx is done.
func (o *Orchestrator) RunReporter(ctx context.Context, interval time.Duration) {
	RunEvery(ctx, interval, func() { o.Report() })
}
