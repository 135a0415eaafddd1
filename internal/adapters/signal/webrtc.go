package signal

import (
	"errors"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleNegotiation forwards offer, answer and ice-candidate frames.
// Senders outside a room and vanished targets are ignored without reply;
// both are routine while peers come and go.
func (ctl *SignalWSController) handleNegotiation(sid core.SessionID, env core.Envelope) {
	err := ctl.Orch.Relay(sid, env)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotJoined), errors.Is(err, domain.ErrUnknownTarget):
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", string(env.Type)).Msg("negotiation dropped")
	default:
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", string(env.Type)).Msg("negotiation not delivered")
	}
}
