package signal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

type joinRequest struct {
	RoomID   string `json:"roomId" validate:"required,max=64"`
	UserName string `json:"userName" validate:"max=36"`
}

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn core.SignalConnection,
	env core.Envelope,
) {
	req := joinRequest{
		RoomID:   strings.TrimSpace(string(env.RoomID)),
		UserName: strings.TrimSpace(env.UserName),
	}
	if err := ctl.validate.Struct(req); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad join payload")
		ctl.Orch.Metrics.Rejected.WithLabelValues("malformed").Inc()
		ctl.sendError(conn, describe(err))
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room_id", req.RoomID).Msg("join")
	err := ctl.Orch.Join(sid, domain.RoomID(req.RoomID), req.UserName)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyJoined):
		ctl.sendError(conn, domain.ErrAlreadyJoined.Error())
	case errors.Is(err, domain.ErrRoomFull):
		ctl.sendError(conn, domain.ErrRoomFull.Error())
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join failed")
		ctl.sendError(conn, "join failed")
	}
}

// handleLeave leaves the current room; the socket itself stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID) {
	if !ctl.Orch.Leave(sid) {
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("leave without room")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.ErrMalformedMessage.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: %s is required", domain.ErrMalformedMessage, fe.Field())
	case "max":
		return fmt.Sprintf("%s: %s is longer than %s", domain.ErrMalformedMessage, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s: invalid %s", domain.ErrMalformedMessage, fe.Field())
}
