package app

import (
	"errors"

	"github.com/dkeye/Rendezvous/internal/core"
)

type DeliveryAction int

const (
	NoAction DeliveryAction = iota
	// MarkForSweep closes the transport; the read loop or the next sweep
	// tears the participant down.
	MarkForSweep
	// EvictNow tears the participant down right after the fan-out.
	EvictNow
)

func (a DeliveryAction) String() string {
	switch a {
	case MarkForSweep:
		return "mark_for_sweep"
	case EvictNow:
		return "evict_now"
	}
	return "none"
}

// Policy decides what happens to a recipient whose send failed.
type Policy interface {
	OnSendFailure(t Target, err error) DeliveryAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnSendFailure(_ Target, err error) DeliveryAction {
	if errors.Is(err, core.ErrConnectionClosed) {
		return EvictNow
	}
	return MarkForSweep
}
