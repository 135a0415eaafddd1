package orch

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/core/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBroadcast_FailingRecipientDoesNotStopOthers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	o := newOrch(10)

	alice := join(t, o, "r1", "Alice")

	// Given a member whose queue is full
	slow := mocks.NewMockSignalConnection(ctrl)
	slowSID := core.NewSessionID()
	slow.EXPECT().TrySend(gomock.Any()).Return(nil).Times(2) // join reply, Carol's arrival
	o.Connect(slowSID, slow, func() {})
	req.NoError(o.Join(slowSID, "r1", "Slow"))

	carol := join(t, o, "r1", "Carol")
	alice.conn.Reset()
	carol.conn.Reset()

	// When Alice broadcasts, the slow member fails and is marked for sweep
	gomock.InOrder(
		slow.EXPECT().TrySend(gomock.Any()).Return(core.ErrBackpressure),
		slow.EXPECT().Close(),
	)
	err := o.Relay(alice.sid, core.Envelope{Type: core.TypeOffer, Payload: json.RawMessage(`{}`)})
	req.NoError(err)

	// Then Carol still gets it
	req.Len(carol.conn.Frames(), 1)
	req.Equal(float64(1), testutil.ToFloat64(o.Metrics.DeliveryFailures))
}

func TestBroadcast_ClosedRecipientIsEvictedNow(t *testing.T) {
	req := require.New(t)
	o := newOrch(10)
	alice := join(t, o, "r1", "Alice")
	bob := join(t, o, "r1", "Bob")
	carol := join(t, o, "r1", "Carol")
	carol.conn.Reset()

	// Bob's transport died silently
	bob.conn.Close()

	req.NoError(o.Relay(alice.sid, core.Envelope{Type: core.TypeICECandidate}))

	// Bob was torn down straight away and Carol saw the departure
	_, ok := o.Registry.Sender(bob.sid)
	req.False(ok)
	envs := carol.conn.Envelopes()
	req.Len(envs, 2)
	req.Equal(core.TypeICECandidate, envs[0].Type)
	req.Equal(core.TypeLeave, envs[1].Type)
	req.Equal(bob.id, envs[1].UserID)
	req.Equal(float64(1), testutil.ToFloat64(o.Metrics.Evictions.WithLabelValues("delivery")))
}

type keepPolicy struct{}

func (keepPolicy) OnSendFailure(app.Target, error) app.DeliveryAction { return app.NoAction }

func TestDirect_FailureWithNoActionKeepsMember(t *testing.T) {
	req := require.New(t)
	o := newOrch(10)
	o.Policy = keepPolicy{}
	alice := join(t, o, "r1", "Alice")
	bob := join(t, o, "r1", "Bob")
	bob.conn.Fail = core.ErrBackpressure

	err := o.Relay(alice.sid, core.Envelope{Type: core.TypeAnswer, TargetUserID: bob.id})
	req.ErrorIs(err, core.ErrBackpressure)
	req.False(bob.conn.IsClosed())
	_, ok := o.Registry.Sender(bob.sid)
	req.True(ok)
}

func TestSimplePolicy(t *testing.T) {
	req := require.New(t)
	p := app.SimplePolicy{}
	req.Equal(app.EvictNow, p.OnSendFailure(app.Target{}, core.ErrConnectionClosed))
	req.Equal(app.MarkForSweep, p.OnSendFailure(app.Target{}, core.ErrBackpressure))
	req.Equal("mark_for_sweep", app.MarkForSweep.String())
}
