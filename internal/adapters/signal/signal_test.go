package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/app/orch"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type harness struct {
	url  string
	orch *orch.Orchestrator
}

func newHarness(t *testing.T, capacity int, opts Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	o := orch.New(app.NewRegistry(capacity), app.SimplePolicy{}, metrics.New())
	ctl := NewSignalWSController(o, opts)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		o.Shutdown()
		ctl.Wait()
		srv.Close()
	})
	return &harness{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", orch: o}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func recv(t *testing.T, ws *websocket.Conn) core.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := core.DecodeEnvelope(data)
	require.NoError(t, err)
	return env
}

func errorText(t *testing.T, env core.Envelope) string {
	t.Helper()
	require.Equal(t, core.TypeError, env.Type)
	var p core.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p.Message
}

func joinAs(t *testing.T, ws *websocket.Conn, room, name string) (core.Envelope, core.JoinReply) {
	t.Helper()
	send(t, ws, `{"type":"join","roomId":"`+room+`","userName":"`+name+`"}`)
	env := recv(t, ws)
	require.Equal(t, core.TypeJoin, env.Type)
	var reply core.JoinReply
	require.NoError(t, json.Unmarshal(env.Payload, &reply))
	return env, reply
}

func TestSignal_JoinAndNegotiate(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, 10, DefaultOptions())
	alice, bob := h.dial(t), h.dial(t)

	// Given Alice and Bob in the same room
	aEnv, aReply := joinAs(t, alice, "r1", "Alice")
	req.True(aReply.Success)
	req.True(aReply.IsHost)
	bEnv, bReply := joinAs(t, bob, "r1", "Bob")
	req.False(bReply.IsHost)
	req.Len(bReply.Users, 2)

	notice := recv(t, alice)
	req.Equal(core.TypeUserList, notice.Type)

	// When Alice sends Bob an offer
	send(t, alice, `{"type":"offer","targetUserId":"`+string(bEnv.UserID)+`","payload":{"sdp":"v=0"}}`)

	// Then Bob receives it stamped with Alice's id
	got := recv(t, bob)
	req.Equal(core.TypeOffer, got.Type)
	req.Equal(aEnv.UserID, got.UserID)
	req.JSONEq(`{"sdp":"v=0"}`, string(got.Payload))

	// And an untargeted candidate from Bob reaches Alice
	send(t, bob, `{"type":"ice-candidate","payload":{"candidate":"c1"}}`)
	got = recv(t, alice)
	req.Equal(core.TypeICECandidate, got.Type)
	req.Equal(bEnv.UserID, got.UserID)
}

func TestSignal_ErrorReplies(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, 10, DefaultOptions())
	ws := h.dial(t)

	send(t, ws, `not json`)
	req.Equal("malformed message", errorText(t, recv(t, ws)))

	send(t, ws, `{"type":"bogus"}`)
	req.Equal("unknown message type: bogus", errorText(t, recv(t, ws)))

	send(t, ws, `{"type":"join","userName":"Alice"}`)
	req.Equal("malformed message: roomId is required", errorText(t, recv(t, ws)))

	joinAs(t, ws, "r1", "Alice")
	send(t, ws, `{"type":"join","roomId":"r2"}`)
	req.Equal("already joined a room", errorText(t, recv(t, ws)))

	req.Equal(float64(2), testutil.ToFloat64(h.orch.Metrics.Rejected.WithLabelValues("malformed")))
}

func TestSignal_RoomFull(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, 1, DefaultOptions())
	alice, bob := h.dial(t), h.dial(t)

	joinAs(t, alice, "r1", "Alice")
	send(t, bob, `{"type":"join","roomId":"r1","userName":"Bob"}`)
	req.Equal("room is full", errorText(t, recv(t, bob)))

	// Bob is still connected and may join elsewhere
	_, reply := joinAs(t, bob, "r2", "Bob")
	req.True(reply.IsHost)
}

func TestSignal_LeaveAndDisconnect(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, 10, DefaultOptions())
	alice, bob, carol := h.dial(t), h.dial(t), h.dial(t)

	aEnv, _ := joinAs(t, alice, "r1", "Alice")
	bEnv, _ := joinAs(t, bob, "r1", "Bob")
	recv(t, alice)
	joinAs(t, carol, "r1", "Carol")
	recv(t, alice)
	recv(t, bob)

	// Bob leaves explicitly, twice; only one notice goes out
	send(t, bob, `{"type":"leave"}`)
	send(t, bob, `{"type":"leave"}`)
	got := recv(t, alice)
	req.Equal(core.TypeLeave, got.Type)
	req.Equal(bEnv.UserID, got.UserID)
	req.Equal(core.TypeLeave, recv(t, carol).Type)

	// The host drops its socket; Carol is promoted
	require.NoError(t, alice.Close())
	got = recv(t, carol)
	req.Equal(core.TypeLeave, got.Type)
	req.Equal(aEnv.UserID, got.UserID)
	var lp core.LeavePayload
	req.NoError(json.Unmarshal(got.Payload, &lp))
	req.Len(lp.Users, 1)
	req.True(lp.Users[0].IsHost)
	req.Equal(core.TypeUserList, recv(t, carol).Type)

	req.Eventually(func() bool {
		sessions, participants, _ := h.orch.Registry.Counts()
		return sessions == 2 && participants == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignal_RateLimited(t *testing.T) {
	opts := DefaultOptions()
	opts.RateLimit = 2
	opts.RateInterval = time.Minute
	h := newHarness(t, 10, opts)
	ws := h.dial(t)

	send(t, ws, `{"type":"x"}`)
	send(t, ws, `{"type":"y"}`)
	send(t, ws, `{"type":"z"}`)
	recv(t, ws)
	recv(t, ws)
	require.Equal(t, "rate limited", errorText(t, recv(t, ws)))
}

func TestSignal_CloseFlushesQueuedFrames(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, 10, DefaultOptions())
	ws := h.dial(t)

	var conn core.SignalConnection
	req.Eventually(func() bool {
		snaps := h.orch.Registry.Sessions()
		if len(snaps) != 1 {
			return false
		}
		conn = snaps[0].Conn
		return true
	}, 2*time.Second, 10*time.Millisecond)

	// Given frames still queued when the handle is closed
	for _, msg := range []string{"first", "second", "third"} {
		frame, err := core.ErrorEnvelope(msg).Encode()
		req.NoError(err)
		req.NoError(conn.TrySend(frame))
	}
	conn.Close()
	req.True(conn.IsClosed())
	req.ErrorIs(conn.TrySend(core.Frame(`{}`)), core.ErrConnectionClosed)

	// Then the client still receives them, followed by a normal close
	for _, msg := range []string{"first", "second", "third"} {
		req.Equal(msg, errorText(t, recv(t, ws)))
	}
	req.NoError(ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := ws.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
