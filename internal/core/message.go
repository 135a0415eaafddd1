package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	TypeJoin         MessageType = "join"
	TypeLeave        MessageType = "leave"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice-candidate"
	TypeUserList     MessageType = "user-list"
	TypeError        MessageType = "error"
)

// IsNegotiation reports whether t is forwarded to peers without inspection.
func (t MessageType) IsNegotiation() bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}

// Envelope is the single JSON object exchanged in both directions.
// Payload stays raw: negotiation payloads are never interpreted here.
type Envelope struct {
	Type         MessageType          `json:"type"`
	RoomID       domain.RoomID        `json:"roomId,omitempty"`
	UserID       domain.ParticipantID `json:"userId,omitempty"`
	UserName     string               `json:"userName,omitempty"`
	TargetUserID domain.ParticipantID `json:"targetUserId,omitempty"`
	Payload      json.RawMessage      `json:"payload,omitempty"`
}

type JoinReply struct {
	Success    bool                 `json:"success"`
	IsHost     bool                 `json:"isHost"`
	Users      []domain.RosterEntry `json:"users"`
	ICEServers []webrtc.ICEServer   `json:"iceServers,omitempty"`
}

type UserListPayload struct {
	NewUser *domain.RosterEntry  `json:"newUser,omitempty"`
	Users   []domain.RosterEntry `json:"users"`
	Message string               `json:"message"`
}

type LeavePayload struct {
	UserName string               `json:"userName"`
	Users    []domain.RosterEntry `json:"users"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEnvelope builds an outbound envelope with v encoded as payload.
func NewEnvelope(t MessageType, v any) (Envelope, error) {
	env := Envelope{Type: t}
	if v == nil {
		return env, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return env, fmt.Errorf("encode %s payload: %w", t, err)
	}
	env.Payload = raw
	return env, nil
}

func ErrorEnvelope(msg string) Envelope {
	env, _ := NewEnvelope(TypeError, ErrorPayload{Message: msg})
	return env
}

func (e Envelope) Encode() (Frame, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Type, err)
	}
	return b, nil
}

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing type", domain.ErrMalformedMessage)
	}
	return env, nil
}
