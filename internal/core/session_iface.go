package core

import "github.com/google/uuid"

// SessionID identifies one accepted connection for its whole lifetime.
type SessionID string

func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

