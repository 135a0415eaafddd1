package domain

import "errors"

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrAlreadyJoined    = errors.New("already joined a room")
	ErrRoomFull         = errors.New("room is full")
	ErrNotJoined        = errors.New("not joined")
	ErrUnknownTarget    = errors.New("unknown target")
	ErrUnknownSession   = errors.New("unknown session")
	ErrRateLimited      = errors.New("rate limited")
)
