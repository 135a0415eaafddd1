//go:generate go run go.uber.org/mock/mockgen -source=signal_iface.go -destination=mocks/mock_signal_connection.go -package=mocks
package core

import "errors"

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// Frame is a raw encoded message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking.
	TrySend(Frame) error
	Close()
	// IsClosed reports whether the transport is no longer usable.
	IsClosed() bool
}
