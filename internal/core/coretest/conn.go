// Package coretest provides an in-memory SignalConnection for tests.
package coretest

import (
	"sync"

	"github.com/dkeye/Rendezvous/internal/core"
)

// Conn records every frame it accepts.
type Conn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	// Fail, when set, is returned by TrySend instead of queuing.
	Fail error
}

func NewConn() *Conn { return &Conn{} }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.Fail != nil {
		return c.Fail
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Envelopes decodes every recorded frame.
func (c *Conn) Envelopes() []core.Envelope {
	frames := c.Frames()
	out := make([]core.Envelope, 0, len(frames))
	for _, f := range frames {
		env, err := core.DecodeEnvelope(f)
		if err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}

// Last returns the most recent envelope, if any.
func (c *Conn) Last() (core.Envelope, bool) {
	envs := c.Envelopes()
	if len(envs) == 0 {
		return core.Envelope{}, false
	}
	return envs[len(envs)-1], true
}

func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}
