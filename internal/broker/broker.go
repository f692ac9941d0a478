// Package broker fans "now playing" updates out to long-lived event-stream
// connections. A Registry tracks admitted connections, a Hub polls the
// upstream and pushes changed snapshots, and each connection is represented
// by a Conn whose outbound buffer is drained by the connection's own
// goroutine so a slow client never stalls delivery to the others.
package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrConnClosed is returned by Send once the connection has been closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrBackpressure is returned by Send when the client has not drained
	// its outbound buffer.
	ErrBackpressure = errors.New("outbound buffer full")
)

// KeepAliveFrame is the comment-only frame written on every heartbeat.
const KeepAliveFrame = ": keep-alive\n\n"

// Conn is the write-capable handle of one streaming client. Frames queued
// with Send are delivered to the transport by whoever drains Frames.
type Conn struct {
	id     string
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

// NewConn creates a handle with an outbound buffer of the given size.
func NewConn(id string, buffer int) *Conn {
	if buffer < 1 {
		buffer = 1
	}
	return &Conn{
		id:     id,
		frames: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// ID returns the correlation id given at creation.
func (c *Conn) ID() string { return c.id }

// Send queues frame without blocking.
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.frames <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrBackpressure
	}
}

// Frames is the queue of frames waiting to be written.
func (c *Conn) Frames() <-chan []byte { return c.frames }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close marks the connection terminal. It reports whether this call was the
// one that closed it; later calls are no-ops.
func (c *Conn) Close() bool {
	closed := false
	c.once.Do(func() {
		close(c.done)
		closed = true
	})
	return closed
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// EncodeFrame renders payload as a single "data:" event.
func EncodeFrame(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}
