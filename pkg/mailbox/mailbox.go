// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mailbox provides the single-slot byte mailbox that sits between an
// interrupt-like producer (a link reader) and the polling scheduler.
//
// A ByteChannel holds exactly one byte and a pending flag. The producer
// writes the value and then raises the flag; the consumer reads the value and
// only then clears the flag. Last write wins: if the producer deposits a new
// byte before the consumer drained the previous one, the older byte is lost.
// Losses are counted, never hidden behind a queue.
package mailbox

import (
	"errors"
	"sync/atomic"
)

// ErrClosed is returned by Pump when the link reports end of stream.
var ErrClosed = errors.New("mailbox: link closed")

// pendingBit marks an undrained byte in the packed mailbox state
const pendingBit = 1 << 8

// ByteChannel is a single-producer, single-consumer, single-slot mailbox.
// The byte and its pending flag share one atomic word so a deposit and a
// drain can never interleave between them.
type ByteChannel struct {
	state    atomic.Uint32
	overruns atomic.Uint64
	received atomic.Uint64
	ready    chan struct{}
}

// NewByteChannel creates an empty mailbox
func NewByteChannel() *ByteChannel {
	return &ByteChannel{ready: make(chan struct{}, 1)}
}

// Deposit stores b and raises the pending flag. If the previous byte was
// still pending it is overwritten and counted as an overrun.
func (c *ByteChannel) Deposit(b byte) {
	if c.state.Swap(pendingBit|uint32(b))&pendingBit != 0 {
		c.overruns.Add(1)
	}
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Receive drains the mailbox. It never blocks; ok is false when no new byte
// is pending.
func (c *ByteChannel) Receive() (b byte, ok bool) {
	v := c.state.Swap(0)
	if v&pendingBit == 0 {
		return 0, false
	}
	c.received.Add(1)
	return byte(v), true
}

// Pending reports whether a byte is waiting to be drained
func (c *ByteChannel) Pending() bool {
	return c.state.Load()&pendingBit != 0
}

// Ready is signalled after a deposit. A consumer with nothing to do may
// wait on it instead of sleeping; the signal can be stale, so the consumer
// must still poll Receive.
func (c *ByteChannel) Ready() <-chan struct{} {
	return c.ready
}

// Overruns returns the number of bytes lost to last-write-wins overwrites
func (c *ByteChannel) Overruns() uint64 {
	return c.overruns.Load()
}

// Received returns the number of bytes drained by the consumer
func (c *ByteChannel) Received() uint64 {
	return c.received.Load()
}
