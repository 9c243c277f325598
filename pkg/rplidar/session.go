// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import "sync/atomic"

// Descriptor is the seven byte response descriptor. It is rebuilt byte by
// byte and is only meaningful once all seven bytes have arrived.
type Descriptor struct {
	Sync1    uint8
	Sync2    uint8
	Info     uint32 // {2-bit send mode, 30-bit length}
	DataType uint8
}

// Length returns the declared payload length without the send mode bits
func (d Descriptor) Length() int {
	return int(d.Info & lengthMask)
}

// SendMode returns the response mode encoded in the top two bits
func (d Descriptor) SendMode() SendMode {
	return SendMode(d.Info >> sendModeShift)
}

// SilentTimer arms a countdown for requests that never produce a reply. The
// tick count is decremented asynchronously by the tick source; armed is only
// touched by the scheduler.
type SilentTimer struct {
	ticks atomic.Int32
	armed bool
}

// Arm starts the countdown
func (t *SilentTimer) Arm(ticks int32) {
	t.ticks.Store(ticks)
	t.armed = true
}

// Disarm stops the countdown without completing it
func (t *SilentTimer) Disarm() {
	t.armed = false
}

// Tick decrements the remaining ticks, saturating at zero. Safe to call from
// the tick source goroutine.
func (t *SilentTimer) Tick() {
	for {
		n := t.ticks.Load()
		if n <= 0 || t.ticks.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// Armed reports whether a countdown is in progress
func (t *SilentTimer) Armed() bool {
	return t.armed
}

// Expired reports whether an armed countdown reached zero
func (t *SilentTimer) Expired() bool {
	return t.armed && t.ticks.Load() == 0
}

// Remaining returns the ticks left on the countdown
func (t *SilentTimer) Remaining() int32 {
	return t.ticks.Load()
}

// Session is the protocol state shared by the encoder, decoder and
// dispatcher: the outstanding request, the byte cursor, the descriptor being
// rebuilt, the payload window and the silent completion timer. A session is
// owned by one scheduler; only Tick may be called from another goroutine.
type Session struct {
	request Opcode
	state   int
	cursor  int
	desc    Descriptor
	payload [MaxPayloadSize]byte

	// abandoned is set when a response cannot be held in the payload
	// window; the decoder ignores bytes until the next request.
	abandoned bool

	timer SilentTimer
}

// NewSession creates a session with no outstanding request
func NewSession() *Session {
	return &Session{}
}

// Request returns the outstanding request opcode
func (s *Session) Request() Opcode {
	return s.request
}

// Cursor returns the number of bytes received for the current frame
func (s *Session) Cursor() int {
	return s.cursor
}

// Descriptor returns the descriptor rebuilt so far
func (s *Session) Descriptor() Descriptor {
	return s.desc
}

// Timer exposes the silent completion timer
func (s *Session) Timer() *SilentTimer {
	return &s.timer
}

// Tick advances the silent completion timer by one tick
func (s *Session) Tick() {
	s.timer.Tick()
}

// begin supersedes whatever request was outstanding
func (s *Session) begin(op Opcode) {
	s.request = op
	s.abandoned = false
	s.resetFrame()
	s.desc = Descriptor{}
	if op.IsSilent() {
		s.timer.Arm(op.silentWait())
	} else {
		s.timer.Disarm()
	}
}

// resetFrame rewinds the cursor to the start of a descriptor
func (s *Session) resetFrame() {
	s.state = stateSync1
	s.cursor = 0
}

// accepting reports whether inbound bytes should reach the decoder at all
func (s *Session) accepting() bool {
	if s.abandoned {
		return false
	}
	return s.request != OpNone && !s.request.IsSilent()
}
