// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// ErrPayloadOverflow is returned when a response declares more payload than
// the payload window can hold.
var ErrPayloadOverflow = errors.New("payload exceeds buffer")

// Frame is a completed unit handed to the dispatcher: a single-mode
// response, one record of a multi-mode stream, or a silent completion.
type Frame struct {
	Request    Opcode
	Descriptor Descriptor
	Payload    []byte
	Record     bool // one fixed-size record of a multi-mode stream
	Silent     bool // completion inferred from the silent timer
	Timestamp  time.Time
}

// Decoder implements the response decoder state machine over a Session
type Decoder struct {
	session *Session
}

// NewDecoder creates a decoder bound to session
func NewDecoder(session *Session) *Decoder {
	return &Decoder{session: session}
}

// PollSilent completes an expired STOP/RESET exactly once. It returns nil
// while the timer is running or when no silent request is outstanding.
func (d *Decoder) PollSilent() *Frame {
	s := d.session
	if !s.timer.Expired() || !s.request.IsSilent() {
		return nil
	}
	s.timer.Disarm()
	s.resetFrame()
	return &Frame{Request: s.request, Silent: true, Timestamp: time.Now()}
}

// DecodeByte feeds one received byte through the state machine.
// Returns a completed frame or record, nil while incomplete, or an error if
// the response cannot be held. Bytes are ignored while no request, or a
// silent request, is outstanding.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	s := d.session
	if !s.accepting() {
		return nil, nil
	}

	switch s.state {
	case stateSync1:
		s.desc = Descriptor{Sync1: b}
		s.advance()
		return nil, nil

	case stateSync2:
		s.desc.Sync2 = b
		s.advance()
		return nil, nil

	case stateLen0, stateLen1, stateLen2, stateLen3:
		shift := uint(s.state-stateLen0) * 8
		s.desc.Info |= uint32(b) << shift
		s.advance()
		return nil, nil

	case stateType:
		s.desc.DataType = b
		s.advance()
		if s.desc.SendMode() == SendModeMulti && s.desc.Length() != ScanRecordSize {
			// Records are always framed at ScanRecordSize; EXPRESS_SCAN
			// cabins declare 84 and are discarded by the dispatcher anyway.
			glog.Warningf("%s stream declares %d-byte records, framing at %d",
				FormatOpcode(s.request), s.desc.Length(), ScanRecordSize)
		}
		if s.desc.SendMode() != SendModeMulti {
			length := s.desc.Length()
			if length > MaxPayloadSize {
				s.abandoned = true
				s.resetFrame()
				return nil, fmt.Errorf("%w: %s declares %d bytes (max %d)",
					ErrPayloadOverflow, FormatOpcode(s.request), length, MaxPayloadSize)
			}
			if length == 0 {
				return d.complete(), nil
			}
		}
		return nil, nil

	case statePayload:
		idx := s.cursor - DescriptorSize
		if idx >= len(s.payload) {
			s.abandoned = true
			s.resetFrame()
			return nil, fmt.Errorf("%w at cursor %d", ErrPayloadOverflow, s.cursor)
		}
		s.payload[idx] = b
		s.cursor++

		if s.desc.SendMode() == SendModeMulti {
			if s.cursor-DescriptorSize == ScanRecordSize {
				f := d.frame(ScanRecordSize)
				f.Record = true
				// Rewind so the next record overwrites the same slot
				s.cursor -= ScanRecordSize
				return f, nil
			}
			return nil, nil
		}

		if s.cursor == DescriptorSize+s.desc.Length() {
			return d.complete(), nil
		}
		return nil, nil

	default:
		s.resetFrame()
		return nil, fmt.Errorf("invalid decoder state: %d", s.state)
	}
}

// advance moves to the next descriptor state
func (s *Session) advance() {
	s.state++
	s.cursor++
}

// complete builds a single-mode frame and rewinds for the next descriptor
func (d *Decoder) complete() *Frame {
	f := d.frame(d.session.desc.Length())
	d.session.resetFrame()
	return f
}

func (d *Decoder) frame(n int) *Frame {
	s := d.session
	payload := make([]byte, n)
	copy(payload, s.payload[:n])
	return &Frame{
		Request:    s.request,
		Descriptor: s.desc,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
}
