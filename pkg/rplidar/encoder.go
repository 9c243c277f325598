// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"fmt"
	"io"
)

// EncodeRequest builds the wire bytes for a request. EXPRESS_SCAN carries
// five zero-filled reserved bytes; every other request is sync + opcode.
func EncodeRequest(op Opcode) []byte {
	if op == OpExpressScan {
		frame := make([]byte, 2+ExpressScanReservedSize)
		frame[0] = SyncByte
		frame[1] = byte(op)
		return frame
	}
	return []byte{SyncByte, byte(op)}
}

// Encoder transmits requests on the sensor link and records them as the
// session's outstanding request.
type Encoder struct {
	link    io.Writer
	session *Session
}

// NewEncoder creates an encoder writing to link
func NewEncoder(link io.Writer, session *Session) *Encoder {
	return &Encoder{link: link, session: session}
}

// Send transmits op and makes it the outstanding request. It may be called
// at any time: the previous request is superseded, the cursor is rewound and
// the silent timer is armed for STOP/RESET or disarmed otherwise. The session
// is updated even if the link write fails.
func (e *Encoder) Send(op Opcode) error {
	e.session.begin(op)
	if _, err := e.link.Write(EncodeRequest(op)); err != nil {
		return fmt.Errorf("send %s: %w", FormatOpcode(op), err)
	}
	return nil
}
