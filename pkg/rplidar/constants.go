// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rplidar implements the host side of the RPLIDAR serial protocol:
// request encoding, the byte-at-a-time response decoder, the correlation
// between the outstanding request and the decode policy, and rendering of
// decoded responses for the debug console.
//
// Requests are two bytes (sync, opcode), seven for EXPRESS_SCAN. Responses
// start with a seven byte descriptor (sync1, sync2, 32-bit little-endian
// {2-bit send mode, 30-bit length}, data type) followed by either a single
// payload of the declared length or an endless stream of scan records.
// STOP and RESET have no response at all; their completion is inferred from
// elapsed ticks.
package rplidar

import "time"

// Request framing
const (
	SyncByte = 0xA5

	// ExpressScanReservedSize is the number of zero bytes that follow the
	// EXPRESS_SCAN opcode (working mode + 4 reserved bytes).
	ExpressScanReservedSize = 5
)

// Response framing and buffer limits
const (
	DescriptorSize = 7
	ScanRecordSize = 5
	MaxPayloadSize = 1080

	lengthMask    = 0x3FFFFFFF
	sendModeShift = 30
)

// Silent request timing. The tick source runs at TickPeriod; the waits are
// fixed and cannot be changed per call.
const (
	TickPeriod     = time.Millisecond
	StopWaitTicks  = 1
	ResetWaitTicks = 2
)

// Opcode selects the request kind
type Opcode uint8

// Request opcodes
const (
	OpNone          Opcode = 0x00
	OpStop          Opcode = 0x25
	OpReset         Opcode = 0x40
	OpScan          Opcode = 0x20
	OpExpressScan   Opcode = 0x82
	OpForceScan     Opcode = 0x21
	OpGetInfo       Opcode = 0x50
	OpGetHealth     Opcode = 0x52
	OpGetSampleRate Opcode = 0x59
)

// Opcodes lists every request the sensor understands, in console order.
var Opcodes = []Opcode{
	OpStop,
	OpReset,
	OpScan,
	OpExpressScan,
	OpForceScan,
	OpGetInfo,
	OpGetHealth,
	OpGetSampleRate,
}

// IsSilent reports whether the sensor sends no response for op
func (op Opcode) IsSilent() bool {
	return op == OpStop || op == OpReset
}

// silentWait returns the fixed tick count to wait after a silent request
func (op Opcode) silentWait() int32 {
	switch op {
	case OpStop:
		return StopWaitTicks
	case OpReset:
		return ResetWaitTicks
	}
	return 0
}

// SendMode is the 2-bit response mode from the descriptor
type SendMode uint8

// Send mode values
const (
	SendModeSingle SendMode = 0x0
	SendModeMulti  SendMode = 0x1
)

// Health status codes from GET_HEALTH
const (
	HealthGood    = 0
	HealthWarning = 1
	HealthError   = 2
)

// Decoder states (internal). One byte advances exactly one state.
const (
	stateSync1 = iota
	stateSync2
	stateLen0
	stateLen1
	stateLen2
	stateLen3
	stateType
	statePayload
)
