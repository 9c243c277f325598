// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Response payload sizes
const (
	DeviceInfoSize   = 20
	SerialNumberSize = 16
	HealthSize       = 3
	SampleRateSize   = 4
)

var (
	// ErrShortPayload is returned when a response is shorter than its layout
	ErrShortPayload = errors.New("payload too short")

	// ErrInvalidChecksum is returned for scan records failing the
	// start/not-start/check bit pattern. Such records are dropped.
	ErrInvalidChecksum = errors.New("invalid scan record check bits")
)

// DeviceInfo is the GET_INFO response
type DeviceInfo struct {
	Model         uint8
	FirmwareMajor uint8
	FirmwareMinor uint8
	Hardware      uint8
	SerialNumber  [SerialNumberSize]byte
}

// ParseDeviceInfo decodes a GET_INFO payload
func ParseDeviceInfo(payload []byte) (DeviceInfo, error) {
	var info DeviceInfo
	if len(payload) < DeviceInfoSize {
		return info, fmt.Errorf("%w: get_info has %d bytes (want %d)", ErrShortPayload, len(payload), DeviceInfoSize)
	}
	info.Model = payload[0]
	info.FirmwareMajor = payload[1]
	info.FirmwareMinor = payload[2]
	info.Hardware = payload[3]
	copy(info.SerialNumber[:], payload[4:DeviceInfoSize])
	return info, nil
}

// SerialString renders the serial number as hex, last received byte first
func (i DeviceInfo) SerialString() string {
	var sb strings.Builder
	for n := SerialNumberSize - 1; n >= 0; n-- {
		fmt.Fprintf(&sb, "%02X", i.SerialNumber[n])
	}
	return sb.String()
}

// Health is the GET_HEALTH response
type Health struct {
	Status    uint8
	ErrorCode uint16
}

// ParseHealth decodes a GET_HEALTH payload.
//
// The error code is formed from bytes 0-1, so the status byte also supplies
// the low bits of the code. Existing consoles depend on this layout; see the
// open question in DESIGN.md before changing it.
func ParseHealth(payload []byte) (Health, error) {
	if len(payload) < 2 {
		return Health{}, fmt.Errorf("%w: get_health has %d bytes", ErrShortPayload, len(payload))
	}
	return Health{
		Status:    payload[0],
		ErrorCode: binary.LittleEndian.Uint16(payload[0:2]),
	}, nil
}

// StatusName returns the human-readable health status
func (h Health) StatusName() string {
	switch h.Status {
	case HealthGood:
		return "GOOD"
	case HealthWarning:
		return "WARNING"
	case HealthError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SampleRate is the GET_SAMPLERATE response (single measurement durations
// in microseconds)
type SampleRate struct {
	Standard uint16
	Express  uint16
}

// ParseSampleRate decodes a GET_SAMPLERATE payload
func ParseSampleRate(payload []byte) (SampleRate, error) {
	if len(payload) < SampleRateSize {
		return SampleRate{}, fmt.Errorf("%w: get_samplerate has %d bytes", ErrShortPayload, len(payload))
	}
	return SampleRate{
		Standard: binary.LittleEndian.Uint16(payload[0:2]),
		Express:  binary.LittleEndian.Uint16(payload[2:4]),
	}, nil
}

// ScanPoint is one SCAN record. Angle is q6 fixed point (1/64 degree),
// distance is q2 fixed point (1/4 mm).
type ScanPoint struct {
	Quality    uint8  `cbor:"0,keyasint" json:"q"`
	AngleQ6    uint16 `cbor:"1,keyasint" json:"a"`
	DistanceQ2 uint16 `cbor:"2,keyasint" json:"d"`
	Start      bool   `cbor:"3,keyasint" json:"s"`
}

// ParseScanRecord decodes a five byte scan record. The check pattern is
// {byte0 bit1, byte0 bit0, byte1 bit0}; only 0b101 and 0b110 are accepted,
// anything else is rejected with ErrInvalidChecksum.
func ParseScanRecord(record []byte) (ScanPoint, error) {
	if len(record) < ScanRecordSize {
		return ScanPoint{}, fmt.Errorf("%w: scan record has %d bytes", ErrShortPayload, len(record))
	}
	check := (record[0]&0x3)<<1 | record[1]&0x1
	if check != 0x5 && check != 0x6 {
		return ScanPoint{}, fmt.Errorf("%w: 0b%03b", ErrInvalidChecksum, check)
	}
	return ScanPoint{
		Quality:    record[0] >> 2,
		AngleQ6:    uint16(record[1])>>1 | uint16(record[2])<<7,
		DistanceQ2: uint16(record[3]) | uint16(record[4])<<8,
		Start:      record[0]&0x1 != 0,
	}, nil
}

// AngleDegrees converts the q6 angle to degrees
func (p ScanPoint) AngleDegrees() float64 {
	return float64(p.AngleQ6) / 64.0
}

// DistanceMM converts the q2 distance to millimetres
func (p ScanPoint) DistanceMM() float64 {
	return float64(p.DistanceQ2) / 4.0
}
