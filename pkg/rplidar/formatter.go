// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"fmt"
	"strings"
)

// ConsolePrompt is rendered whenever the console may accept a new command
const ConsolePrompt = "CMD?"

// FormatOpcode returns the console name for an opcode
func FormatOpcode(op Opcode) string {
	switch op {
	case OpStop:
		return "stop"
	case OpReset:
		return "reset"
	case OpScan:
		return "scan"
	case OpExpressScan:
		return "express_scan"
	case OpForceScan:
		return "force_scan"
	case OpGetInfo:
		return "get_info"
	case OpGetHealth:
		return "get_health"
	case OpGetSampleRate:
		return "get_samplerate"
	case OpNone:
		return "none"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(op))
	}
}

// ParseOpcode looks up an opcode by its console name
func ParseOpcode(name string) (Opcode, bool) {
	for _, op := range Opcodes {
		if FormatOpcode(op) == name {
			return op, true
		}
	}
	return OpNone, false
}

// FormatSendMode returns the name of a descriptor send mode
func FormatSendMode(m SendMode) string {
	switch m {
	case SendModeSingle:
		return "single"
	case SendModeMulti:
		return "multi"
	default:
		return fmt.Sprintf("reserved(%d)", m)
	}
}

// FormatDeviceInfo renders a GET_INFO response
func FormatDeviceInfo(info DeviceInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, " : RPLiDAR Model ID: %d\r\n", info.Model)
	fmt.Fprintf(&sb, " : Firmware Version: %d.%d\r\n", info.FirmwareMajor, info.FirmwareMinor)
	fmt.Fprintf(&sb, " : Hardware Version: %d\r\n", info.Hardware)
	fmt.Fprintf(&sb, " : Serial Number: 0x%s\r\n", info.SerialString())
	return sb.String()
}

// FormatHealth renders a GET_HEALTH response. A zero error code omits the
// error line.
func FormatHealth(h Health) string {
	s := fmt.Sprintf(" : LiDAR Health is %s!\r\n", h.StatusName())
	if h.ErrorCode != 0 {
		s += fmt.Sprintf(" : Error code: %d\r\n", h.ErrorCode)
	}
	return s
}

// FormatSampleRate renders a GET_SAMPLERATE response
func FormatSampleRate(r SampleRate) string {
	return fmt.Sprintf(" : Standard Scan Samplerate: %d\r\n : Express Scan Samplerate: %d\r\n",
		r.Standard, r.Express)
}

// FormatScanPoint renders one scan record in the console's compact JSON form
func FormatScanPoint(p ScanPoint) string {
	return fmt.Sprintf("{\"Q\":%d,\"A\":%d,\"D\":%d}\r\n", p.Quality, p.AngleQ6, p.DistanceQ2)
}

// FormatSilent renders the completion of a STOP or RESET
func FormatSilent(op Opcode) string {
	switch op {
	case OpStop:
		return "LiDAR stopped\r\n"
	case OpReset:
		return "LiDAR reset\r\n"
	}
	return ""
}

// FormatFrame renders a frame with its descriptor for protocol logging
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	if f.Silent {
		return fmt.Sprintf("[%s] %s (silent, completed by timer)\n", timestamp, strings.ToUpper(FormatOpcode(f.Request)))
	}

	d := f.Descriptor
	kind := "response"
	if f.Record {
		kind = "record"
	}
	result := fmt.Sprintf("[%s] %s %s sync=%02X%02X mode=%s len=%d type=0x%02X\n",
		timestamp, strings.ToUpper(FormatOpcode(f.Request)), kind,
		d.Sync1, d.Sync2, FormatSendMode(d.SendMode()), d.Length(), d.DataType)
	result += FormatPayload(f.Request, f.Payload)
	return result
}

// FormatPayload decodes a payload for protocol logging, falling back to a
// hex dump when the payload does not match the request's layout.
func FormatPayload(op Opcode, payload []byte) string {
	switch op {
	case OpGetInfo:
		if info, err := ParseDeviceInfo(payload); err == nil {
			return fmt.Sprintf("  Model: %d, Firmware: %d.%d, Hardware: %d, Serial: %s\n",
				info.Model, info.FirmwareMajor, info.FirmwareMinor, info.Hardware, info.SerialString())
		}

	case OpGetHealth:
		if h, err := ParseHealth(payload); err == nil {
			return fmt.Sprintf("  Status: %s (%d), Error code: %d\n", h.StatusName(), h.Status, h.ErrorCode)
		}

	case OpGetSampleRate:
		if r, err := ParseSampleRate(payload); err == nil {
			return fmt.Sprintf("  Standard: %d us, Express: %d us\n", r.Standard, r.Express)
		}

	case OpScan, OpForceScan:
		p, err := ParseScanRecord(payload)
		if err == nil {
			return fmt.Sprintf("  Quality: %d, Angle: %.2f°, Distance: %.2f mm, Start: %t\n",
				p.Quality, p.AngleDegrees(), p.DistanceMM(), p.Start)
		}
		if len(payload) == ScanRecordSize {
			return fmt.Sprintf("  DROPPED: %v\n", err)
		}
	}

	return hexDump(payload)
}

func hexDump(payload []byte) string {
	if len(payload) == 0 {
		return "  (no payload)\n"
	}
	result := "  Payload: "
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
