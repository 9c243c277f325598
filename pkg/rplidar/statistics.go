// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks decoder throughput and error rates. Counters are updated
// by the scheduler and may be read concurrently through Snapshot.
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Requests          uint64
	Responses         uint64
	SilentCompletions uint64
	ScanRecords       uint64
	DroppedRecords    uint64
	UnhandledRecords  uint64
	DecodeErrors      uint64
	ShortPayloads     uint64
	AnomalousValues   uint64
	ZeroDistance      uint64
	AngleRange        uint64
	SensorOverruns    uint64
	ConsoleOverruns   uint64

	// Rates (calculated)
	RecordRate float64 // records/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordRequest counts an outbound request
func (s *Statistics) RecordRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests++
	s.LastUpdateTime = time.Now()
}

// RecordFrame updates statistics for a dispatched frame and its outcome
func (s *Statistics) RecordFrame(f *Frame, err error, validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case f.Silent:
		s.SilentCompletions++
	case f.Record:
		switch {
		case errors.Is(err, ErrInvalidChecksum):
			s.DroppedRecords++
		case f.Request == OpScan:
			s.ScanRecords++
		default:
			s.UnhandledRecords++
		}
	default:
		s.Responses++
		if errors.Is(err, ErrShortPayload) {
			s.ShortPayloads++
		}
	}

	for _, v := range validationErrors {
		switch v.Type {
		case AnomalyZeroDistance:
			s.ZeroDistance++
			s.AnomalousValues++
		case AnomalyAngleRange:
			s.AngleRange++
			s.AnomalousValues++
		}
	}

	s.LastUpdateTime = time.Now()
}

// RecordDecodeError counts a decoder failure
func (s *Statistics) RecordDecodeError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DecodeErrors++
	s.LastUpdateTime = time.Now()
}

// SetOverruns records the mailbox loss counters of both links
func (s *Statistics) SetOverruns(sensor, console uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SensorOverruns = sensor
	s.ConsoleOverruns = console
}

// CalculateRates calculates record and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.RecordRate = float64(s.ScanRecords) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.DroppedRecords + s.DecodeErrors + s.ShortPayloads + s.AnomalousValues
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return Statistics{
		StartTime:         s.StartTime,
		LastUpdateTime:    s.LastUpdateTime,
		Requests:          s.Requests,
		Responses:         s.Responses,
		SilentCompletions: s.SilentCompletions,
		ScanRecords:       s.ScanRecords,
		DroppedRecords:    s.DroppedRecords,
		UnhandledRecords:  s.UnhandledRecords,
		DecodeErrors:      s.DecodeErrors,
		ShortPayloads:     s.ShortPayloads,
		AnomalousValues:   s.AnomalousValues,
		ZeroDistance:      s.ZeroDistance,
		AngleRange:        s.AngleRange,
		SensorOverruns:    s.SensorOverruns,
		ConsoleOverruns:   s.ConsoleOverruns,
		RecordRate:        s.RecordRate,
		ErrorRate:         s.ErrorRate,
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var validPercent float64
	if total := snap.ScanRecords + snap.DroppedRecords; total > 0 {
		validPercent = float64(snap.ScanRecords) * 100.0 / float64(total)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Requests:        %8d\n", snap.Requests)
	result += fmt.Sprintf("Responses:       %8d\n", snap.Responses)
	result += fmt.Sprintf("Silent:          %8d\n", snap.SilentCompletions)
	result += fmt.Sprintf("Scan Records:    %8d (%.1f%% valid)\n", snap.ScanRecords, validPercent)

	if snap.DroppedRecords > 0 {
		result += fmt.Sprintf("Dropped Records: %8d\n", snap.DroppedRecords)
	}
	if snap.UnhandledRecords > 0 {
		result += fmt.Sprintf("Unhandled:       %8d\n", snap.UnhandledRecords)
	}
	if snap.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", snap.DecodeErrors)
	}
	if snap.ShortPayloads > 0 {
		result += fmt.Sprintf("Short Payloads:  %8d\n", snap.ShortPayloads)
	}
	if snap.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", snap.AnomalousValues)
		if snap.ZeroDistance > 0 {
			result += fmt.Sprintf("  No Return:        %5d\n", snap.ZeroDistance)
		}
		if snap.AngleRange > 0 {
			result += fmt.Sprintf("  Angle >= 360:     %5d\n", snap.AngleRange)
		}
	}
	if snap.SensorOverruns > 0 || snap.ConsoleOverruns > 0 {
		result += fmt.Sprintf("Lost Bytes:      %8d sensor, %d console\n", snap.SensorOverruns, snap.ConsoleOverruns)
	}

	result += fmt.Sprintf("Record Rate:     %8.1f records/sec\n", snap.RecordRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.Requests = 0
	s.Responses = 0
	s.SilentCompletions = 0
	s.ScanRecords = 0
	s.DroppedRecords = 0
	s.UnhandledRecords = 0
	s.DecodeErrors = 0
	s.ShortPayloads = 0
	s.AnomalousValues = 0
	s.ZeroDistance = 0
	s.AngleRange = 0
	s.SensorOverruns = 0
	s.ConsoleOverruns = 0
	s.RecordRate = 0
	s.ErrorRate = 0
}
