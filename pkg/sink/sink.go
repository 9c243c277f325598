// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sink exports accepted scan points outside the console: to a CBOR
// file for later analysis and to an MQTT broker for live consumers.
//
// Every export is a two element CBOR array [timestamp, point], where
// timestamp is Unix nanoseconds and point is an integer-keyed map:
//
//	0: quality, 1: angle_q6, 2: distance_q2, 3: start flag
package sink

import (
	"errors"
	"time"

	"github.com/Thermoquad/lidarbridge/pkg/rplidar"
	"github.com/fxamacker/cbor/v2"
	"github.com/golang/glog"
)

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("sink closed")

// Sink receives scan points
type Sink interface {
	WriteScan(p rplidar.ScanPoint) error
	Close() error
}

// Sample is the exported form of a scan point
type Sample struct {
	_     struct{} `cbor:",toarray"`
	Time  int64
	Point rplidar.ScanPoint
}

// NewSample stamps p with the current time
func NewSample(p rplidar.ScanPoint) Sample {
	return Sample{Time: time.Now().UnixNano(), Point: p}
}

// Encode returns the CBOR encoding of a sample
func Encode(s Sample) ([]byte, error) {
	return cbor.Marshal(s)
}

// Multi fans scan points out to several sinks. A failing sink does not stop
// the others; the first error is returned.
type Multi []Sink

// WriteScan implements Sink
func (m Multi) WriteScan(p rplidar.ScanPoint) error {
	var first error
	for _, s := range m {
		if err := s.WriteScan(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements Sink
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handler adapts s to the scan handler of the response dispatcher. Export
// errors are logged and never reach the console.
func Handler(s Sink) rplidar.ScanHandler {
	return rplidar.HandleScanFunc(func(p rplidar.ScanPoint) {
		if err := s.WriteScan(p); err != nil {
			glog.Warningf("scan export: %v", err)
		}
	})
}
