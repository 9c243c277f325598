// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"io"

	"github.com/golang/glog"
)

// ReadyNotifier is told when the console may issue a new command prompt
type ReadyNotifier interface {
	Ready()
}

// ReadyFunc is func type of ReadyNotifier.
type ReadyFunc func()

// Ready implements ReadyNotifier.
func (f ReadyFunc) Ready() {
	f()
}

// ScanHandler receives every accepted scan point
type ScanHandler interface {
	HandleScan(ScanPoint)
}

// HandleScanFunc is func type of ScanHandler.
type HandleScanFunc func(ScanPoint)

// HandleScan implements ScanHandler.
func (f HandleScanFunc) HandleScan(p ScanPoint) {
	f(p)
}

// Dispatcher renders completed frames keyed by the request that produced
// them and signals the console when a request has finished.
type Dispatcher struct {
	out   io.Writer
	ready ReadyNotifier

	// Scans, if set, receives every accepted scan point
	Scans ScanHandler
	// Stats, if set, is updated for every dispatched frame
	Stats *Statistics
}

// NewDispatcher creates a dispatcher rendering to out
func NewDispatcher(out io.Writer, ready ReadyNotifier) *Dispatcher {
	return &Dispatcher{out: out, ready: ready}
}

// Dispatch renders f. Every completion except a multi-mode record ends with
// a ready signal. The returned error is informational: invalid scan records
// and short payloads are reported but never stop the stream.
func (d *Dispatcher) Dispatch(f *Frame) error {
	var err error
	var validationErrors []ValidationError

	switch {
	case f.Silent:
		d.render(FormatSilent(f.Request))
		d.signalReady()

	case f.Record:
		validationErrors, err = d.dispatchRecord(f)

	default:
		err = d.dispatchResponse(f)
		d.signalReady()
	}

	if glog.V(2) {
		for _, v := range validationErrors {
			glog.Infof("scan point anomaly: %v", v)
		}
	}
	if d.Stats != nil {
		d.Stats.RecordFrame(f, err, validationErrors)
	}
	return err
}

func (d *Dispatcher) dispatchRecord(f *Frame) ([]ValidationError, error) {
	switch f.Request {
	case OpScan:
		p, err := ParseScanRecord(f.Payload)
		if err != nil {
			if glog.V(2) {
				glog.Infof("dropped scan record % X: %v", f.Payload, err)
			}
			return nil, err
		}
		d.render(FormatScanPoint(p))
		if d.Scans != nil {
			d.Scans.HandleScan(p)
		}
		return ValidateScanPoint(p), nil

	case OpExpressScan:
		renderExpressScan(f)
	case OpForceScan:
		renderForceScan(f)
	}
	return nil, nil
}

// renderExpressScan is the extension point for EXPRESS_SCAN cabins; the
// record layout is not decoded yet and records are discarded.
func renderExpressScan(*Frame) {}

// renderForceScan is the extension point for FORCE_SCAN records; they are
// discarded until a renderer is written.
func renderForceScan(*Frame) {}

func (d *Dispatcher) dispatchResponse(f *Frame) error {
	d.render("DONE\r\n")

	switch f.Request {
	case OpGetInfo:
		info, err := ParseDeviceInfo(f.Payload)
		if err != nil {
			d.renderError(err)
			return err
		}
		d.render(FormatDeviceInfo(info))

	case OpGetHealth:
		h, err := ParseHealth(f.Payload)
		if err != nil {
			d.renderError(err)
			return err
		}
		d.render(FormatHealth(h))

	case OpGetSampleRate:
		r, err := ParseSampleRate(f.Payload)
		if err != nil {
			d.renderError(err)
			return err
		}
		d.render(FormatSampleRate(r))

	default:
		glog.V(1).Infof("%s: %d byte response not rendered", FormatOpcode(f.Request), len(f.Payload))
	}
	return nil
}

func (d *Dispatcher) renderError(err error) {
	d.render(" : " + err.Error() + "\r\n")
}

func (d *Dispatcher) render(s string) {
	if s == "" {
		return
	}
	if _, err := io.WriteString(d.out, s); err != nil {
		glog.Warningf("console render failed: %v", err)
	}
}

func (d *Dispatcher) signalReady() {
	if d.ready != nil {
		d.ready.Ready()
	}
}
