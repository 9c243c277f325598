// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge runs the cooperative scheduling loop that connects the
// operator console to the servo, the LiDAR motor and the LiDAR itself.
//
// Bytes arrive through two single-slot mailboxes filled by link pumps. The
// scheduler drains them one byte per pass, feeding the console framer and the
// LiDAR decoder. Neither poll blocks. A tick goroutine advances the silent
// completion timer of the session; everything else runs on the scheduler.
//
// A mailbox only holds one byte, so the loop must drain it within one byte
// period. After work it keeps polling, yielding between passes, for
// spinWindow; only then does it park until a mailbox signals a deposit or
// the idle interval passes.
package bridge

import (
	"context"
	"io"
	"runtime"
	"time"

	"github.com/Thermoquad/lidarbridge/pkg/console"
	"github.com/Thermoquad/lidarbridge/pkg/mailbox"
	"github.com/Thermoquad/lidarbridge/pkg/rplidar"
	"github.com/golang/glog"
)

// DefaultIdleInterval is the longest the loop parks without link activity.
// It bounds how late an expired silent timer is noticed.
const DefaultIdleInterval = rplidar.TickPeriod

// spinWindow is how long the loop keeps polling after the last pass that
// did work. It spans many byte periods at any supported line rate.
const spinWindow = 2 * time.Millisecond

// Options configures a Scheduler
type Options struct {
	// SensorLink receives encoded LiDAR requests
	SensorLink io.Writer
	// ConsoleLink receives echoes and every console render
	ConsoleLink io.Writer

	Servo console.Actuator
	Motor console.Motor

	// Scans, if set, receives every accepted scan point
	Scans rplidar.ScanHandler
	// OnFrame, if set, is called with every frame before it is rendered
	OnFrame func(*rplidar.Frame)

	// ResetOnStart sends RESET when Run starts
	ResetOnStart bool
	IdleInterval time.Duration
}

// Scheduler owns the LiDAR session and both framers
type Scheduler struct {
	session   *rplidar.Session
	encoder   *rplidar.Encoder
	decoder   *rplidar.Decoder
	responses *rplidar.Dispatcher
	framer    *console.Framer
	commands  *console.Dispatcher

	sensorIn  *mailbox.ByteChannel
	consoleIn *mailbox.ByteChannel
	out       io.Writer

	stats   *rplidar.Statistics
	onFrame func(*rplidar.Frame)

	resetOnStart bool
	idle         time.Duration
}

// New creates a scheduler. The console dispatcher sends LiDAR requests
// through the scheduler and the response dispatcher prompts through the
// console dispatcher.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		session:      rplidar.NewSession(),
		sensorIn:     mailbox.NewByteChannel(),
		consoleIn:    mailbox.NewByteChannel(),
		out:          opts.ConsoleLink,
		stats:        rplidar.NewStatistics(),
		onFrame:      opts.OnFrame,
		resetOnStart: opts.ResetOnStart,
		idle:         opts.IdleInterval,
	}
	if s.idle <= 0 {
		s.idle = DefaultIdleInterval
	}

	s.encoder = rplidar.NewEncoder(opts.SensorLink, s.session)
	s.decoder = rplidar.NewDecoder(s.session)
	s.framer = console.NewFramer(opts.ConsoleLink)
	s.commands = console.NewDispatcher(opts.ConsoleLink, opts.Servo, opts.Motor, s)
	s.responses = rplidar.NewDispatcher(opts.ConsoleLink, s.commands)
	s.responses.Scans = opts.Scans
	s.responses.Stats = s.stats

	return s
}

// SensorMailbox is filled by the LiDAR link pump
func (s *Scheduler) SensorMailbox() *mailbox.ByteChannel {
	return s.sensorIn
}

// ConsoleMailbox is filled by the console link pump
func (s *Scheduler) ConsoleMailbox() *mailbox.ByteChannel {
	return s.consoleIn
}

// Session exposes the LiDAR session
func (s *Scheduler) Session() *rplidar.Session {
	return s.session
}

// Statistics returns the decoder statistics with current mailbox losses
func (s *Scheduler) Statistics() *rplidar.Statistics {
	s.stats.SetOverruns(s.sensorIn.Overruns(), s.consoleIn.Overruns())
	return s.stats
}

// Send transmits a LiDAR request. It must only be called from the scheduler
// goroutine, or before Run.
func (s *Scheduler) Send(op rplidar.Opcode) error {
	s.stats.RecordRequest()
	glog.V(1).Infof("request %s", rplidar.FormatOpcode(op))
	return s.encoder.Send(op)
}

// Start renders the first prompt, or resets the LiDAR whose completion
// renders it.
func (s *Scheduler) Start() {
	if !s.resetOnStart {
		s.commands.Ready()
		return
	}
	if _, err := io.WriteString(s.out, "Resetting LiDAR..."); err != nil {
		glog.Warningf("console render failed: %v", err)
	}
	if err := s.Send(rplidar.OpReset); err != nil {
		glog.Errorf("start-up reset: %v", err)
		s.commands.Ready()
	}
}

// Poll performs one scheduler pass: at most one console byte, then a silent
// completion or at most one sensor byte. Returns false when there was
// nothing to do.
func (s *Scheduler) Poll() bool {
	worked := s.pollConsole()
	if s.pollSensor() {
		worked = true
	}
	return worked
}

func (s *Scheduler) pollConsole() bool {
	b, ok := s.consoleIn.Receive()
	if !ok {
		return false
	}

	line, err := s.framer.Feed(b)
	if err != nil {
		glog.V(1).Infof("console: %v", err)
		s.commands.Report(err)
		return true
	}
	if line != nil {
		if err := s.commands.Dispatch(*line); err != nil {
			glog.V(1).Infof("console %q: %v", line.Name, err)
		}
	}
	return true
}

func (s *Scheduler) pollSensor() bool {
	if f := s.decoder.PollSilent(); f != nil {
		s.dispatch(f)
		return true
	}

	b, ok := s.sensorIn.Receive()
	if !ok {
		return false
	}

	f, err := s.decoder.DecodeByte(b)
	if err != nil {
		s.stats.RecordDecodeError()
		glog.Warningf("lidar: %v", err)
		return true
	}
	if f != nil {
		s.dispatch(f)
	}
	return true
}

func (s *Scheduler) dispatch(f *rplidar.Frame) {
	if s.onFrame != nil {
		s.onFrame(f)
	}
	if err := s.responses.Dispatch(f); err != nil && glog.V(2) {
		glog.Infof("lidar %s: %v", rplidar.FormatOpcode(f.Request), err)
	}
}

// Run starts the tick source and polls until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(rplidar.TickPeriod)
	defer ticker.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.session.Tick()
			}
		}
	}()

	s.Start()

	park := time.NewTimer(s.idle)
	defer park.Stop()

	lastWork := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Poll() {
			lastWork = time.Now()
			continue
		}
		if time.Since(lastWork) < spinWindow {
			runtime.Gosched()
			continue
		}

		park.Reset(s.idle)
		select {
		case <-ctx.Done():
		case <-s.sensorIn.Ready():
		case <-s.consoleIn.Ready():
		case <-park.C:
		}
		park.Stop()
	}
}
