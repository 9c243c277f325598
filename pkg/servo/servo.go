// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package servo drives the two PWM outputs of the bridge: the pan servo
// and the LiDAR spindle motor.
package servo

import (
	"fmt"
	"sync"
	"time"
)

// Servo timing
const (
	ServoFrequency = 330 // Hz
	MinPulse       = 500 * time.Microsecond
	MaxPulse       = 2500 * time.Microsecond
	MaxAngle       = 180
)

// Motor timing
const (
	MotorFrequency = 25000 // Hz
	MotorDuty      = 60    // percent
)

// periodOf returns the period of a frequency in Hz
func periodOf(hz int) time.Duration {
	return time.Second / time.Duration(hz)
}

// PulseWidth maps an angle in degrees linearly onto the servo pulse range.
// Angles outside [0, 180] are clamped.
func PulseWidth(angle int) time.Duration {
	if angle < 0 {
		angle = 0
	}
	if angle > MaxAngle {
		angle = MaxAngle
	}
	return MinPulse + (MaxPulse-MinPulse)*time.Duration(angle)/MaxAngle
}

// Servo positions a hobby servo on a PWM channel
type Servo struct {
	ch Channel

	mu         sync.Mutex
	configured bool
	angle      int
}

// New creates a servo on ch. The channel is configured on first use.
func New(ch Channel) *Servo {
	return &Servo{ch: ch, angle: -1}
}

// SetAngle moves the servo to angle degrees
func (s *Servo) SetAngle(angle int) error {
	if angle < 0 || angle > MaxAngle {
		return fmt.Errorf("angle %d outside [0, %d]", angle, MaxAngle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.configured {
		if err := s.ch.Configure(periodOf(ServoFrequency)); err != nil {
			return fmt.Errorf("servo %s: %w", s.ch, err)
		}
		if err := s.ch.Enable(true); err != nil {
			return fmt.Errorf("servo %s: %w", s.ch, err)
		}
		s.configured = true
	}

	if err := s.ch.SetDuty(PulseWidth(angle)); err != nil {
		return fmt.Errorf("servo %s: %w", s.ch, err)
	}
	s.angle = angle
	return nil
}

// Angle returns the last commanded angle, or -1 before the first command
func (s *Servo) Angle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}

// Motor runs the LiDAR spindle at a fixed duty cycle
type Motor struct {
	ch Channel

	mu      sync.Mutex
	running bool
}

// NewMotor creates a motor on ch
func NewMotor(ch Channel) *Motor {
	return &Motor{ch: ch}
}

// Start spins the motor at MotorDuty percent
func (m *Motor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	period := periodOf(MotorFrequency)
	if err := m.ch.Configure(period); err != nil {
		return fmt.Errorf("motor %s: %w", m.ch, err)
	}
	if err := m.ch.SetDuty(period * MotorDuty / 100); err != nil {
		return fmt.Errorf("motor %s: %w", m.ch, err)
	}
	if err := m.ch.Enable(true); err != nil {
		return fmt.Errorf("motor %s: %w", m.ch, err)
	}
	m.running = true
	return nil
}

// Stop drops the duty cycle to zero and disables the output
func (m *Motor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ch.SetDuty(0); err != nil {
		return fmt.Errorf("motor %s: %w", m.ch, err)
	}
	if err := m.ch.Enable(false); err != nil {
		return fmt.Errorf("motor %s: %w", m.ch, err)
	}
	m.running = false
	return nil
}

// Running reports whether the motor was last started
func (m *Motor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
