// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package servo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

// SysfsRoot is where the kernel exposes PWM chips
const SysfsRoot = "/sys/class/pwm"

// exportWait bounds how long to wait for udev to create an exported channel
const exportWait = 500 * time.Millisecond

// ErrInvalidChannel is returned for a malformed channel spec
var ErrInvalidChannel = errors.New("invalid pwm channel")

// Channel is one PWM output
type Channel interface {
	// Configure sets the period and zeroes the duty cycle
	Configure(period time.Duration) error
	// SetDuty sets the active time of each period
	SetDuty(duty time.Duration) error
	// Enable turns the output on or off
	Enable(on bool) error
	fmt.Stringer
}

// OpenChannel opens a PWM channel from a "<chip>:<channel>" spec, e.g.
// "0:1" for pwmchip0/pwm1. An empty spec returns a channel that only logs
// under name.
func OpenChannel(name, spec string) (Channel, error) {
	if spec == "" {
		return NewLogChannel(name), nil
	}
	chip, index, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q (want <chip>:<channel>)", ErrInvalidChannel, spec)
	}
	c, err := strconv.Atoi(chip)
	if err != nil {
		return nil, fmt.Errorf("%w: chip %q", ErrInvalidChannel, chip)
	}
	n, err := strconv.Atoi(index)
	if err != nil {
		return nil, fmt.Errorf("%w: channel %q", ErrInvalidChannel, index)
	}
	return NewSysfsChannel(SysfsRoot, c, n)
}

// SysfsChannel drives a PWM channel through the Linux sysfs interface
type SysfsChannel struct {
	dir string
}

// NewSysfsChannel opens pwmchip<chip>/pwm<index> under root, exporting the
// channel first if needed.
func NewSysfsChannel(root string, chip, index int) (*SysfsChannel, error) {
	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	dir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", index))

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filepath.Join(chipDir, "export"), []byte(strconv.Itoa(index)), 0o200); err != nil {
			return nil, fmt.Errorf("export %s: %w", dir, err)
		}
		deadline := time.Now().Add(exportWait)
		for {
			if _, err := os.Stat(dir); err == nil {
				break
			}
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("export %s: channel did not appear", dir)
			}
			time.Sleep(10 * time.Millisecond)
		}
	} else if err != nil {
		return nil, err
	}

	return &SysfsChannel{dir: dir}, nil
}

// Configure implements Channel
func (c *SysfsChannel) Configure(period time.Duration) error {
	// duty_cycle may never exceed period, so clear it first
	if err := c.write("duty_cycle", 0); err != nil {
		return err
	}
	return c.write("period", period.Nanoseconds())
}

// SetDuty implements Channel
func (c *SysfsChannel) SetDuty(duty time.Duration) error {
	return c.write("duty_cycle", duty.Nanoseconds())
}

// Enable implements Channel
func (c *SysfsChannel) Enable(on bool) error {
	var v int64
	if on {
		v = 1
	}
	return c.write("enable", v)
}

func (c *SysfsChannel) String() string {
	return c.dir
}

func (c *SysfsChannel) write(attr string, v int64) error {
	path := filepath.Join(c.dir, attr)
	if err := os.WriteFile(path, []byte(strconv.FormatInt(v, 10)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	glog.V(3).Infof("%s = %d", path, v)
	return nil
}

// LogChannel records PWM settings and logs them. It stands in for hardware
// when no channel is configured.
type LogChannel struct {
	name string

	mu      sync.Mutex
	period  time.Duration
	duty    time.Duration
	enabled bool
}

// NewLogChannel creates a logging channel
func NewLogChannel(name string) *LogChannel {
	return &LogChannel{name: name}
}

// Configure implements Channel
func (c *LogChannel) Configure(period time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.period = period
	c.duty = 0
	glog.Infof("[%s] period %v", c.name, period)
	return nil
}

// SetDuty implements Channel
func (c *LogChannel) SetDuty(duty time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if duty > c.period {
		return fmt.Errorf("[%s] duty %v exceeds period %v", c.name, duty, c.period)
	}
	c.duty = duty
	glog.Infof("[%s] duty %v", c.name, duty)
	return nil
}

// Enable implements Channel
func (c *LogChannel) Enable(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = on
	glog.Infof("[%s] enabled=%t", c.name, on)
	return nil
}

// State returns the current period, duty and enable flag
func (c *LogChannel) State() (period, duty time.Duration, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.period, c.duty, c.enabled
}

func (c *LogChannel) String() string {
	return c.name
}
