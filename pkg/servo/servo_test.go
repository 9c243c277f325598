// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package servo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPulseWidth(t *testing.T) {
	tests := []struct {
		angle    int
		expected time.Duration
	}{
		{0, 500 * time.Microsecond},
		{45, 1000 * time.Microsecond},
		{90, 1500 * time.Microsecond},
		{180, 2500 * time.Microsecond},
		{-10, 500 * time.Microsecond},
		{270, 2500 * time.Microsecond},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, PulseWidth(tt.angle), "angle %d", tt.angle)
	}
}

func TestServo_SetAngle(t *testing.T) {
	ch := NewLogChannel("servo")
	s := New(ch)
	require.Equal(t, -1, s.Angle())

	require.NoError(t, s.SetAngle(90))
	period, duty, enabled := ch.State()
	require.Equal(t, time.Second/330, period)
	require.Equal(t, 1500*time.Microsecond, duty)
	require.True(t, enabled)
	require.Equal(t, 90, s.Angle())

	require.Error(t, s.SetAngle(181))
	require.Equal(t, 90, s.Angle())
}

func TestMotor_StartStop(t *testing.T) {
	ch := NewLogChannel("motor")
	m := NewMotor(ch)

	require.NoError(t, m.Start())
	period, duty, enabled := ch.State()
	require.Equal(t, 40*time.Microsecond, period)
	require.Equal(t, 24*time.Microsecond, duty)
	require.True(t, enabled)
	require.True(t, m.Running())

	require.NoError(t, m.Stop())
	_, duty, enabled = ch.State()
	require.Zero(t, duty)
	require.False(t, enabled)
	require.False(t, m.Running())
}

func TestSysfsChannel(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pwmchip0", "pwm1")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	ch, err := NewSysfsChannel(root, 0, 1)
	require.NoError(t, err)
	require.Equal(t, dir, ch.String())

	s := New(ch)
	require.NoError(t, s.SetAngle(45))

	read := func(attr string) string {
		b, err := os.ReadFile(filepath.Join(dir, attr))
		require.NoError(t, err)
		return string(b)
	}
	require.Equal(t, "3030303", read("period"))
	require.Equal(t, "1000000", read("duty_cycle"))
	require.Equal(t, "1", read("enable"))
}

func TestSysfsChannel_ExportFailure(t *testing.T) {
	_, err := NewSysfsChannel(t.TempDir(), 3, 0)
	require.Error(t, err, "missing chip cannot be exported")
}

func TestOpenChannel(t *testing.T) {
	ch, err := OpenChannel("servo", "")
	require.NoError(t, err)
	require.IsType(t, &LogChannel{}, ch)
	require.Equal(t, "servo", ch.String())

	for _, spec := range []string{"0", "a:1", "0:b"} {
		_, err := OpenChannel("servo", spec)
		require.ErrorIs(t, err, ErrInvalidChannel, spec)
	}
}
