// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Thermoquad/lidarbridge/pkg/rplidar"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test Helpers
// ============================================================

type fakeServo struct {
	angles []int
	err    error
}

func (s *fakeServo) SetAngle(degrees int) error {
	if s.err != nil {
		return s.err
	}
	s.angles = append(s.angles, degrees)
	return nil
}

type fakeMotor struct {
	running bool
	calls   int
}

func (m *fakeMotor) Start() error {
	m.running = true
	m.calls++
	return nil
}

func (m *fakeMotor) Stop() error {
	m.running = false
	m.calls++
	return nil
}

type fakeLidar struct {
	sent []rplidar.Opcode
	err  error
}

func (l *fakeLidar) Send(op rplidar.Opcode) error {
	l.sent = append(l.sent, op)
	return l.err
}

type fixture struct {
	out   *bytes.Buffer
	servo *fakeServo
	motor *fakeMotor
	lidar *fakeLidar
	disp  *Dispatcher
}

func newFixture() *fixture {
	f := &fixture{
		out:   &bytes.Buffer{},
		servo: &fakeServo{},
		motor: &fakeMotor{},
		lidar: &fakeLidar{},
	}
	f.disp = NewDispatcher(f.out, f.servo, f.motor, f.lidar)
	return f
}

// feedLine pushes s through the framer and returns the lines and errors
func feedLine(fr *Framer, s string) ([]*Line, []error) {
	var lines []*Line
	var errs []error
	for i := 0; i < len(s); i++ {
		line, err := fr.Feed(s[i])
		if err != nil {
			errs = append(errs, err)
		}
		if line != nil {
			lines = append(lines, line)
		}
	}
	return lines, errs
}

// ============================================================
// Framer Tests
// ============================================================

func TestFramer_NameAndValue(t *testing.T) {
	tests := []struct {
		input string
		name  string
		value string
	}{
		{"servo 45\r", "servo", "45"},
		{"help\r", "help", ""},
		{"lidar get_info\r", "lidar", "get_info"},
		{"servo \r", "servo", ""},
		{"\r", "", ""},
		{" x\r", " x", ""},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			fr := NewFramer(nil)
			lines, errs := feedLine(fr, tt.input)
			require.Empty(t, errs)
			require.Len(t, lines, 1)
			require.Equal(t, tt.name, lines[0].Name)
			require.Equal(t, tt.value, lines[0].Value)
			require.Zero(t, fr.Len(), "line resets after completion")
		})
	}
}

func TestFramer_EchoesEveryStoredByte(t *testing.T) {
	echo := &bytes.Buffer{}
	fr := NewFramer(echo)
	feedLine(fr, "servo 45\r")
	require.Equal(t, "servo 45", echo.String(), "carriage return is not echoed")
}

func TestFramer_IgnoresLeadingLineFeed(t *testing.T) {
	echo := &bytes.Buffer{}
	fr := NewFramer(echo)
	lines, errs := feedLine(fr, "help\r\nservo 1\r")
	require.Empty(t, errs)
	require.Len(t, lines, 2)
	require.Equal(t, "servo", lines[1].Name)
	require.Equal(t, "helpservo 1", echo.String())
}

func TestFramer_LineFeedInsideLineIsStored(t *testing.T) {
	fr := NewFramer(nil)
	lines, _ := feedLine(fr, "a\nb\r")
	require.Len(t, lines, 1)
	require.Equal(t, "a\nb", lines[0].Name)
}

func TestFramer_Overflow(t *testing.T) {
	echo := &bytes.Buffer{}
	fr := NewFramer(echo)

	lines, errs := feedLine(fr, strings.Repeat("x", LineCapacity+1))
	require.Empty(t, lines)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrOverflow)
	require.Zero(t, fr.Len())
	require.Equal(t, LineCapacity, echo.Len(), "overflowing byte is not echoed")

	lines, errs = feedLine(fr, "\r")
	require.Empty(t, errs)
	require.Len(t, lines, 1)
	require.Equal(t, Line{}, *lines[0], "no content survives the overflow")
}

func TestFramer_OverflowCountsDelimiter(t *testing.T) {
	fr := NewFramer(nil)
	input := "lidar " + strings.Repeat("v", LineCapacity-len("lidar "))
	lines, errs := feedLine(fr, input)
	require.Empty(t, lines)
	require.Empty(t, errs)
	require.Equal(t, LineCapacity, fr.Len())

	_, err := fr.Feed('v')
	require.ErrorIs(t, err, ErrOverflow)
}

func TestFramer_FullLineStillCompletes(t *testing.T) {
	fr := NewFramer(nil)
	value := strings.Repeat("9", LineCapacity-len("servo "))
	lines, errs := feedLine(fr, "servo "+value+"\r")
	require.Empty(t, errs)
	require.Len(t, lines, 1)
	require.Equal(t, value, lines[0].Value)
}

func TestFramer_SecondDelimiter(t *testing.T) {
	echo := &bytes.Buffer{}
	fr := NewFramer(echo)

	var errAt []int
	input := "a b c"
	for i := 0; i < len(input); i++ {
		if _, err := fr.Feed(input[i]); err != nil {
			require.ErrorIs(t, err, ErrFormat)
			errAt = append(errAt, i)
		}
	}
	require.Equal(t, []int{3}, errAt, "exactly one error, on the second space")
	require.Equal(t, "a b", echo.String())

	// The line was reset so "c" starts a fresh name
	lines, errs := feedLine(fr, "\r")
	require.Empty(t, errs)
	require.Equal(t, "c", lines[0].Name)
}

// ============================================================
// Dispatcher Tests
// ============================================================

func TestDispatch_ServoInRange(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.disp.Dispatch(Line{Name: "servo", Value: "45"}))
	require.Equal(t, []int{45}, f.servo.angles)
	require.Equal(t, "\r\nCMD: [\"servo\"], [\"45\"]\r\n"+
		"Setting servo angle to 45-degree(s)...DONE\r\n"+
		rplidar.ConsolePrompt, f.out.String())
}

func TestDispatch_ServoRejected(t *testing.T) {
	for _, value := range []string{"200", "181", "", "4a", "-1", "99999999999999999999999"} {
		t.Run(value, func(t *testing.T) {
			f := newFixture()
			err := f.disp.Dispatch(Line{Name: "servo", Value: value})
			require.ErrorIs(t, err, ErrAngleRange)
			require.Empty(t, f.servo.angles, "actuator must not be called")
			require.Contains(t, f.out.String(), "Invalid value! Value must be between 0 and 180.\r\n")
			require.True(t, strings.HasSuffix(f.out.String(), rplidar.ConsolePrompt))
		})
	}
}

func TestDispatch_ServoBounds(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.disp.Dispatch(Line{Name: "servo", Value: "0"}))
	require.NoError(t, f.disp.Dispatch(Line{Name: "SERVO", Value: "180"}))
	require.Equal(t, []int{0, 180}, f.servo.angles)
}

func TestDispatch_ServoFailure(t *testing.T) {
	f := newFixture()
	f.servo.err = errors.New("pwm busy")
	err := f.disp.Dispatch(Line{Name: "servo", Value: "90"})
	require.Error(t, err)
	require.Contains(t, f.out.String(), "FAILED\r\n : pwm busy\r\n")
}

func TestDispatch_LidarRequests(t *testing.T) {
	for _, op := range rplidar.Opcodes {
		name := rplidar.FormatOpcode(op)
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			require.NoError(t, f.disp.Dispatch(Line{Name: "lidar", Value: strings.ToUpper(name)}))
			require.Equal(t, []rplidar.Opcode{op}, f.lidar.sent)
			require.Contains(t, f.out.String(), requestMessages[op])
			require.NotContains(t, f.out.String(), rplidar.ConsolePrompt, "prompt waits for completion")
		})
	}
}

func TestDispatch_LidarSendFailure(t *testing.T) {
	f := newFixture()
	f.lidar.err = errors.New("port closed")
	require.Error(t, f.disp.Dispatch(Line{Name: "lidar", Value: "get_health"}))
	require.True(t, strings.HasSuffix(f.out.String(), rplidar.ConsolePrompt))
}

func TestDispatch_Motor(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.disp.Dispatch(Line{Name: "lidar", Value: "pwm_start"}))
	require.True(t, f.motor.running)
	require.NoError(t, f.disp.Dispatch(Line{Name: "lidar", Value: "pwm_stop"}))
	require.False(t, f.motor.running)
	require.Empty(t, f.lidar.sent)
	require.Equal(t, 2, strings.Count(f.out.String(), rplidar.ConsolePrompt))
}

func TestDispatch_UnknownPayload(t *testing.T) {
	f := newFixture()
	err := f.disp.Dispatch(Line{Name: "lidar", Value: "spin"})
	require.ErrorIs(t, err, ErrUnknownPayload)
	require.Empty(t, f.lidar.sent)
	for _, p := range Payloads() {
		require.Contains(t, f.out.String(), " : "+p+"\r\n")
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	f := newFixture()
	err := f.disp.Dispatch(Line{Name: "fly"})
	require.ErrorIs(t, err, ErrUnknownCommand)
	require.Contains(t, f.out.String(), "Invalid command! Use format <cmd> <payload>:\r\n<cmd> options:\r\n : help\r\n : servo\r\n : lidar\r\n")
}

func TestDispatch_Help(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.disp.Dispatch(Line{Name: "Help"}))
	require.NotContains(t, f.out.String(), "Invalid")
	require.True(t, strings.HasSuffix(f.out.String(), rplidar.ConsolePrompt))
}

func TestReport(t *testing.T) {
	f := newFixture()
	f.disp.Report(ErrOverflow)
	f.disp.Report(ErrFormat)
	require.Equal(t, "\r\nToo many characters! Try again!\r\n"+rplidar.ConsolePrompt+
		"\r\nUse format: \"<cmd> (optional)<value>\"\r\n"+rplidar.ConsolePrompt, f.out.String())
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		input string
		value uint64
		ok    bool
	}{
		{"0", 0, true},
		{"45", 45, true},
		{"007", 7, true},
		{"18446744073709551615", 18446744073709551615, true},
		{"18446744073709551616", 0, false},
		{"000000000000000000000000001", 1, true},
		{"", 0, false},
		{"1 ", 0, false},
		{"x", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, ok := ParseValue(tt.input)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.value, v)
		})
	}
}

// ============================================================
// Framer + Dispatcher
// ============================================================

func TestConsole_EndToEnd(t *testing.T) {
	f := newFixture()
	fr := NewFramer(f.out)

	lines, errs := feedLine(fr, "servo 45\r")
	require.Empty(t, errs)
	for _, l := range lines {
		_ = f.disp.Dispatch(*l)
	}

	lines, _ = feedLine(fr, "servo 200\r")
	for _, l := range lines {
		_ = f.disp.Dispatch(*l)
	}

	require.Equal(t, []int{45}, f.servo.angles)
	require.True(t, strings.HasPrefix(f.out.String(), "servo 45\r\nCMD: [\"servo\"], [\"45\"]\r\n"))
}
