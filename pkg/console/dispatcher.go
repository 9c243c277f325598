// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package console

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/Thermoquad/lidarbridge/pkg/rplidar"
	"github.com/golang/glog"
)

// Servo angle limits in degrees
const (
	MinAngle = 0
	MaxAngle = 180
)

var (
	// ErrUnknownCommand is returned for a line whose name is not in the
	// command table. The command listing is rendered.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnknownPayload is returned for a lidar line whose value is not in
	// the payload table. The payload listing is rendered.
	ErrUnknownPayload = errors.New("unknown lidar payload")

	// ErrAngleRange is returned for servo values outside [0, 180] or that
	// are not a number. The actuator is not called.
	ErrAngleRange = errors.New("servo angle out of range")
)

// Actuator positions the servo
type Actuator interface {
	SetAngle(degrees int) error
}

// Motor drives the LiDAR spindle
type Motor interface {
	Start() error
	Stop() error
}

// Requester sends a request to the LiDAR
type Requester interface {
	Send(op rplidar.Opcode) error
}

// Commands lists the command table in match order
var Commands = []string{"help", "servo", "lidar"}

// Motor payloads handled locally; every other lidar payload is a request
const (
	PayloadMotorStart = "pwm_start"
	PayloadMotorStop  = "pwm_stop"
)

// Payloads lists the lidar payload table in match order
func Payloads() []string {
	payloads := []string{PayloadMotorStart, PayloadMotorStop}
	for _, op := range rplidar.Opcodes {
		payloads = append(payloads, rplidar.FormatOpcode(op))
	}
	return payloads
}

// requestMessages is rendered before a request is sent. Requests whose
// message has no line ending are completed on the same line by "DONE" or
// the silent completion text.
var requestMessages = map[rplidar.Opcode]string{
	rplidar.OpStop:          "Stopping LiDAR...",
	rplidar.OpReset:         "Resetting LiDAR...",
	rplidar.OpScan:          "Requesting LiDAR scan...\r\n",
	rplidar.OpExpressScan:   "Requesting LiDAR express scan...\r\n",
	rplidar.OpForceScan:     "Requesting LiDAR force scan...\r\n",
	rplidar.OpGetInfo:       "Retrieving LiDAR information...",
	rplidar.OpGetHealth:     "Retrieving LiDAR health...",
	rplidar.OpGetSampleRate: "Retrieving LiDAR samplerates...",
}

// Dispatcher routes completed lines and renders console feedback. It also
// serves as the rplidar.ReadyNotifier that prints the prompt once a LiDAR
// request has finished.
type Dispatcher struct {
	out   io.Writer
	servo Actuator
	motor Motor
	lidar Requester
}

// NewDispatcher creates a command dispatcher rendering to out
func NewDispatcher(out io.Writer, servo Actuator, motor Motor, lidar Requester) *Dispatcher {
	return &Dispatcher{out: out, servo: servo, motor: motor, lidar: lidar}
}

// Ready renders the command prompt
func (d *Dispatcher) Ready() {
	d.render(rplidar.ConsolePrompt)
}

// Report renders a framer error followed by the prompt
func (d *Dispatcher) Report(err error) {
	switch {
	case errors.Is(err, ErrFormat):
		d.render("\r\nUse format: \"<cmd> (optional)<value>\"\r\n")
	case errors.Is(err, ErrOverflow):
		d.render("\r\nToo many characters! Try again!\r\n")
	default:
		d.render(fmt.Sprintf("\r\n%v\r\n", err))
	}
	d.Ready()
}

// Dispatch acknowledges line and routes it through the command table.
// Returns nil when the command was carried out or its request was sent.
func (d *Dispatcher) Dispatch(line Line) error {
	d.render(fmt.Sprintf("\r\nCMD: [\"%s\"], [\"%s\"]\r\n", line.Name, line.Value))

	switch strings.ToLower(line.Name) {
	case "help":
		d.renderCommands("")
		return nil
	case "servo":
		return d.dispatchServo(line.Value)
	case "lidar":
		return d.dispatchLidar(strings.ToLower(line.Value))
	default:
		d.renderCommands("Invalid command! ")
		return fmt.Errorf("%w: %q", ErrUnknownCommand, line.Name)
	}
}

func (d *Dispatcher) dispatchServo(value string) error {
	angle, ok := ParseValue(value)
	if !ok || angle > MaxAngle {
		d.render(fmt.Sprintf("Invalid value! Value must be between %d and %d.\r\n", MinAngle, MaxAngle))
		d.Ready()
		return fmt.Errorf("%w: %q", ErrAngleRange, value)
	}

	d.render(fmt.Sprintf("Setting servo angle to %d-degree(s)...", angle))
	err := d.servo.SetAngle(int(angle))
	d.renderResult(err)
	d.Ready()
	return err
}

func (d *Dispatcher) dispatchLidar(payload string) error {
	switch payload {
	case PayloadMotorStart:
		d.render("Starting LiDAR motor...\r\n")
		err := d.motor.Start()
		d.renderFailure(err)
		d.Ready()
		return err

	case PayloadMotorStop:
		d.render("Stopping LiDAR motor...\r\n")
		err := d.motor.Stop()
		d.renderFailure(err)
		d.Ready()
		return err
	}

	op, ok := rplidar.ParseOpcode(payload)
	if !ok {
		d.renderPayloads()
		return fmt.Errorf("%w: %q", ErrUnknownPayload, payload)
	}

	d.render(requestMessages[op])
	if err := d.lidar.Send(op); err != nil {
		d.renderResult(err)
		d.Ready()
		return err
	}
	// The response dispatcher signals ready when the request completes
	return nil
}

// ParseValue parses the value token as an unsigned decimal integer. It
// returns false for an empty token, a non-digit byte, or a value that does
// not fit in 64 bits.
func ParseValue(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var value, scale uint64 = 0, 1
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		digit := uint64(c - '0')
		if digit != 0 && (scale == 0 || digit > (math.MaxUint64-value)/scale) {
			return 0, false
		}
		value += digit * scale
		if scale > math.MaxUint64/10 {
			scale = 0 // any further non-zero digit overflows
		} else {
			scale *= 10
		}
	}
	return value, true
}

func (d *Dispatcher) renderCommands(prefix string) {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString("Use format <cmd> <payload>:\r\n<cmd> options:\r\n")
	for _, c := range Commands {
		fmt.Fprintf(&sb, " : %s\r\n", c)
	}
	sb.WriteString(rplidar.ConsolePrompt)
	d.render(sb.String())
}

func (d *Dispatcher) renderPayloads() {
	var sb strings.Builder
	sb.WriteString("Invalid LiDAR request! Use format \"lidar <payload>\":\r\n<payload> options:\r\n")
	for _, p := range Payloads() {
		fmt.Fprintf(&sb, " : %s\r\n", p)
	}
	sb.WriteString(rplidar.ConsolePrompt)
	d.render(sb.String())
}

func (d *Dispatcher) renderResult(err error) {
	if err != nil {
		d.render(fmt.Sprintf("FAILED\r\n : %v\r\n", err))
		return
	}
	d.render("DONE\r\n")
}

func (d *Dispatcher) renderFailure(err error) {
	if err != nil {
		d.render(fmt.Sprintf(" : %v\r\n", err))
	}
}

func (d *Dispatcher) render(s string) {
	if _, err := io.WriteString(d.out, s); err != nil {
		glog.Warningf("console render failed: %v", err)
	}
}
