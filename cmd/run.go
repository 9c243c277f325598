// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/lidarbridge/pkg/bridge"
	"github.com/Thermoquad/lidarbridge/pkg/mailbox"
	"github.com/Thermoquad/lidarbridge/pkg/rplidar"
	"github.com/Thermoquad/lidarbridge/pkg/servo"
	"github.com/Thermoquad/lidarbridge/pkg/sink"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// interruptByte is Ctrl-C as read from a raw terminal
const interruptByte = 0x03

var (
	consolePort string
	consoleBaud int
	servoPWM    string
	motorPWM    string
	noReset     bool
	exportCBOR  string
	exportMQTT  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the debug console",
	Long: `Run the debug console. Commands are read from the console link (or the
local terminal when no console port is configured), LiDAR responses are
rendered back to it, and accepted scan points are exported to the configured
sinks.

PWM outputs are given as "<chip>:<channel>" of /sys/class/pwm. Without one,
the output is logged instead of driven.

Examples:
  lidarbridge run --port /dev/ttyUSB0
  lidarbridge run --port /dev/ttyUSB0 --console-port /dev/ttyACM0 --servo-pwm 0:0 --motor-pwm 0:1
  lidarbridge run --port /dev/ttyUSB0 --export-cbor scan.cbor --export-mqtt mqtt://broker/lab/lidar`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addBridgeFlags(runCmd.Flags())
	runCmd.Flags().StringVar(&consolePort, "console-port", "", "Console serial port (default: local terminal)")
	runCmd.Flags().IntVar(&consoleBaud, "console-baud", 115200, "Console baud rate")
	runCmd.Flags().StringVar(&exportCBOR, "export-cbor", "", "Append accepted scan points to a CBOR file")
	runCmd.Flags().StringVar(&exportMQTT, "export-mqtt", "", "Publish accepted scan points to an MQTT broker URL")
}

// addBridgeFlags registers the actuator and start-up flags shared by every
// command that runs a scheduler
func addBridgeFlags(flags *pflag.FlagSet) {
	flags.StringVar(&servoPWM, "servo-pwm", "", "Servo PWM output as <chip>:<channel>")
	flags.StringVar(&motorPWM, "motor-pwm", "", "LiDAR motor PWM output as <chip>:<channel>")
	flags.BoolVar(&noReset, "no-reset", false, "Skip the LiDAR reset at start-up")
}

// applyBridgeFlags copies explicitly set command flags over the loaded config
func applyBridgeFlags(flags *pflag.FlagSet) {
	if flags.Changed("servo-pwm") {
		cfg.PWM.Servo = servoPWM
	}
	if flags.Changed("motor-pwm") {
		cfg.PWM.Motor = motorPWM
	}
	if flags.Changed("no-reset") {
		cfg.Bridge.ResetOnStart = !noReset
	}
	if flags.Lookup("console-port") == nil {
		return
	}
	if flags.Changed("console-port") {
		cfg.Console.Port = consolePort
	}
	if flags.Changed("console-baud") {
		cfg.Console.Baud = consoleBaud
	}
	if flags.Changed("export-cbor") {
		cfg.Export.CBORPath = exportCBOR
	}
	if flags.Changed("export-mqtt") {
		cfg.Export.MQTTURL = exportMQTT
	}
}

// actuators opens the servo and motor PWM outputs from the config
func actuators() (*servo.Servo, *servo.Motor, error) {
	servoCh, err := servo.OpenChannel("servo", cfg.PWM.Servo)
	if err != nil {
		return nil, nil, fmt.Errorf("servo output: %w", err)
	}
	motorCh, err := servo.OpenChannel("motor", cfg.PWM.Motor)
	if err != nil {
		return nil, nil, fmt.Errorf("motor output: %w", err)
	}
	glog.Infof("servo on %s, motor on %s", servoCh, motorCh)
	return servo.New(servoCh), servo.NewMotor(motorCh), nil
}

// openSinks opens every configured scan export. Returns nil when none is
// configured.
func openSinks() (sink.Multi, error) {
	var sinks sink.Multi
	if cfg.Export.CBORPath != "" {
		f, err := sink.CreateCBORFile(cfg.Export.CBORPath)
		if err != nil {
			return nil, err
		}
		glog.Infof("exporting scan points to %s", cfg.Export.CBORPath)
		sinks = append(sinks, f)
	}
	if cfg.Export.MQTTURL != "" {
		m, err := sink.DialMQTT(cfg.Export.MQTTURL)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, m)
	}
	return sinks, nil
}

// interruptReader ends a raw terminal stream at Ctrl-C
type interruptReader struct {
	r      io.Reader
	cancel context.CancelFunc
}

func (ir *interruptReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	for i := 0; i < n; i++ {
		if p[i] == interruptByte {
			ir.cancel()
			return i, io.EOF
		}
	}
	return n, err
}

// consoleLink is the operator side of the bridge
type consoleLink struct {
	in      io.Reader
	out     io.Writer
	baud    int
	info    string
	closeFn func()
}

// openConsole opens the console serial port, or puts the local terminal in
// raw mode so every key reaches the framer as typed
func openConsole(cancel context.CancelFunc) (*consoleLink, error) {
	if cfg.Console.Port != "" {
		conn, err := OpenSerialConnection(cfg.Console.Port, cfg.Console.Baud)
		if err != nil {
			return nil, err
		}
		return &consoleLink{
			in:      conn,
			out:     conn,
			baud:    cfg.Console.Baud,
			info:    fmt.Sprintf("Serial: %s @ %d baud", cfg.Console.Port, cfg.Console.Baud),
			closeFn: func() { conn.Close() },
		}, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return &consoleLink{
			in:      os.Stdin,
			out:     os.Stdout,
			baud:    cfg.Console.Baud,
			info:    "stdin",
			closeFn: func() {},
		}, nil
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to set terminal raw mode: %w", err)
	}
	return &consoleLink{
		in:      &interruptReader{r: os.Stdin, cancel: cancel},
		out:     os.Stdout,
		baud:    cfg.Console.Baud,
		info:    "terminal (Ctrl-C to quit)",
		closeFn: func() { term.Restore(fd, state) },
	}, nil
}

// pump runs a link pump, cancelling the bridge when the link fails
func pump(ctx context.Context, cancel context.CancelFunc, name string, r io.Reader, ch *mailbox.ByteChannel, baud int) {
	linkEnded(name, mailbox.Pump(ctx, r, ch, mailbox.BytePeriod(baud)))
	cancel()
}

// linkEnded logs why a link pump returned
func linkEnded(name string, err error) {
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, mailbox.ErrClosed):
		glog.Infof("%s link closed", name)
	default:
		glog.Errorf("%s link: %v", name, err)
	}
}

// stopLidar stops a running scan and the motor so the sensor is left idle
func stopLidar(sched *bridge.Scheduler, motor *servo.Motor) {
	switch sched.Session().Request() {
	case rplidar.OpScan, rplidar.OpExpressScan, rplidar.OpForceScan:
		if err := sched.Send(rplidar.OpStop); err != nil {
			glog.Warningf("stop scan: %v", err)
		}
	}
	if motor != nil && motor.Running() {
		if err := motor.Stop(); err != nil {
			glog.Warningf("stop motor: %v", err)
		}
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	applyBridgeFlags(cmd.Flags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lidar, lidarInfo, err := OpenLidarConnection()
	if err != nil {
		return err
	}
	defer lidar.Close()

	srv, motor, err := actuators()
	if err != nil {
		return err
	}

	sinks, err := openSinks()
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			glog.Warningf("closing scan export: %v", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "LiDAR: %s\r\n", lidarInfo)

	console, err := openConsole(cancel)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Console: %s\r\n", console.info)

	opts := bridge.Options{
		SensorLink:   lidar,
		ConsoleLink:  console.out,
		Servo:        srv,
		Motor:        motor,
		ResetOnStart: cfg.Bridge.ResetOnStart,
		IdleInterval: cfg.Bridge.IdleInterval,
	}
	if len(sinks) > 0 {
		opts.Scans = sink.Handler(sinks)
	}
	sched := bridge.New(opts)

	go pump(ctx, cancel, "lidar", lidar, sched.SensorMailbox(), lidarBaud())
	go pump(ctx, cancel, "console", console.in, sched.ConsoleMailbox(), console.baud)

	err = sched.Run(ctx)
	console.closeFn()
	stopLidar(sched, motor)

	fmt.Fprintf(os.Stderr, "\n%s", sched.Statistics())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
