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
	"github.com/Thermoquad/lidarbridge/pkg/rplidar"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	rawLogRequest    string
	rawLogStartMotor bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Send one LiDAR request and log its responses",
	Long: `Send a single LiDAR request and display every decoded frame with its
descriptor and payload as it arrives.

Single responses end the log once decoded. Scan requests stream records until
Ctrl+C, after which STOP is sent.

Requests: stop, reset, scan, express_scan, force_scan, get_info, get_health,
get_samplerate.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVarP(&rawLogRequest, "request", "r", "get_info", "LiDAR request to send")
	rawLogCmd.Flags().BoolVar(&rawLogStartMotor, "start-motor", false, "Start the LiDAR motor before sending the request")
	rawLogCmd.Flags().StringVar(&motorPWM, "motor-pwm", "", "LiDAR motor PWM output as <chip>:<channel>")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	applyBridgeFlags(cmd.Flags())

	op, ok := rplidar.ParseOpcode(rawLogRequest)
	if !ok {
		return fmt.Errorf("unknown request %q", rawLogRequest)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, connInfo, err := OpenLidarConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	srv, motor, err := actuators()
	if err != nil {
		return err
	}

	fmt.Printf("lidarbridge - Raw Response Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Request: %s\n", rplidar.FormatOpcode(op))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sched := bridge.New(bridge.Options{
		SensorLink:  conn,
		ConsoleLink: io.Discard,
		Servo:       srv,
		Motor:       motor,
		OnFrame: func(f *rplidar.Frame) {
			fmt.Print(rplidar.FormatFrame(f))
			if !f.Record {
				cancel()
			}
		},
		IdleInterval: cfg.Bridge.IdleInterval,
	})

	if rawLogStartMotor {
		if err := motor.Start(); err != nil {
			return fmt.Errorf("start motor: %w", err)
		}
	}
	if err := sched.Send(op); err != nil {
		return err
	}

	go pump(ctx, cancel, "lidar", conn, sched.SensorMailbox(), lidarBaud())

	err = sched.Run(ctx)
	stopLidar(sched, motor)

	stats := sched.Statistics()
	if stats.DecodeErrors > 0 || stats.SensorOverruns > 0 {
		glog.Warningf("%d decode errors, %d bytes lost", stats.DecodeErrors, stats.SensorOverruns)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
