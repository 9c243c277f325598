// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/lidarbridge/pkg/bridge"
	"github.com/Thermoquad/lidarbridge/pkg/mailbox"
	"github.com/Thermoquad/lidarbridge/pkg/rplidar"
	"github.com/Thermoquad/lidarbridge/pkg/servo"
	"github.com/spf13/cobra"
)

var (
	probeRequest string
	probeTimeout int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the LiDAR link by waiting for a response",
	Long: `Send a LiDAR request and wait for its response until timeout.

Bytes outside a response are ignored. For scan requests the first record
counts as the response, after which STOP is sent.

Exit codes:
  0 - Response received before timeout
  1 - Timeout reached without a response
  2 - Connection error

Useful for testing connectivity to the LiDAR or a WebSocket serial bridge.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVarP(&probeRequest, "request", "r", "get_health", "LiDAR request to send")
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a response")
}

func runProbe(cmd *cobra.Command, args []string) error {
	op, ok := rplidar.ParseOpcode(probeRequest)
	if !ok {
		return fmt.Errorf("unknown request %q", probeRequest)
	}

	conn, connInfo, err := OpenLidarConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("lidarbridge - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for %s response...\n\n", rplidar.FormatOpcode(op))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Frames are formatted on the scheduler goroutine; the payload is only
	// valid during the callback
	frameChan := make(chan string, 1)
	errChan := make(chan error, 1)

	sched := bridge.New(bridge.Options{
		SensorLink:  conn,
		ConsoleLink: io.Discard,
		Servo:       servo.New(servo.NewLogChannel("servo")),
		Motor:       servo.NewMotor(servo.NewLogChannel("motor")),
		OnFrame: func(f *rplidar.Frame) {
			select {
			case frameChan <- rplidar.FormatFrame(f):
			default:
			}
		},
	})
	if err := sched.Send(op); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(2)
	}

	go func() {
		errChan <- mailbox.Pump(ctx, conn, sched.SensorMailbox(), mailbox.BytePeriod(lidarBaud()))
	}()
	runDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(runDone)
	}()

	select {
	case frame := <-frameChan:
		cancel()
		<-runDone
		stopLidar(sched, nil)
		fmt.Printf("SUCCESS: Received response\n")
		fmt.Print(frame)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(probeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No response received within %d seconds\n", probeTimeout)
		os.Exit(1)
	}

	return nil
}
