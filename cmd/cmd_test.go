// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/lidarbridge/pkg/config"
	"github.com/Thermoquad/lidarbridge/pkg/rplidar"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestInterruptReader(t *testing.T) {
	cancelled := false
	r := &interruptReader{
		r:      strings.NewReader("ab\x03cd"),
		cancel: func() { cancelled = true },
	}

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, "ab", string(buf[:n]))
	require.True(t, cancelled)
}

func TestInterruptReader_PassesOtherBytes(t *testing.T) {
	r := &interruptReader{r: strings.NewReader("servo 90\r"), cancel: func() { t.Fatal("cancelled") }}
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "servo 90\r", string(data))
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg = config.DefaultConfig()
	cfg.Lidar.URL = "ws://bench/serial"

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringVar(&portName, "port", "", "")
	flags.IntVar(&baudRate, "baud", 115200, "")
	flags.StringVar(&wsURL, "url", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "/dev/ttyS3"}))

	applyFlagOverrides(flags)
	require.Equal(t, "/dev/ttyS3", cfg.Lidar.Port)
	require.Empty(t, cfg.Lidar.URL, "an explicit port replaces a configured URL")
	require.Equal(t, 115200, cfg.Lidar.Baud, "unset flags keep the config value")
}

func TestApplyBridgeFlags(t *testing.T) {
	cfg = config.DefaultConfig()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addBridgeFlags(flags)
	flags.StringVar(&consolePort, "console-port", "", "")
	flags.IntVar(&consoleBaud, "console-baud", 115200, "")
	flags.StringVar(&exportCBOR, "export-cbor", "", "")
	flags.StringVar(&exportMQTT, "export-mqtt", "", "")
	require.NoError(t, flags.Parse([]string{"--servo-pwm", "0:0", "--no-reset", "--console-port", "/dev/ttyACM0", "--export-cbor", "scan.cbor"}))

	applyBridgeFlags(flags)
	require.Equal(t, "0:0", cfg.PWM.Servo)
	require.Empty(t, cfg.PWM.Motor)
	require.False(t, cfg.Bridge.ResetOnStart)
	require.Equal(t, "/dev/ttyACM0", cfg.Console.Port)
	require.Equal(t, "scan.cbor", cfg.Export.CBORPath)
	require.Empty(t, cfg.Export.MQTTURL)
}

func TestOpenLidarConnection_RequiresLink(t *testing.T) {
	cfg = config.DefaultConfig()
	cfg.Lidar.Port = ""
	_, _, err := OpenLidarConnection()
	require.Error(t, err)
}

func TestScanTracker(t *testing.T) {
	s := &scanTracker{}
	s.HandleScan(rplidar.ScanPoint{Start: true, AngleQ6: 64})
	s.HandleScan(rplidar.ScanPoint{AngleQ6: 128})
	s.HandleScan(rplidar.ScanPoint{Start: true, AngleQ6: 192})

	last, points, revolutions := s.snapshot()
	require.Equal(t, uint16(192), last.AngleQ6)
	require.Equal(t, uint64(3), points)
	require.Equal(t, uint64(2), revolutions)
}

func TestModel_ConsoleOutput(t *testing.T) {
	lines := make(chan string, 1)
	m := initialModel("test", rplidar.NewStatistics(), &scanTracker{}, newConsoleOutput(), lines)

	next, _ := m.Update(consoleOutputMsg("CMD?"))
	next, _ = next.Update(consoleOutputMsg("\r\nCMD: [\"help\"], [\"\"]\r\n"))
	require.Equal(t, "CMD?\nCMD: [\"help\"], [\"\"]\n", next.(model).transcript)
	require.Contains(t, next.View(), "LIDARBRIDGE - DEBUG CONSOLE")
}

func TestModel_EnterSubmitsLine(t *testing.T) {
	lines := make(chan string, 1)
	m := initialModel("test", rplidar.NewStatistics(), &scanTracker{}, newConsoleOutput(), lines)
	m.input.SetValue("servo 90")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, "servo 90\r", <-lines)
	require.Empty(t, next.(model).input.Value())
}

func TestModel_TranscriptIsBounded(t *testing.T) {
	m := initialModel("test", rplidar.NewStatistics(), &scanTracker{}, newConsoleOutput(), make(chan string))
	chunk := strings.Repeat("x", 1024)
	for i := 0; i < 2*maxConsoleBytes/len(chunk); i++ {
		m.appendOutput(chunk)
	}
	require.LessOrEqual(t, len(m.transcript), maxConsoleBytes)
}

func TestModel_CtrlRResetsStatistics(t *testing.T) {
	stats := rplidar.NewStatistics()
	stats.RecordRequest()
	m := initialModel("test", stats, &scanTracker{}, newConsoleOutput(), make(chan string))

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	require.Zero(t, stats.Snapshot().Requests)
}

// ============================================================
// Console output queue
// ============================================================

// The scheduler renders into the queue; a stalled UI must never block it
func TestConsoleOutput_FullQueueDropsWithoutBlocking(t *testing.T) {
	out := newConsoleOutput()
	render := []byte("{\"Q\":15}\r\n")
	short := make(chan int, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < outputQueueSize+10; i++ {
			if n, err := out.Write(render); err != nil || n != len(render) {
				short <- n
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked on a full queue")
	}
	require.Empty(t, short, "writes report the full length even when dropped")
	require.Equal(t, uint64(10), out.Dropped())
}

func TestConsoleOutput_ForwardBatchesQueuedRenders(t *testing.T) {
	out := newConsoleOutput()
	buf := []byte("CMD?")
	_, _ = out.Write(buf)
	buf[0] = 'X' // the queue keeps its own copy
	_, _ = out.Write([]byte("\r\nCMD: [\"help\"], [\"\"]\r\n"))

	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan tea.Msg, 4)
	done := make(chan struct{})
	go func() {
		out.forward(ctx, func(msg tea.Msg) { msgs <- msg })
		close(done)
	}()

	require.Equal(t, consoleOutputMsg("CMD?\r\nCMD: [\"help\"], [\"\"]\r\n"), <-msgs)
	cancel()
	<-done
}
