// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/lidarbridge/pkg/bridge"
	"github.com/Thermoquad/lidarbridge/pkg/mailbox"
	"github.com/Thermoquad/lidarbridge/pkg/rplidar"
	"github.com/Thermoquad/lidarbridge/pkg/sink"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

// maxConsoleBytes bounds the console transcript kept for the viewport
const maxConsoleBytes = 64 * 1024

// outputQueueSize is the number of renders buffered between the scheduler
// and the UI
const outputQueueSize = 4096

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the debug console in a terminal UI",
	Long: `Run the debug console with a live view of the decoder statistics and the
latest scan point. Lines typed into the input box are sent to the console as
if typed on a terminal; the console transcript scrolls above it.

PgUp and PgDn scroll the transcript, Ctrl+R resets the statistics. Press
Ctrl+C or Esc to quit.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addBridgeFlags(monitorCmd.Flags())
	monitorCmd.Flags().StringVar(&exportCBOR, "export-cbor", "", "Append accepted scan points to a CBOR file")
	monitorCmd.Flags().StringVar(&exportMQTT, "export-mqtt", "", "Publish accepted scan points to an MQTT broker URL")
}

// scanTracker keeps the latest scan point for display. Written by the
// scheduler, read by the UI.
type scanTracker struct {
	mu          sync.Mutex
	last        rplidar.ScanPoint
	points      uint64
	revolutions uint64
}

func (t *scanTracker) HandleScan(p rplidar.ScanPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = p
	t.points++
	if p.Start {
		t.revolutions++
	}
}

func (t *scanTracker) snapshot() (rplidar.ScanPoint, uint64, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.points, t.revolutions
}

// Messages
type tickMsg time.Time
type consoleOutputMsg string

// consoleOutput queues console renders for the UI. Write never blocks the
// scheduler: when the queue is full the render is dropped and counted.
type consoleOutput struct {
	queue   chan []byte
	dropped atomic.Uint64
}

func newConsoleOutput() *consoleOutput {
	return &consoleOutput{queue: make(chan []byte, outputQueueSize)}
}

func (o *consoleOutput) Write(b []byte) (int, error) {
	chunk := append([]byte(nil), b...)
	select {
	case o.queue <- chunk:
	default:
		o.dropped.Add(1)
	}
	return len(b), nil
}

// Dropped returns the number of renders lost to a full queue
func (o *consoleOutput) Dropped() uint64 {
	return o.dropped.Load()
}

// forward hands queued renders to send, joining everything already queued
// into one message
func (o *consoleOutput) forward(ctx context.Context, send func(tea.Msg)) {
	for {
		var chunk []byte
		select {
		case <-ctx.Done():
			return
		case chunk = <-o.queue:
		}

		var batch strings.Builder
		batch.Write(chunk)
	drain:
		for {
			select {
			case more := <-o.queue:
				batch.Write(more)
			default:
				break drain
			}
		}
		send(consoleOutputMsg(batch.String()))
	}
}

// TUI model
type model struct {
	connInfo   string
	stats      *rplidar.Statistics
	scans      *scanTracker
	console    *consoleOutput
	lines      chan<- string
	transcript string
	output     viewport.Model
	input      textinput.Model
	width      int
	height     int
	quitting   bool
}

func initialModel(connInfo string, stats *rplidar.Statistics, scans *scanTracker, console *consoleOutput, lines chan<- string) model {
	ti := textinput.New()
	ti.Placeholder = "servo 90 | lidar get_info | help"
	ti.CharLimit = 64
	ti.Prompt = "> "
	ti.Focus()

	// Printable keys belong to the input; the transcript only pages
	vp := viewport.New(76, 10)
	vp.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
	}

	return model{
		connInfo: connInfo,
		stats:    stats,
		scans:    scans,
		console:  console,
		lines:    lines,
		output:   vp,
		input:    ti,
		width:    80,
		height:   24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		textinput.Blink,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+r":
			m.stats.Reset()
			return m, nil
		case "enter":
			select {
			case m.lines <- m.input.Value() + "\r":
			default:
				glog.Warning("console input busy, line dropped")
			}
			m.input.SetValue("")
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.output.Width = msg.Width - 4
		m.output.Height = msg.Height - 14
		if m.output.Height < 5 {
			m.output.Height = 5
		}

	case tickMsg:
		return m, tickCmd()

	case consoleOutputMsg:
		m.appendOutput(string(msg))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.output, cmd = m.output.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// appendOutput adds console output to the transcript, dropping carriage
// returns the viewport cannot render
func (m *model) appendOutput(s string) {
	m.transcript += strings.ReplaceAll(s, "\r", "")
	if len(m.transcript) > maxConsoleBytes {
		m.transcript = m.transcript[len(m.transcript)-maxConsoleBytes/2:]
	}
	m.output.SetContent(m.transcript)
	m.output.GotoBottom()
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("LIDARBRIDGE - DEBUG CONSOLE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("LiDAR: %s | Press Ctrl+C to quit", m.connInfo)))
	s.WriteString("\n\n")

	// Statistics
	snap := m.stats.Snapshot()
	var validPercent float64
	if total := snap.ScanRecords + snap.DroppedRecords; total > 0 {
		validPercent = float64(snap.ScanRecords) * 100.0 / float64(total)
	}
	errors := snap.DroppedRecords + snap.DecodeErrors + snap.ShortPayloads
	errStyle := statsValueStyle
	if errors > 0 {
		errStyle = errorStyle
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Requests:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.Requests)),
		statsLabelStyle.Render("Responses:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.Responses+snap.SilentCompletions)),
		statsLabelStyle.Render("Errors:"), errStyle.Render(fmt.Sprintf("%d", errors)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Records:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%% valid)", snap.ScanRecords, validPercent)),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f rec/s", snap.RecordRate)),
	))
	if dropped := m.console.Dropped(); dropped > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Dropped renders:"), errorStyle.Render(fmt.Sprintf("%d", dropped)),
		))
	}

	last, points, revolutions := m.scans.snapshot()
	if points > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
			statsLabelStyle.Render("Revolutions:"), statsValueStyle.Render(fmt.Sprintf("%d", revolutions)),
			statsLabelStyle.Render("Last:"), statsValueStyle.Render(fmt.Sprintf("%.2f° %.1f mm q%d", last.AngleDegrees(), last.DistanceMM(), last.Quality)),
		))
	} else {
		statsContent.WriteString(headerStyle.Render("(no scan points yet)"))
	}

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n")

	// Console transcript and input
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.output.View()))
	s.WriteString("\n")
	s.WriteString(m.input.View())

	return s.String()
}

// feedLines writes submitted lines into the console pipe in order
func feedLines(ctx context.Context, w io.Writer, lines <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-lines:
			if _, err := io.WriteString(w, line); err != nil {
				return
			}
		}
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	applyBridgeFlags(cmd.Flags())
	if cmd.Flags().Changed("export-cbor") {
		cfg.Export.CBORPath = exportCBOR
	}
	if cmd.Flags().Changed("export-mqtt") {
		cfg.Export.MQTTURL = exportMQTT
	}

	ctx, cancel := context.WithCancel(context.Background())
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
	defer sinks.Close()

	scans := &scanTracker{}
	var handler rplidar.ScanHandler = scans
	if len(sinks) > 0 {
		export := sink.Handler(sinks)
		handler = rplidar.HandleScanFunc(func(p rplidar.ScanPoint) {
			scans.HandleScan(p)
			export.HandleScan(p)
		})
	}

	lines := make(chan string, 16)
	pr, pw := io.Pipe()
	defer pw.Close()

	out := newConsoleOutput()
	sched := bridge.New(bridge.Options{
		SensorLink:   lidar,
		ConsoleLink:  out,
		Servo:        srv,
		Motor:        motor,
		Scans:        handler,
		ResetOnStart: cfg.Bridge.ResetOnStart,
		IdleInterval: cfg.Bridge.IdleInterval,
	})

	p := tea.NewProgram(initialModel(lidarInfo, sched.Statistics(), scans, out, lines), tea.WithAltScreen())

	go out.forward(ctx, p.Send)
	go feedLines(ctx, pw, lines)
	go pump(ctx, cancel, "lidar", lidar, sched.SensorMailbox(), lidarBaud())
	go func() {
		// The pipe has no line rate to keep up with, so nothing typed is lost
		linkEnded("console", mailbox.PumpLossless(ctx, pr, sched.ConsoleMailbox()))
		cancel()
	}()

	runDone := make(chan error, 1)
	go func() {
		runDone <- sched.Run(ctx)
	}()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	cancel()
	<-runDone
	stopLidar(sched, motor)
	fmt.Print(sched.Statistics())
	return nil
}
