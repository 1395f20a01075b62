package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/workflow/engine"
	"github.com/KevinKickass/OpenRigCore/internal/workflow/streaming"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const maxRecords = 12

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of a running rig over gRPC",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("failed to connect %s: %w", addr, err)
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		client, err := streaming.Watch(ctx, conn)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", addr, err)
		}

		p := tea.NewProgram(newWatchModel(addr), tea.WithAltScreen())

		go func() {
			for {
				msg, err := client.Recv()
				if err != nil {
					p.Send(streamEndMsg{err: err})
					return
				}
				ev, err := streaming.EventFromStruct(msg)
				if err != nil {
					continue
				}
				p.Send(eventMsg{ev})
			}
		}()

		_, err = p.Run()
		return err
	},
}

func init() {
	watchCmd.Flags().String("addr", "localhost:50051", "gRPC address of the rig")
}

// Messages
type eventMsg struct{ ev *streaming.Event }
type streamEndMsg struct{ err error }

type recordLine struct {
	at   time.Time
	text string
}

type watchModel struct {
	addr     string
	snapshot *engine.Snapshot
	records  []recordLine
	events   int
	err      error
	width    int
	quitting bool
}

func newWatchModel(addr string) watchModel {
	return watchModel{addr: addr}
}

func (m watchModel) Init() tea.Cmd {
	return nil
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case eventMsg:
		m.events++
		switch msg.ev.Type {
		case streaming.EventSnapshot:
			if msg.ev.Snapshot != nil {
				m.snapshot = msg.ev.Snapshot
			}
		case streaming.EventTelemetry:
			if msg.ev.Record != nil {
				m.records = append(m.records, recordLine{at: msg.ev.Timestamp, text: msg.ev.Record.Encode()})
				if len(m.records) > maxRecords {
					m.records = m.records[len(m.records)-maxRecords:]
				}
			}
		}

	case streamEndMsg:
		if msg.err != nil && !errors.Is(msg.err, io.EOF) {
			m.err = msg.err
		}
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("RIGD - LIVE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %d events | Press 'q' to quit", m.addr, m.events)))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render("Stream ended: " + m.err.Error()))
		s.WriteString("\n\n")
	}

	s.WriteString(boxStyle.Render(m.statusView()))
	s.WriteString("\n")

	if len(m.records) > 0 {
		var lines strings.Builder
		for i, r := range m.records {
			if i > 0 {
				lines.WriteString("\n")
			}
			lines.WriteString(headerStyle.Render(r.at.Format("15:04:05.000")) + " " + r.text)
		}
		s.WriteString(boxStyle.Render(lines.String()))
		s.WriteString("\n")
	}
	return s.String()
}

func (m watchModel) statusView() string {
	snap := m.snapshot
	if snap == nil {
		return headerStyle.Render("Waiting for the first snapshot...")
	}

	field := func(label, value string) string {
		return labelStyle.Render(label) + " " + valueStyle.Render(value)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s   %s   %s\n",
		field("Mode:", string(snap.Mode)),
		field("Running:", fmt.Sprint(snap.Running)),
		field("Iteration:", fmt.Sprint(snap.Iteration)))
	fmt.Fprintf(&b, "%s   %s\n",
		field("Sequence:", snap.Sequence),
		field("Step:", fmt.Sprintf("%d %s", snap.StepIndex+1, snap.StepName)))
	fmt.Fprintf(&b, "%s", field("Retries:", fmt.Sprintf("%d/%d", snap.Retries, snap.RetryBudget)))

	if snap.Emergency {
		b.WriteString("\n" + errorStyle.Render("EMERGENCY STOP"))
	}
	if snap.ErrorLatched {
		b.WriteString("\n" + errorStyle.Render("FAULT: "+snap.ErrorMessage))
	}

	if len(snap.Watchdogs) > 0 {
		names := make([]string, 0, len(snap.Watchdogs))
		for name := range snap.Watchdogs {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\n")
		for _, name := range names {
			fmt.Fprintf(&b, "\n%s", field(name+":", snap.Watchdogs[name].Round(100*time.Millisecond).String()))
		}
	}
	return b.String()
}
