package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/nkoenig/teleop/pkg/calib"
	"github.com/nkoenig/teleop/pkg/channel"
	"github.com/nkoenig/teleop/pkg/motorctl"
	"github.com/nkoenig/teleop/pkg/profile"
	"github.com/nkoenig/teleop/pkg/source"
	"github.com/nkoenig/teleop/pkg/teleop"
)

type TeleoperateCommand struct {
	Hz   int    `long:"hz" description:"Control loop frequency (overrides the pairing default)"`
	Host string `long:"host" description:"Follower host (overrides the config file)"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Joint colors by index, reused across arms.
var jointColors = []string{
	"196", // red
	"208", // orange
	"226", // yellow
	"46",  // green
	"51",  // cyan
	"201", // magenta
	"105", // violet
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type teleopModel struct {
	ctrl     *teleop.Controller
	pairing  profile.Pairing
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	counters teleop.Counters
	quitting bool
	faulted  error
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg teleop.State
type logMsg string

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func seriesName(armID, jointName string) string {
	return armID + "/" + jointName
}

func initialTeleopModel(ctrl *teleop.Controller, pairing profile.Pairing) teleopModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-3.2, 3.2),
	)

	for _, arm := range pairing.Arms {
		for i, name := range arm.Names {
			color := jointColors[i%len(jointColors)]
			style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
			chart.SetDataSetStyles(seriesName(arm.ID, name), runes.ThinLineStyle, style)
		}
	}

	return teleopModel{
		ctrl:    ctrl,
		pairing: pairing,
		chart:   &chart,
	}
}

func (m teleopModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		state := teleop.State(msg)
		m.counters = state.Counters
		if state.Err != nil {
			m.faulted = state.Err
			m.addLog(fmt.Sprintf("FAULTED: %v", state.Err))
			return m, waitForLog(m.ctrl)
		}
		for _, arm := range m.pairing.Arms {
			joints := state.Positions[arm.ID]
			for i, v := range joints {
				if i < len(arm.Names) {
					m.chart.PushDataSet(seriesName(arm.ID, arm.Names[i]), v)
				}
			}
		}
		m.chart.DrawAll()
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Teleoperate"))
	sb.WriteString(fmt.Sprintf(" - %s @ %d Hz", m.pairing.Name, m.ctrl.Hz()))
	sb.WriteString(statusStyle.Render(fmt.Sprintf(
		"  drops:%d overruns:%d faults:%d suppressed:%d  [%s]",
		m.counters.Drops, m.counters.Overruns, m.counters.SensorFaults,
		m.counters.Suppressed, m.ctrl.Phase())))
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m teleopModel) renderLegend() string {
	var items []string
	arm := m.pairing.Arms[0]
	for i, name := range arm.Names {
		color := jointColors[i%len(jointColors)]
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name)
	}
	return strings.Join(items, "  ")
}

func (c *TeleoperateCommand) Execute(args []string) error {
	cfg, err := profile.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'teleop calibrate' first.")
		os.Exit(1)
	}
	if c.Host != "" {
		cfg.RemoteHost = c.Host
	}
	if c.Hz > 0 {
		cfg.Hz = c.Hz
	}
	pairing, err := cfg.Resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Loaded configuration from %s\n", profile.DefaultConfigFile)

	// Leader devices and calibration. A missing profile is fatal here;
	// there is no default calibration.
	var arms []teleop.ArmConfig
	var sources []source.Source
	closeSources := func() {
		for _, s := range sources {
			s.Close()
		}
	}
	for _, arm := range pairing.Arms {
		prof, err := calib.Load(cfg.CalibrationDir, arm.ID, arm.Joints)
		if err != nil {
			closeSources()
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		src, err := pairing.OpenSource(arm)
		if err != nil {
			closeSources()
			fmt.Fprintf(os.Stderr, "Open %s arm: %v\n", arm.ID, err)
			os.Exit(1)
		}
		if f, ok := src.(*source.FeetechSource); ok {
			if err := f.Disable(context.Background()); err != nil {
				log.Printf("warning: disable %s leader torque: %v", arm.ID, err)
			}
		}
		sources = append(sources, src)
		arms = append(arms, teleop.ArmConfig{ID: arm.ID, Source: src, Profile: prof})
	}
	defer closeSources()

	conn, err := channel.Dial(channel.Config{
		CommandURL:     pairing.CommandURL(cfg.RemoteHost),
		ObservationURL: pairing.ObservationURL(cfg.RemoteHost),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer conn.Close()

	var motors teleop.MotorStates
	if pairing.MotorControl {
		mc, err := motorctl.Dial(pairing.MotorURL(cfg.RemoteHost), 2*time.Second)
		if err != nil {
			log.Printf("warning: motor channel unavailable: %v", err)
		} else {
			defer mc.Close()
			motors = mc
		}
	}

	ctrl, err := teleop.New(teleop.Config{
		Arms:    arms,
		Channel: conn,
		Motors:  motors,
		Hz:      pairing.Hz,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Start(ctx)
	}()

	p := tea.NewProgram(initialTeleopModel(ctrl, pairing), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
	cancel()

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Session ended: %v\n", err)
		os.Exit(1)
	}
	return nil
}
