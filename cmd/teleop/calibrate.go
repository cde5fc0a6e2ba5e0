package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nkoenig/teleop/pkg/calib"
	"github.com/nkoenig/teleop/pkg/channel"
	"github.com/nkoenig/teleop/pkg/profile"
	"github.com/nkoenig/teleop/pkg/source"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type CalibrateCommand struct {
	Pairing        string `long:"pairing" default:"so101-piper" description:"Hardware pairing from the registry"`
	Host           string `long:"host" description:"Follower host (defaults to the pairing's address)"`
	Dir            string `long:"dir" default:"calibration" description:"Profile output directory"`
	FollowerOffset bool   `long:"follower-offset" description:"Also capture the follower's pose for a differential offset"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	pairing, ok := profile.Lookup(c.Pairing)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown pairing %q. Known pairings: %s\n", c.Pairing, strings.Join(profile.Names(), ", "))
		os.Exit(1)
	}

	fmt.Println(headerStyle.Render("Teleop Calibration"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	host := c.Host
	if host == "" {
		host = pairing.DefaultHost
	}

	for _, arm := range pairing.Arms {
		fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ Calibrating %s arm (%s) ━━━", arm.ID, arm.Port)))
		fmt.Println()
		if err := c.calibrateArm(pairing, arm, host); err != nil {
			fmt.Fprintf(os.Stderr, "Calibration of %s arm failed: %v\n", arm.ID, err)
			fmt.Fprintln(os.Stderr, "Previous profile (if any) was left untouched.")
			os.Exit(1)
		}
		fmt.Println()
	}

	cfg := &profile.Config{
		Pairing:        pairing.Name,
		RemoteHost:     host,
		CalibrationDir: c.Dir,
	}
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Calibration complete!"))
	fmt.Printf("Configuration saved to %s\n", profile.DefaultConfigFile)
	fmt.Println()
	fmt.Println("Start teleoperation with: " + headerStyle.Render("teleop teleoperate"))
	return nil
}

func (c *CalibrateCommand) calibrateArm(pairing profile.Pairing, arm profile.ArmSpec, host string) error {
	src, err := pairing.OpenSource(arm)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx := context.Background()
	if f, ok := src.(*source.FeetechSource); ok {
		// Servo leaders must be limp so the operator can pose them.
		if err := f.Disable(ctx); err != nil {
			fmt.Println(dimStyle.Render(fmt.Sprintf("warning: disable torque: %v", err)))
		}
	}

	waitForUser(fmt.Sprintf("Hold the %s arm at its reference pose (all joints neutral, gripper open).", arm.ID))

	spec := calib.CaptureSpec{Arm: arm.ID, Signs: arm.Signs, Scale: arm.Scale}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var prof *calib.Profile
	if c.FollowerOffset && pairing.Bidirectional {
		pose, err := followerPose(pairing, arm, host)
		if err != nil {
			return err
		}
		prof, err = calib.CaptureWithFollower(cctx, src, spec, pose)
		if err != nil {
			return err
		}
	} else {
		prof, err = calib.Capture(cctx, src, spec)
		if err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println()

	model := newRangeModel(arm, src, prof)
	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("range recording: %w", err)
	}

	if err := prof.Save(c.Dir); err != nil {
		return err
	}
	fmt.Printf("Profile saved to %s\n", calib.Path(c.Dir, arm.ID))
	return nil
}

// followerPose polls the observation channel briefly for the arm's
// reported pose at the calibration instant.
func followerPose(pairing profile.Pairing, arm profile.ArmSpec, host string) ([]float64, error) {
	conn, err := channel.Dial(channel.Config{
		CommandURL:     pairing.CommandURL(host),
		ObservationURL: pairing.ObservationURL(host),
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if o, ok := conn.Observation(); ok && o.ArmID == arm.ID {
			return o.Joints, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil, fmt.Errorf("no observation from follower for %s arm within 3s", arm.ID)
}

func waitForUser(prompt string) {
	fmt.Println(prompt)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

// Range recording TUI
type rangeModel struct {
	arm      profile.ArmSpec
	src      source.Source
	prof     *calib.Profile
	current  []int
	quitting bool
}

type rangeTickMsg time.Time

func newRangeModel(arm profile.ArmSpec, src source.Source, prof *calib.Profile) rangeModel {
	return rangeModel{
		arm:     arm,
		src:     src,
		prof:    prof,
		current: make([]int, arm.Joints),
	}
}

func rangeTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return rangeTickMsg(t)
	})
}

func (m rangeModel) Init() tea.Cmd {
	return rangeTick()
}

func (m rangeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case rangeTickMsg:
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
		s, err := m.src.Sample(ctx)
		cancel()
		if err == nil && !s.Faulted() {
			copy(m.current, s.Raw)
			m.prof.RecordRange(s.Raw)
		}
		return m, rangeTick()
	}

	return m, nil
}

func (m rangeModel) View() string {
	if m.quitting {
		return ""
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	jointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	currentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	rangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	rangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, m.arm.Joints)
	spans := make([]int, 0, m.arm.Joints)
	for i := 0; i < m.arm.Joints; i++ {
		j := m.prof.Joints[i]
		span := j.RawMax - j.RawMin
		spans = append(spans, span)
		name := fmt.Sprintf("joint_%d", i+1)
		if i < len(m.arm.Names) {
			name = m.arm.Names[i]
		}
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%d", m.current[i]),
			fmt.Sprintf("%d", j.RawMin),
			fmt.Sprintf("%d", j.RawMax),
			fmt.Sprintf("%d", span),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return jointStyle
			case 1:
				return currentStyle
			case 4:
				if row >= 0 && row < len(spans) && spans[row] > 500 {
					return rangeGoodStyle
				}
				return rangeLowStyle
			default:
				return cellStyle
			}
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))
	return sb.String()
}
