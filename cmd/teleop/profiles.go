package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nkoenig/teleop/pkg/profile"
)

type ProfilesCommand struct{}

func (c *ProfilesCommand) Execute(args []string) error {
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	var rows [][]string
	for _, name := range profile.Names() {
		p, _ := profile.Lookup(name)
		arms := make([]string, 0, len(p.Arms))
		joints := 0
		for _, a := range p.Arms {
			arms = append(arms, a.ID)
			joints = a.Joints
		}
		dir := "command-only"
		if p.Bidirectional {
			dir = "bidirectional"
		}
		rows = append(rows, []string{
			name,
			string(p.Source),
			fmt.Sprintf("%s (%dj)", strings.Join(arms, "+"), joints),
			dir,
			fmt.Sprintf("%d Hz", p.Hz),
			p.Description,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Pairing", "Leader", "Arms", "Channel", "Rate", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return cellStyle
		})

	fmt.Println(t.Render())
	return nil
}
