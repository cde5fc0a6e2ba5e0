package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/nkoenig/teleop/pkg/motorctl"
	"github.com/nkoenig/teleop/pkg/profile"
)

type MotorsCommand struct {
	Host    string        `long:"host" description:"Follower host (overrides the config file)"`
	Timeout time.Duration `long:"timeout" default:"2s" description:"Ack deadline per command"`
}

func (c *MotorsCommand) Execute(args []string) error {
	cfg, err := profile.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'teleop calibrate' first.")
		os.Exit(1)
	}
	if c.Host != "" {
		cfg.RemoteHost = c.Host
	}
	pairing, err := cfg.Resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !pairing.MotorControl {
		fmt.Fprintf(os.Stderr, "Pairing %s has no motor control channel.\n", pairing.Name)
		os.Exit(1)
	}

	client, err := motorctl.Dial(pairing.MotorURL(cfg.RemoteHost), c.Timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Println(headerStyle.Render("Motor Control"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━"))
	fmt.Println("  l / r / b   enable left / right / both arms (safe, no position jump)")
	fmt.Println("  L / R / B   FULL RESET left / right / both (arm may move!)")
	fmt.Println("  s           query motor status")
	fmt.Println("  q           quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("command (l/r/b/L/R/B/s/q): ")
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		cmd := strings.TrimSpace(scanner.Text())

		switch cmd {
		case "q":
			return nil
		case "l":
			enable(client, "left")
		case "r":
			enable(client, "right")
		case "b":
			enable(client, "left")
			time.Sleep(100 * time.Millisecond)
			enable(client, "right")
		case "L":
			fullReset(client, "left")
		case "R":
			fullReset(client, "right")
		case "B":
			if confirmReset("both arms") {
				reset(client, "left")
				time.Sleep(100 * time.Millisecond)
				reset(client, "right")
			}
		case "s":
			for _, arm := range pairing.Arms {
				state, err := client.RequestStatus(arm.ID)
				if err != nil {
					fmt.Printf("  %s: %v\n", arm.ID, err)
					continue
				}
				fmt.Printf("  %s: %s\n", arm.ID, state)
			}
		default:
			// Unrecognized input is ignored, not fatal.
		}
	}
}

func enable(client *motorctl.Client, arm string) {
	if err := client.EnablePartial(arm); err != nil {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  enable %s: %v", arm, err)))
		return
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("  %s arm enabled (%s)", arm, client.State(arm))))
}

func fullReset(client *motorctl.Client, arm string) {
	if !confirmReset(arm + " arm") {
		fmt.Println("  cancelled")
		return
	}
	reset(client, arm)
}

func reset(client *motorctl.Client, arm string) {
	if err := client.FullReset(arm); err != nil {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  full reset %s: %v (state now %s)", arm, err, client.State(arm))))
		return
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("  %s arm reset (%s)", arm, client.State(arm))))
}

func confirmReset(what string) bool {
	var yes bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Full reset forces %s to the reference position and may move unexpectedly. Continue?", what)).
				Affirmative("Reset").
				Negative("Cancel").
				Value(&yes),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return yes
}
