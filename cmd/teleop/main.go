package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Calibrate   CalibrateCommand   `command:"calibrate" description:"Capture calibration profiles for the leader arms"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Start teleoperation (leader-follower control)"`
	Motors      MotorsCommand      `command:"motors" description:"Interactive remote motor enable/reset console"`
	Profiles    ProfilesCommand    `command:"profiles" description:"List supported hardware pairings"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "teleop - drive remote robot arms by moving a leader arm"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
