package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edaniels/golog"
	"github.com/jessevdk/go-flags"

	"github.com/gwillem/ev3arm/pkg/logging"
	"github.com/gwillem/ev3arm/pkg/robot"
)

type Options struct {
	Config string `short:"c" long:"config" default:"ev3arm.json" description:"Configuration file"`
	Debug  bool   `long:"debug" description:"Enable debug logging"`

	Node  NodeCommand  `command:"node" description:"Run the actuator node: receive frames and drive the motors"`
	Move  MoveCommand  `command:"move" description:"Move the end effector to a Cartesian point"`
	Home  HomeCommand  `command:"home" description:"Return all joints to the home pose"`
	Path  PathCommand  `command:"path" description:"Run a cubic trajectory through Cartesian waypoints"`
	Setup SetupCommand `command:"setup" description:"Scan for the servo bus and calibrate the arm"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "ev3arm - motion control for a three joint arm with a claw"

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

// loadConfig reads the config file, or returns defaults when it does not exist yet.
func loadConfig() (*robot.Config, error) {
	if _, err := os.Stat(opts.Config); os.IsNotExist(err) {
		return robot.DefaultConfig(), nil
	}
	return robot.LoadConfigFrom(opts.Config)
}

func newLogger(name string) golog.Logger {
	return logging.NewLogger(name, opts.Debug)
}

// signalContext is canceled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
