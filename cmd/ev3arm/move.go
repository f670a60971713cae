package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/gwillem/ev3arm/pkg/control"
	"github.com/gwillem/ev3arm/pkg/logging"
	"github.com/gwillem/ev3arm/pkg/motion"
)

// controllerFlags are shared by the commands that drive the arm.
type controllerFlags struct {
	Address string  `long:"address" description:"Actuator node address (overrides controller.address)"`
	Rate    float64 `long:"rate" description:"Sample rate in Hz (overrides controller.sample_rate)"`
	Monitor bool    `long:"monitor" description:"Show a live joint chart while moving"`
}

type motionFunc func(ctx context.Context, ctrl *control.Controller) (motion.Report, error)

func (f *controllerFlags) run(name string, fn motionFunc) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if f.Address != "" {
		cfg.Controller.Address = f.Address
	}
	if f.Rate != 0 {
		cfg.Controller.SampleRate = f.Rate
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(name)
	if f.Monitor {
		logger = logging.NewNopLogger()
	}

	ctx, cancel := signalContext()
	defer cancel()

	ctrl, err := control.NewController(ctx, cfg.Controller, logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if f.Monitor {
		return runMonitor(ctx, name, ctrl, fn)
	}
	report, err := fn(ctx, ctrl)
	if err != nil {
		return err
	}
	printReport(ctrl, report)
	return nil
}

func printReport(ctrl *control.Controller, report motion.Report) {
	p := ctrl.State().CartesianPosition()
	fmt.Printf("%d samples in %s, %d send failures, max lateness %s\n",
		report.Samples, report.Elapsed, report.SendFailures, report.MaxLateness)
	fmt.Printf("End effector at (%.1f, %.1f, %.1f)\n", p.X, p.Y, p.Z)
}

type MoveCommand struct {
	controllerFlags
	Claw float64 `long:"claw" default:"0" description:"Claw opening in degrees"`
	Time float64 `short:"t" long:"time" description:"Move duration in seconds (default controller.move_time)"`

	Args struct {
		X float64 `positional-arg-name:"x"`
		Y float64 `positional-arg-name:"y"`
		Z float64 `positional-arg-name:"z"`
	} `positional-args:"yes" required:"yes"`
}

func (c *MoveCommand) Execute(args []string) error {
	target := r3.Vector{X: c.Args.X, Y: c.Args.Y, Z: c.Args.Z}
	claw := c.Claw * math.Pi / 180
	return c.run("move", func(ctx context.Context, ctrl *control.Controller) (motion.Report, error) {
		duration := c.Time
		if duration <= 0 {
			duration = ctrl.Config().MoveTime
		}
		return ctrl.MoveTo(ctx, target, claw, duration)
	})
}

type HomeCommand struct {
	controllerFlags
}

func (c *HomeCommand) Execute(args []string) error {
	return c.run("home", func(ctx context.Context, ctrl *control.Controller) (motion.Report, error) {
		return ctrl.Home(ctx)
	})
}

type PathCommand struct {
	controllerFlags
	Points []string `short:"p" long:"point" required:"yes" description:"Waypoint as x,y,z,t[,claw[,vi,vf]] with t in seconds and claw in degrees (repeatable)"`
}

// waypoint is one parsed --point value.
type waypoint struct {
	Target       r3.Vector
	Time         float64
	Claw         float64
	InitialSpeed float64
	FinalSpeed   float64
}

func parseWaypoint(s string) (waypoint, error) {
	fields := lo.Map(strings.Split(s, ","), func(f string, _ int) string {
		return strings.TrimSpace(f)
	})
	if len(fields) != 4 && len(fields) != 5 && len(fields) != 7 {
		return waypoint{}, errors.Errorf("point %q: want x,y,z,t[,claw[,vi,vf]]", s)
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return waypoint{}, errors.Wrapf(err, "point %q field %d", s, i+1)
		}
		values[i] = v
	}

	w := waypoint{
		Target: r3.Vector{X: values[0], Y: values[1], Z: values[2]},
		Time:   values[3],
	}
	if len(values) > 4 {
		w.Claw = values[4] * math.Pi / 180
	}
	if len(values) > 5 {
		w.InitialSpeed, w.FinalSpeed = values[5], values[6]
	}
	return w, nil
}

func (c *PathCommand) Execute(args []string) error {
	points := make([]waypoint, 0, len(c.Points))
	for _, s := range c.Points {
		w, err := parseWaypoint(s)
		if err != nil {
			return err
		}
		points = append(points, w)
	}

	return c.run("path", func(ctx context.Context, ctrl *control.Controller) (motion.Report, error) {
		for i, w := range points {
			if err := ctrl.AddWaypointAt(w.Target, w.Claw, w.InitialSpeed, w.FinalSpeed, w.Time); err != nil {
				return motion.Report{}, errors.Wrapf(err, "waypoint %d", i+1)
			}
		}
		return ctrl.RunTrajectory(ctx)
	})
}
