package main

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gwillem/ev3arm/pkg/link"
	"github.com/gwillem/ev3arm/pkg/robot"
)

type NodeCommand struct {
	Listen string `long:"listen" description:"Listen address (overrides node.listen)"`
	Port   string `long:"port" description:"Servo bus serial port (overrides node.port)"`
	DryRun bool   `long:"dry-run" description:"Log motor targets instead of driving servos"`
}

func (c *NodeCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Node.Listen = c.Listen
	}
	if c.Port != "" {
		cfg.Node.Port = c.Port
	}

	logger := newLogger("node")
	ctx, cancel := signalContext()
	defer cancel()

	var driver link.Driver
	if c.DryRun {
		driver = robot.NewDryRun(logger, cfg.Node.Deadband)
		logger.Info("dry run: no servos will move")
	} else {
		if cfg.Node.Port == "" {
			return errors.New("no servo port configured, run 'ev3arm setup' or pass --port")
		}
		if !cfg.Node.IsCalibrated() {
			logger.Warn("no calibration found, using direct drive defaults")
		}
		arm, err := robot.NewArm(cfg.Node)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := arm.Close(); cerr != nil {
				for _, e := range multierr.Errors(cerr) {
					logger.Warnw("close arm", "error", e)
				}
			}
		}()
		if err := arm.Enable(ctx); err != nil {
			return errors.Wrap(err, "enable torque")
		}
		logger.Infow("servos enabled", "port", cfg.Node.Port)
		driver = arm
	}

	return link.NewServer(driver, logger).ListenAndServe(ctx, cfg.Node.Listen)
}
