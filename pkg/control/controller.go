// Package control composes the kinematic model, planner, joint state, dispatcher and link into
// the operations a CLI or TUI calls: move to a point, home, record and run trajectories.
package control

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/gwillem/ev3arm/pkg/kinematics"
	"github.com/gwillem/ev3arm/pkg/link"
	"github.com/gwillem/ev3arm/pkg/motion"
	"github.com/gwillem/ev3arm/pkg/robot"
	"github.com/gwillem/ev3arm/pkg/trajectory"
)

const defaultHz = 30

// Status is one sample of the joint state published to observers.
type Status struct {
	motion.Snapshot
	Timestamp time.Time
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	sender   motion.Sender
	hz       int
	dispatch []motion.Option
}

// WithSender sends frames through s instead of dialing cfg.Address.
func WithSender(s motion.Sender) Option {
	return func(o *options) {
		o.sender = s
	}
}

// WithStatusRate sets how often Start publishes the joint state.
func WithStatusRate(hz int) Option {
	return func(o *options) {
		o.hz = hz
	}
}

// WithDispatcherOptions passes options through to the motion dispatcher.
func WithDispatcherOptions(opts ...motion.Option) Option {
	return func(o *options) {
		o.dispatch = append(o.dispatch, opts...)
	}
}

// Controller owns one arm's model, state, planner and dispatcher.
type Controller struct {
	cfg        robot.ControllerConfig
	model      *kinematics.Model
	state      *motion.State
	planner    *trajectory.Planner
	dispatcher *motion.Dispatcher
	closer     io.Closer
	logger     golog.Logger
	hz         int

	mu      sync.RWMutex
	running bool
	stateCh chan Status
	logCh   chan string
}

// NewController builds the model from cfg and connects to the actuator node.
func NewController(ctx context.Context, cfg robot.ControllerConfig, logger golog.Logger, opts ...Option) (*Controller, error) {
	o := options{hz: defaultHz}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hz <= 0 {
		o.hz = defaultHz
	}

	model, err := cfg.Model()
	if err != nil {
		return nil, errors.Wrap(err, "build kinematic model")
	}

	c := &Controller{
		cfg:     cfg,
		model:   model,
		state:   motion.NewState(model),
		planner: trajectory.NewPlanner(),
		logger:  logger,
		hz:      o.hz,
		stateCh: make(chan Status, 1),
		logCh:   make(chan string, 10),
	}

	sender := o.sender
	if sender == nil {
		client, err := link.Dial(ctx, cfg.Address)
		if err != nil {
			return nil, errors.Wrap(err, "connect to actuator node")
		}
		c.closer = client
		sender = client
	}
	c.dispatcher = motion.NewDispatcher(c.state, sender, logger, o.dispatch...)
	return c, nil
}

// Close closes the controller and releases resources.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Config returns the controller settings.
func (c *Controller) Config() robot.ControllerConfig {
	return c.cfg
}

// Model returns the kinematic model.
func (c *Controller) Model() *kinematics.Model {
	return c.model
}

// State returns the shared joint state.
func (c *Controller) State() *motion.State {
	return c.state
}

// Trajectory returns a copy of the recorded waypoints.
func (c *Controller) Trajectory() trajectory.Trajectory {
	return c.planner.Trajectory()
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan Status {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the status publish frequency.
func (c *Controller) Hz() int {
	return c.hz
}

func (c *Controller) log(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.logger.Info(text)
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// MoveTo moves the end effector to target over duration seconds. The target is solved from
// the pose the move starts at; an unreachable target fails with kinematics.ErrUnreachable and
// leaves the state unchanged.
func (c *Controller) MoveTo(ctx context.Context, target r3.Vector, claw, duration float64) (motion.Report, error) {
	report, err := c.dispatcher.RunPlan(ctx, func(start motion.Snapshot) (trajectory.Sequence, error) {
		q, err := c.model.Inverse(target, start.Joints)
		if err != nil {
			return trajectory.Sequence{}, err
		}
		return trajectory.PointToPoint(start.Joints, start.Claw, q, claw, duration, c.cfg.SampleRate)
	})
	if err != nil {
		c.log("Move to (%.1f, %.1f, %.1f) rejected: %v", target.X, target.Y, target.Z, err)
		return report, err
	}
	c.log("Moved to (%.1f, %.1f, %.1f) in %s", target.X, target.Y, target.Z, report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// MoveJoints moves to joint angles over duration seconds.
func (c *Controller) MoveJoints(ctx context.Context, joints kinematics.JointAngles, claw, duration float64) (motion.Report, error) {
	if err := joints.Validate(); err != nil {
		return motion.Report{}, err
	}
	report, err := c.dispatcher.RunPlan(ctx, func(start motion.Snapshot) (trajectory.Sequence, error) {
		return trajectory.PointToPoint(start.Joints, start.Claw, joints, claw, duration, c.cfg.SampleRate)
	})
	if err != nil {
		c.log("Joint move rejected: %v", err)
		return report, err
	}
	c.log("Moved joints to %v in %s", joints.Degrees(), report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// Home returns every joint to zero over the configured home time. The claw is kept.
func (c *Controller) Home(ctx context.Context) (motion.Report, error) {
	report, err := c.dispatcher.RunPlan(ctx, func(start motion.Snapshot) (trajectory.Sequence, error) {
		return trajectory.PointToPoint(start.Joints, start.Claw, kinematics.JointAngles{}, start.Claw, c.cfg.HomeTime, c.cfg.SampleRate)
	})
	if err != nil {
		c.log("Homing failed: %v", err)
		return report, err
	}
	c.log("Homed in %s", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// AddWaypoint records the current pose as a waypoint at time t.
func (c *Controller) AddWaypoint(initialSpeed, finalSpeed, t float64) error {
	snap := c.state.Snapshot()
	if err := c.planner.AddWaypoint(snap.Joints, snap.Claw, initialSpeed, finalSpeed, t); err != nil {
		return err
	}
	c.log("Waypoint %d recorded at t=%.2f", c.planner.Len(), t)
	return nil
}

// AddWaypointAt records a waypoint for a Cartesian target, solved from the previous waypoint
// or, for the first one, from the current pose.
func (c *Controller) AddWaypointAt(target r3.Vector, claw, initialSpeed, finalSpeed, t float64) error {
	seed := c.state.JointAngles()
	if last, ok := c.planner.Last(); ok {
		seed = last.Joints
	}
	q, err := c.model.Inverse(target, seed)
	if err != nil {
		return err
	}
	if err := c.planner.AddWaypoint(q, claw, initialSpeed, finalSpeed, t); err != nil {
		return err
	}
	c.log("Waypoint %d recorded at t=%.2f for (%.1f, %.1f, %.1f)", c.planner.Len(), t, target.X, target.Y, target.Z)
	return nil
}

// ClearTrajectory drops all recorded waypoints.
func (c *Controller) ClearTrajectory() {
	c.planner.Clear()
	c.log("Trajectory cleared")
}

// RunTrajectory approaches the first waypoint over the configured home time, then runs the
// recorded trajectory, as one motion. The trajectory is kept for reuse.
func (c *Controller) RunTrajectory(ctx context.Context) (motion.Report, error) {
	tr := c.planner.Trajectory()
	body, err := trajectory.Interpolate(tr, c.cfg.SampleRate)
	if err != nil {
		return motion.Report{}, err
	}
	first := tr[0]

	report, err := c.dispatcher.RunPlan(ctx, func(start motion.Snapshot) (trajectory.Sequence, error) {
		approach, err := trajectory.PointToPoint(start.Joints, start.Claw, first.Joints, first.Claw, c.cfg.HomeTime, c.cfg.SampleRate)
		if err != nil {
			return trajectory.Sequence{}, err
		}
		return approach.Append(body), nil
	})
	if err != nil {
		c.log("Trajectory failed: %v", err)
		return report, err
	}
	c.log("Trajectory of %d waypoints done in %s", len(tr), report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// Start publishes the joint state at Hz until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("already running")
	}
	c.running = true
	c.mu.Unlock()

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return ctx.Err()
		case now := <-ticker.C:
			c.sendState(Status{Snapshot: c.state.Snapshot(), Timestamp: now})
		}
	}
}

func (c *Controller) sendState(s Status) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}
