// Package trajectory builds time-indexed joint sequences from timed waypoints using one cubic
// polynomial per segment, with position and speed constraints at both ends of each segment.
package trajectory

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/gwillem/ev3arm/pkg/kinematics"
)

var (
	// ErrInvalidWaypoint is returned for waypoints that would break the time ordering of a
	// trajectory or carry non-finite values.
	ErrInvalidWaypoint = errors.New("invalid waypoint")
	// ErrDegenerateSegment is returned when two consecutive waypoints share a time.
	ErrDegenerateSegment = errors.WithMessage(ErrInvalidWaypoint, "degenerate segment")
	// ErrTooFewWaypoints is returned when interpolating fewer than two waypoints.
	ErrTooFewWaypoints = errors.WithMessage(ErrInvalidWaypoint, "trajectory needs at least two waypoints")
	// ErrSampleRate is returned for a non-positive sample rate.
	ErrSampleRate = errors.New("sample rate must be positive")
	// ErrMalformedSequence is returned for a sequence whose columns differ in length.
	ErrMalformedSequence = errors.New("malformed sequence")
)

// Waypoint is a timed joint-space target. Time is on the trajectory's own clock.
type Waypoint struct {
	Joints       kinematics.JointAngles `json:"joints"`
	Claw         float64                `json:"claw"`
	InitialSpeed float64                `json:"initial_speed"`
	FinalSpeed   float64                `json:"final_speed"`
	Time         float64                `json:"time"`
}

func (w Waypoint) validate() error {
	if err := w.Joints.Validate(); err != nil {
		return errors.Wrap(ErrInvalidWaypoint, err.Error())
	}
	for _, v := range []float64{w.Claw, w.InitialSpeed, w.FinalSpeed, w.Time} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidWaypoint, "non-finite value in %+v", w)
		}
	}
	return nil
}

// Trajectory is an ordered list of waypoints; insertion order is execution order.
type Trajectory []Waypoint

// Validate checks every waypoint and the strict time ordering.
func (tr Trajectory) Validate() error {
	for i, w := range tr {
		if err := w.validate(); err != nil {
			return errors.Wrapf(err, "waypoint %d", i)
		}
		if i == 0 {
			continue
		}
		if err := checkOrder(tr[i-1].Time, w.Time); err != nil {
			return errors.Wrapf(err, "waypoint %d", i)
		}
	}
	return nil
}

func checkOrder(last, next float64) error {
	switch {
	case next == last:
		return errors.Wrapf(ErrDegenerateSegment, "time %v repeats the previous waypoint", next)
	case next < last:
		return errors.Wrapf(ErrInvalidWaypoint, "time %v is before the previous waypoint at %v", next, last)
	}
	return nil
}

// Planner accumulates the active trajectory between add and run calls.
type Planner struct {
	mu        sync.Mutex
	waypoints Trajectory
}

// NewPlanner returns a planner with an empty trajectory.
func NewPlanner() *Planner {
	return &Planner{}
}

// AddWaypoint appends a waypoint. The first waypoint accepts any finite time; later ones must
// be strictly after the last recorded time.
func (p *Planner) AddWaypoint(joints kinematics.JointAngles, claw, initialSpeed, finalSpeed, t float64) error {
	w := Waypoint{
		Joints:       joints,
		Claw:         claw,
		InitialSpeed: initialSpeed,
		FinalSpeed:   finalSpeed,
		Time:         t,
	}
	if err := w.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.waypoints); n > 0 {
		if err := checkOrder(p.waypoints[n-1].Time, t); err != nil {
			return err
		}
	}
	p.waypoints = append(p.waypoints, w)
	return nil
}

// Clear empties the active trajectory.
func (p *Planner) Clear() {
	p.mu.Lock()
	p.waypoints = nil
	p.mu.Unlock()
}

// Len returns the number of recorded waypoints.
func (p *Planner) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waypoints)
}

// First returns the earliest waypoint.
func (p *Planner) First() (Waypoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.waypoints) == 0 {
		return Waypoint{}, false
	}
	return p.waypoints[0], true
}

// Last returns the most recent waypoint.
func (p *Planner) Last() (Waypoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.waypoints) == 0 {
		return Waypoint{}, false
	}
	return p.waypoints[len(p.waypoints)-1], true
}

// Trajectory returns a copy of the active trajectory.
func (p *Planner) Trajectory() Trajectory {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append(Trajectory(nil), p.waypoints...)
}

// Interpolate samples the active trajectory.
func (p *Planner) Interpolate(rate float64) (Sequence, error) {
	return Interpolate(p.Trajectory(), rate)
}

// Interpolate samples every segment of tr at rate points per unit time and concatenates the
// results. Segment (i-1, i) takes its boundary speeds from waypoint i.
func Interpolate(tr Trajectory, rate float64) (Sequence, error) {
	if !(rate > 0) || math.IsInf(rate, 1) {
		return Sequence{}, errors.Wrapf(ErrSampleRate, "got %v", rate)
	}
	if len(tr) < 2 {
		return Sequence{}, errors.Wrapf(ErrTooFewWaypoints, "got %d", len(tr))
	}
	if err := tr.Validate(); err != nil {
		return Sequence{}, err
	}

	var seq Sequence
	for i := 1; i < len(tr); i++ {
		from, to := tr[i-1], tr[i]
		duration := to.Time - from.Time

		// Solved on the segment's local clock, which keeps the boundary matrix well
		// conditioned for late segments. The polynomial is the same one shifted by ti.
		solver, err := newSegmentSolver(0, duration)
		if err != nil {
			return Sequence{}, errors.Wrapf(err, "segment %d", i)
		}

		n := int(math.Round(duration * rate))
		if n < 1 {
			n = 1
		}
		local := linspace(0, duration, n)

		vi, vf := to.InitialSpeed, to.FinalSpeed
		var joints [kinematics.NumJoints]cubic
		for j := range joints {
			joints[j] = solver.solve(from.Joints[j], vi, to.Joints[j], vf)
		}
		claw := solver.solve(from.Claw, vi, to.Claw, vf)

		for _, tau := range local {
			seq.Times = append(seq.Times, from.Time+tau)
			for j, c := range joints {
				seq.Joints[j] = append(seq.Joints[j], c.at(tau))
			}
			seq.Claw = append(seq.Claw, claw.at(tau))
		}
	}
	return seq, nil
}

// PointToPoint plans a single move from start to target over duration with zero speed at
// both ends.
func PointToPoint(
	start kinematics.JointAngles, startClaw float64,
	target kinematics.JointAngles, targetClaw float64,
	duration, rate float64,
) (Sequence, error) {
	return Interpolate(Trajectory{
		{Joints: start, Claw: startClaw, Time: 0},
		{Joints: target, Claw: targetClaw, Time: duration},
	}, rate)
}
