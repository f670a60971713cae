// Package motion owns the controller's shared joint state and executes sampled trajectories
// against the link, one motion at a time.
package motion

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/gwillem/ev3arm/pkg/kinematics"
	"github.com/gwillem/ev3arm/pkg/link"
)

var (
	// ErrMoving is returned by State.Set while a motion is in flight.
	ErrMoving = errors.New("arm is moving")
	// ErrEmptySequence is returned when asked to run a sequence without samples.
	ErrEmptySequence = errors.New("empty sequence")
)

// Command is one sampled target: joint angles and claw, both in radians.
type Command struct {
	Joints kinematics.JointAngles
	Claw   float64
}

// Frame converts the command to the wire representation in degrees.
func (c Command) Frame() link.Frame {
	deg := c.Joints.Degrees()
	return link.Frame{deg[0], deg[1], deg[2], c.Claw * 180 / math.Pi}
}

// Snapshot is a consistent copy of the joint state.
type Snapshot struct {
	Joints    kinematics.JointAngles
	Claw      float64
	Position  r3.Vector
	Positions []r3.Vector
	Moving    bool
}

// State is where the arm currently is. Reads never block on a running motion; writes are
// serialized.
type State struct {
	model *kinematics.Model

	mu   sync.RWMutex
	snap Snapshot
}

// NewState returns a state at the home pose.
func NewState(model *kinematics.Model) *State {
	s := &State{model: model}
	s.store(Command{})
	return s
}

// Model returns the kinematic model used to derive positions.
func (s *State) Model() *kinematics.Model {
	return s.model
}

func (s *State) JointAngles() kinematics.JointAngles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Joints
}

func (s *State) CartesianPosition() r3.Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Position
}

// Positions returns every joint origin from the base to the end effector.
func (s *State) Positions() []r3.Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]r3.Vector(nil), s.snap.Positions...)
}

func (s *State) Claw() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Claw
}

func (s *State) IsMoving() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Moving
}

// Snapshot returns a copy of the whole record.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Positions = append([]r3.Vector(nil), s.snap.Positions...)
	return snap
}

// Set moves the recorded pose without commanding the arm. It fails while a motion is running.
func (s *State) Set(joints kinematics.JointAngles, claw float64) error {
	if err := joints.Validate(); err != nil {
		return err
	}
	if math.IsNaN(claw) || math.IsInf(claw, 0) {
		return errors.Wrapf(kinematics.ErrJointRange, "claw %v", claw)
	}
	positions := s.model.Forward(joints)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Moving {
		return ErrMoving
	}
	s.snap.Joints = joints
	s.snap.Claw = claw
	s.snap.Positions = positions
	s.snap.Position = positions[len(positions)-1]
	return nil
}

// store records a sample on behalf of the running motion.
func (s *State) store(c Command) {
	positions := s.model.Forward(c.Joints)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Joints = c.Joints
	s.snap.Claw = c.Claw
	s.snap.Positions = positions
	s.snap.Position = positions[len(positions)-1]
}

// setMoving flips the moving flag.
func (s *State) setMoving(moving bool) {
	s.mu.Lock()
	s.snap.Moving = moving
	s.mu.Unlock()
}
