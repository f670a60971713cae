// Package kinematics provides the Denavit-Hartenberg model of the arm: the forward chain from
// joint angles to joint origins, and a numeric inverse for the end effector position.
package kinematics

import (
	"math"

	"github.com/pkg/errors"
)

// NumJoints is the number of revolute joints in the chain. The claw is not part of it.
const NumJoints = 3

// MaxJointAngle is the soft bound on every joint, in radians.
const MaxJointAngle = 2 * math.Pi

var (
	// ErrUnreachable is returned when the inverse solver cannot get within tolerance of a target.
	ErrUnreachable = errors.New("target unreachable")
	// ErrJointRange is returned for non-finite or out of bound joint angles.
	ErrJointRange = errors.New("joint angle out of range")
	// ErrInvalidModel is returned for a malformed DH table.
	ErrInvalidModel = errors.New("invalid kinematic model")
)

// JointAngles holds one angle per joint in radians, ordered base to tip.
type JointAngles [NumJoints]float64

// Validate checks every angle is finite and within +-MaxJointAngle.
func (q JointAngles) Validate() error {
	for i, v := range q {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrJointRange, "joint %d is %v", i+1, v)
		}
		if math.Abs(v) > MaxJointAngle {
			return errors.Wrapf(ErrJointRange, "joint %d is %.4f rad", i+1, v)
		}
	}
	return nil
}

// Degrees converts the angles to degrees.
func (q JointAngles) Degrees() [NumJoints]float64 {
	var out [NumJoints]float64
	for i, v := range q {
		out[i] = v * 180 / math.Pi
	}
	return out
}

// FromDegrees builds JointAngles from values in degrees.
func FromDegrees(deg [NumJoints]float64) JointAngles {
	var q JointAngles
	for i, v := range deg {
		q[i] = v * math.Pi / 180
	}
	return q
}
