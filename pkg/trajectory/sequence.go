package trajectory

import (
	"github.com/pkg/errors"

	"github.com/gwillem/ev3arm/pkg/kinematics"
)

// Sequence is a sampled trajectory. Times are relative to the trajectory's own clock and are
// non-decreasing; consecutive segments share their boundary sample time.
type Sequence struct {
	Times  []float64
	Joints [kinematics.NumJoints][]float64
	Claw   []float64
}

// Len returns the number of samples.
func (s Sequence) Len() int {
	return len(s.Times)
}

// Validate checks every column holds one value per sample time.
func (s Sequence) Validate() error {
	n := len(s.Times)
	for j, col := range s.Joints {
		if len(col) != n {
			return errors.Wrapf(ErrMalformedSequence, "joint %d has %d samples, want %d", j+1, len(col), n)
		}
	}
	if len(s.Claw) != n {
		return errors.Wrapf(ErrMalformedSequence, "claw has %d samples, want %d", len(s.Claw), n)
	}
	return nil
}

// At returns the time, joint angles and claw value of sample i.
func (s Sequence) At(i int) (float64, kinematics.JointAngles, float64) {
	var q kinematics.JointAngles
	for j := range q {
		q[j] = s.Joints[j][i]
	}
	return s.Times[i], q, s.Claw[i]
}

// Duration is the time between the first and last sample.
func (s Sequence) Duration() float64 {
	if len(s.Times) == 0 {
		return 0
	}
	return s.Times[len(s.Times)-1] - s.Times[0]
}

// Append returns s followed by next, with next shifted in time so its first sample lands on
// the last sample time of s.
func (s Sequence) Append(next Sequence) Sequence {
	if next.Len() == 0 {
		return s
	}
	offset := 0.0
	if s.Len() > 0 {
		offset = s.Times[len(s.Times)-1] - next.Times[0]
	}

	out := Sequence{
		Times: make([]float64, 0, s.Len()+next.Len()),
		Claw:  make([]float64, 0, s.Len()+next.Len()),
	}
	out.Times = append(out.Times, s.Times...)
	for _, t := range next.Times {
		out.Times = append(out.Times, t+offset)
	}
	for j := range out.Joints {
		out.Joints[j] = append(append([]float64(nil), s.Joints[j]...), next.Joints[j]...)
	}
	out.Claw = append(append(out.Claw, s.Claw...), next.Claw...)
	return out
}
