package trajectory

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// cubic holds the coefficients a0..a3 of q(t) = a0 + a1*t + a2*t^2 + a3*t^3.
type cubic [4]float64

func (c cubic) at(t float64) float64 {
	return c[0] + t*(c[1]+t*(c[2]+t*c[3]))
}

func (c cubic) velocity(t float64) float64 {
	return c[1] + t*(2*c[2]+t*3*c[3])
}

// boundaryMatrix maps polynomial coefficients to [q(ti), q'(ti), q(tf), q'(tf)].
func boundaryMatrix(ti, tf float64) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, ti, ti * ti, ti * ti * ti,
		0, 1, 2 * ti, 3 * ti * ti,
		1, tf, tf * tf, tf * tf * tf,
		0, 1, 2 * tf, 3 * tf * tf,
	})
}

// segmentSolver inverts the boundary matrix of one segment once and reuses it for every
// joint and the claw.
type segmentSolver struct {
	inv mat.Dense
}

func newSegmentSolver(ti, tf float64) (*segmentSolver, error) {
	if !(tf > ti) {
		return nil, errors.Wrapf(ErrDegenerateSegment, "segment [%v, %v]", ti, tf)
	}
	s := &segmentSolver{}
	if err := s.inv.Inverse(boundaryMatrix(ti, tf)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, errors.Wrapf(ErrDegenerateSegment, "segment [%v, %v]: %v", ti, tf, err)
		}
	}
	return s, nil
}

func (s *segmentSolver) solve(qi, vi, qf, vf float64) cubic {
	var coef mat.VecDense
	coef.MulVec(&s.inv, mat.NewVecDense(4, []float64{qi, vi, qf, vf}))
	return cubic{coef.AtVec(0), coef.AtVec(1), coef.AtVec(2), coef.AtVec(3)}
}

// linspace returns n evenly spaced points over [start, stop], both ends included.
func linspace(start, stop float64, n int) []float64 {
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
