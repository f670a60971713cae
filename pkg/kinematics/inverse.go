package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Inverse finds joint angles placing the end effector at target. The solver is a least-squares
// minimization of the squared positional error started from seed, so it returns the solution
// nearest to the current configuration and never switches branch on its own.
//
// On failure the returned angles are the seed and the error wraps ErrUnreachable. Callers must
// not apply anything in that case.
func (m *Model) Inverse(target r3.Vector, seed JointAngles) (JointAngles, error) {
	if !finite(target) {
		return seed, errors.Wrapf(ErrUnreachable, "non-finite target %v", target)
	}
	if err := seed.Validate(); err != nil {
		return seed, errors.Wrapf(ErrUnreachable, "bad seed: %v", err)
	}

	objective := func(x []float64) float64 {
		var q JointAngles
		copy(q[:], x)
		return m.EndEffector(q).Sub(target).Norm2()
	}
	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, objective, x, &fd.Settings{Formula: fd.Central})
		},
	}

	best := append([]float64(nil), seed[:]...)
	bestErr := objective(best)
	for _, method := range []optimize.Method{&optimize.BFGS{}, &optimize.NelderMead{}} {
		if bestErr <= m.tolerance*m.tolerance {
			break
		}
		settings := &optimize.Settings{
			MajorIterations: m.maxIterations,
			FuncEvaluations: 20 * m.maxIterations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-14,
				Iterations: 20,
			},
		}
		// Stalled line searches still report the best location reached, so the error is
		// only informative here.
		result, _ := optimize.Minimize(problem, best, settings, method)
		if result == nil {
			continue
		}
		if result.F < bestErr {
			best = append(best[:0], result.X...)
			bestErr = result.F
		}
	}

	var q JointAngles
	copy(q[:], best)
	residual := math.Sqrt(bestErr)
	if residual > m.tolerance {
		return seed, errors.Wrapf(ErrUnreachable, "target %v: residual %.4g exceeds tolerance %.4g", target, residual, m.tolerance)
	}
	if err := q.Validate(); err != nil {
		return seed, errors.Wrapf(ErrUnreachable, "target %v: %v", target, err)
	}
	return q, nil
}

func finite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
