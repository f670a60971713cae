package kinematics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestInverseRoundTrip(t *testing.T) {
	m := newTestModel(t)
	rnd := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		q := JointAngles{
			rnd.Float64()*2 - 1,
			rnd.Float64() - 0.8,
			rnd.Float64()*2 - 1.5,
		}
		target := m.EndEffector(q)

		got, err := m.Inverse(target, q)
		test.That(t, err, test.ShouldBeNil)
		for j := range q {
			test.That(t, got[j], test.ShouldAlmostEqual, q[j], 1e-6)
		}
	}
}

func TestInverseFromNearbySeed(t *testing.T) {
	m := newTestModel(t)

	for _, q := range []JointAngles{
		{0.2, -0.4, -0.6},
		{-0.8, -0.2, 0.3},
		{1.0, -0.6, -1.0},
	} {
		target := m.EndEffector(q)
		seed := JointAngles{q[0] + 0.1, q[1] - 0.1, q[2] + 0.1}

		got, err := m.Inverse(target, seed)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, m.EndEffector(got).Distance(target), test.ShouldBeLessThanOrEqualTo, m.Tolerance())
		// The warm start keeps the solver on the same elbow branch.
		for j := range q {
			test.That(t, got[j], test.ShouldAlmostEqual, q[j], 1e-2)
		}
	}
}

func TestInverseFromHome(t *testing.T) {
	m := newTestModel(t)
	target := r3.Vector{X: 150, Y: 0, Z: 200}

	got, err := m.Inverse(target, JointAngles{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.EndEffector(got).Distance(target), test.ShouldBeLessThanOrEqualTo, m.Tolerance())
	test.That(t, got[0], test.ShouldAlmostEqual, 0, 1e-4)
}

func TestInverseBoundaryRadii(t *testing.T) {
	// Convergence is slow at the workspace boundary, so accept a coarser residual.
	m, err := NewModel(DefaultLinks(), WithTolerance(1e-2), WithMaxIterations(2000))
	test.That(t, err, test.ShouldBeNil)
	links := m.Links()
	upperBend, elbowBend := links[1].ThetaOffset, links[2].ThetaOffset

	// Fully stretched: upper arm and forearm aligned and horizontal.
	stretched := JointAngles{0, -upperBend, -elbowBend}
	// Fully folded: forearm pointing back along the upper arm.
	folded := JointAngles{0, -upperBend + 0.5, math.Pi - elbowBend}

	_, maxReach := m.Reach()
	test.That(t, m.EndEffector(stretched).X, test.ShouldAlmostEqual, maxReach, 1e-9)

	for _, q := range []JointAngles{stretched, folded} {
		test.That(t, q.Validate(), test.ShouldBeNil)
		target := m.EndEffector(q)
		seed := JointAngles{q[0] + 0.02, q[1] + 0.02, q[2] - 0.02}

		got, err := m.Inverse(target, seed)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, m.EndEffector(got).Distance(target), test.ShouldBeLessThanOrEqualTo, m.Tolerance())
	}
}

func TestInverseUnreachable(t *testing.T) {
	m := newTestModel(t)
	_, maxReach := m.Reach()
	seed := JointAngles{0.1, 0.2, 0.3}

	for _, target := range []r3.Vector{
		{X: maxReach + 50, Y: 0, Z: 165},
		{X: 0, Y: 0, Z: 1000},
		{X: math.NaN(), Y: 0, Z: 0},
		{X: 0, Y: math.Inf(1), Z: 0},
	} {
		got, err := m.Inverse(target, seed)
		test.That(t, errors.Is(err, ErrUnreachable), test.ShouldBeTrue)
		test.That(t, got, test.ShouldResemble, seed)
	}
}

func TestInverseRejectsBadSeed(t *testing.T) {
	m := newTestModel(t)
	_, err := m.Inverse(r3.Vector{X: 150, Z: 200}, JointAngles{math.NaN(), 0, 0})
	test.That(t, errors.Is(err, ErrUnreachable), test.ShouldBeTrue)
}
