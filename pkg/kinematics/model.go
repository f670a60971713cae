package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DHLink is one row of a Denavit-Hartenberg table. ThetaOffset is added to the joint variable.
type DHLink struct {
	A           float64 `json:"a"`
	Alpha       float64 `json:"alpha"`
	D           float64 `json:"d"`
	ThetaOffset float64 `json:"theta_offset"`
}

// Transform returns the homogeneous transform of the link for joint variable q.
func (l DHLink) Transform(q float64) *mat.Dense {
	theta := l.ThetaOffset + q
	ct, st := math.Cos(theta), math.Sin(theta)
	ca, sa := math.Cos(l.Alpha), math.Sin(l.Alpha)
	return mat.NewDense(4, 4, []float64{
		ct, -st * ca, st * sa, l.A * ct,
		st, ct * ca, -ct * sa, l.A * st,
		0, sa, ca, l.D,
		0, 0, 0, 1,
	})
}

// DefaultLinks returns the DH table of the EV3 arm, in millimeters.
// The upper arm and forearm are bent, so their lengths and angle offsets come from the
// (28, 148) and (152, 48) link vectors.
func DefaultLinks() []DHLink {
	shoulderBend := math.Atan(148.0 / 28.0)
	elbowBend := math.Atan(48.0 / 152.0)
	return []DHLink{
		{A: 0, Alpha: math.Pi / 2, D: 165, ThetaOffset: 0},
		{A: math.Hypot(148, 28), Alpha: 0, D: 0, ThetaOffset: shoulderBend},
		{A: math.Hypot(152, 48), Alpha: 0, D: 0, ThetaOffset: elbowBend - shoulderBend},
	}
}

// Model is an immutable kinematic chain plus the inverse solver settings.
type Model struct {
	links         []DHLink
	tolerance     float64
	maxIterations int
}

// Option configures a Model.
type Option func(*Model)

// WithTolerance sets the positional error accepted by Inverse, in model units.
func WithTolerance(tol float64) Option {
	return func(m *Model) {
		m.tolerance = tol
	}
}

// WithMaxIterations sets the optimizer iteration budget of Inverse.
func WithMaxIterations(n int) Option {
	return func(m *Model) {
		m.maxIterations = n
	}
}

// NewModel validates the DH table and returns a model.
func NewModel(links []DHLink, opts ...Option) (*Model, error) {
	if len(links) != NumJoints {
		return nil, errors.Wrapf(ErrInvalidModel, "need %d links, got %d", NumJoints, len(links))
	}
	for i, l := range links {
		for _, v := range []float64{l.A, l.Alpha, l.D, l.ThetaOffset} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Wrapf(ErrInvalidModel, "link %d has non-finite parameter", i+1)
			}
		}
	}
	m := &Model{
		links:         append([]DHLink(nil), links...),
		tolerance:     1e-3,
		maxIterations: 500,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tolerance <= 0 || m.maxIterations <= 0 {
		return nil, errors.Wrap(ErrInvalidModel, "tolerance and iteration budget must be positive")
	}
	return m, nil
}

// Links returns a copy of the DH table.
func (m *Model) Links() []DHLink {
	return append([]DHLink(nil), m.links...)
}

// Tolerance returns the positional error accepted by Inverse.
func (m *Model) Tolerance() float64 {
	return m.tolerance
}

// Forward returns the base-frame origin of every joint, starting with the base itself and
// ending with the end effector.
func (m *Model) Forward(q JointAngles) []r3.Vector {
	points := make([]r3.Vector, 0, len(m.links)+1)
	points = append(points, r3.Vector{})

	cum := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	for i, link := range m.links {
		var next mat.Dense
		next.Mul(cum, link.Transform(q[i]))
		cum = &next
		points = append(points, r3.Vector{X: cum.At(0, 3), Y: cum.At(1, 3), Z: cum.At(2, 3)})
	}
	return points
}

// EndEffector returns the last point of the forward chain.
func (m *Model) EndEffector(q JointAngles) r3.Vector {
	points := m.Forward(q)
	return points[len(points)-1]
}

// Reach returns the minimum and maximum distance between the shoulder and the end effector.
func (m *Model) Reach() (float64, float64) {
	upper, fore := m.links[1].A, m.links[2].A
	return math.Abs(upper - fore), upper + fore
}
