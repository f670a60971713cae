package motion

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/gwillem/ev3arm/pkg/kinematics"
	"github.com/gwillem/ev3arm/pkg/link"
	"github.com/gwillem/ev3arm/pkg/trajectory"
)

// stepClock is a mock clock whose Sleep advances time instead of waiting for it.
type stepClock struct {
	*clock.Mock
}

func (c stepClock) Sleep(d time.Duration) {
	c.Add(d)
}

func newStepClock() stepClock {
	return stepClock{clock.NewMock()}
}

type sentFrame struct {
	frame link.Frame
	at    time.Time
}

type recordingSender struct {
	clock clock.Clock

	mu     sync.Mutex
	frames []sentFrame

	// failEvery makes every n-th send fail.
	failEvery int
	// started is closed on the first send, which then waits for release.
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *recordingSender) Send(_ context.Context, f link.Frame) error {
	if s.started != nil {
		first := false
		s.once.Do(func() {
			first = true
			close(s.started)
		})
		if first {
			<-s.release
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, sentFrame{frame: f, at: s.clock.Now()})
	if s.failEvery > 0 && len(s.frames)%s.failEvery == 0 {
		return errors.Wrap(link.ErrLink, "broken pipe")
	}
	return nil
}

func (s *recordingSender) sent() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentFrame(nil), s.frames...)
}

func TestRunEndToEnd(t *testing.T) {
	model := newTestModel(t)
	state := NewState(model)
	clk := newStepClock()
	sender := &recordingSender{clock: clk}
	d := NewDispatcher(state, sender, golog.NewTestLogger(t), WithClock(clk))

	target := r3.Vector{X: 150, Y: 0, Z: 200}
	q, err := model.Inverse(target, state.JointAngles())
	test.That(t, err, test.ShouldBeNil)

	seq, err := trajectory.PointToPoint(state.JointAngles(), state.Claw(), q, state.Claw(), 3, 10)
	test.That(t, err, test.ShouldBeNil)

	start := clk.Now()
	report, err := d.Run(context.Background(), seq)
	test.That(t, err, test.ShouldBeNil)

	sent := sender.sent()
	test.That(t, sent, test.ShouldHaveLength, 30)
	for k, s := range sent {
		rel := s.at.Sub(start)
		test.That(t, rel.Seconds(), test.ShouldAlmostEqual, seq.Times[k], 1e-6)
		if k > 0 {
			test.That(t, s.at.After(sent[k-1].at), test.ShouldBeTrue)
		}
	}

	final := state.JointAngles()
	for j := range q {
		test.That(t, final[j], test.ShouldAlmostEqual, q[j], 1e-9)
	}
	test.That(t, state.IsMoving(), test.ShouldBeFalse)
	test.That(t, d.Busy(), test.ShouldBeFalse)
	test.That(t, state.CartesianPosition().Distance(target), test.ShouldBeLessThanOrEqualTo, 2*model.Tolerance())

	deg := q.Degrees()
	last := sent[len(sent)-1].frame
	for j := range deg {
		test.That(t, last[j], test.ShouldAlmostEqual, deg[j], 1e-6)
	}

	test.That(t, report.Samples, test.ShouldEqual, 30)
	test.That(t, report.SendFailures, test.ShouldEqual, 0)
	test.That(t, report.Elapsed.Seconds(), test.ShouldAlmostEqual, 3, 1e-6)
	test.That(t, report.MaxLateness, test.ShouldBeLessThan, time.Millisecond)
}

func TestRunContinuesAfterSendFailures(t *testing.T) {
	state := NewState(newTestModel(t))
	clk := newStepClock()
	sender := &recordingSender{clock: clk, failEvery: 2}
	d := NewDispatcher(state, sender, golog.NewTestLogger(t), WithClock(clk))

	target := kinematics.JointAngles{0.3, -0.2, 0.1}
	seq, err := trajectory.PointToPoint(kinematics.JointAngles{}, 0, target, 0.5, 1, 10)
	test.That(t, err, test.ShouldBeNil)

	report, err := d.Run(context.Background(), seq)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sender.sent(), test.ShouldHaveLength, 10)
	test.That(t, report.SendFailures, test.ShouldEqual, 5)

	// State follows the plan even when the link drops frames.
	final := state.JointAngles()
	for j := range target {
		test.That(t, final[j], test.ShouldAlmostEqual, target[j], 1e-9)
	}
	test.That(t, state.Claw(), test.ShouldAlmostEqual, 0.5, 1e-9)
}

func TestRunEmptySequence(t *testing.T) {
	state := NewState(newTestModel(t))
	sender := &recordingSender{clock: clock.New()}
	d := NewDispatcher(state, sender, golog.NewTestLogger(t))

	_, err := d.Run(context.Background(), trajectory.Sequence{})
	test.That(t, err, test.ShouldEqual, ErrEmptySequence)
	test.That(t, sender.sent(), test.ShouldBeEmpty)
	test.That(t, state.IsMoving(), test.ShouldBeFalse)
	test.That(t, d.Busy(), test.ShouldBeFalse)
}

func constantClawSequence(t *testing.T, target kinematics.JointAngles, clawDeg float64) trajectory.Sequence {
	t.Helper()
	claw := clawDeg * math.Pi / 180
	seq, err := trajectory.PointToPoint(kinematics.JointAngles{}, claw, target, claw, 0.5, 10)
	test.That(t, err, test.ShouldBeNil)
	return seq
}

func TestRunIsSingleFlight(t *testing.T) {
	state := NewState(newTestModel(t))
	clk := newStepClock()
	sender := &recordingSender{
		clock:   clk,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	d := NewDispatcher(state, sender, golog.NewTestLogger(t), WithClock(clk))

	seqA := constantClawSequence(t, kinematics.JointAngles{0.4, 0, 0}, 10)
	seqB := constantClawSequence(t, kinematics.JointAngles{-0.4, 0, 0}, 20)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := d.Run(context.Background(), seqA)
		test.That(t, err, test.ShouldBeNil)
	}()
	<-sender.started

	// Motion A is parked inside its first send.
	test.That(t, d.Busy(), test.ShouldBeTrue)
	test.That(t, state.IsMoving(), test.ShouldBeTrue)
	test.That(t, state.Set(kinematics.JointAngles{1, 1, 1}, 0), test.ShouldEqual, ErrMoving)

	go func() {
		defer wg.Done()
		_, err := d.Run(context.Background(), seqB)
		test.That(t, err, test.ShouldBeNil)
	}()

	// A canceled caller gives up waiting without disturbing either motion.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Run(ctx, seqB)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)

	time.Sleep(50 * time.Millisecond)
	close(sender.release)
	wg.Wait()

	sent := sender.sent()
	test.That(t, sent, test.ShouldHaveLength, seqA.Len()+seqB.Len())
	for i, s := range sent {
		fromA := s.frame[3] < 15
		test.That(t, fromA, test.ShouldEqual, i < seqA.Len())
	}

	final := state.JointAngles()
	test.That(t, final[0], test.ShouldAlmostEqual, -0.4, 1e-9)
	test.That(t, state.IsMoving(), test.ShouldBeFalse)
}

func TestReadersSeeConsistentSnapshots(t *testing.T) {
	model := newTestModel(t)
	state := NewState(model)
	sender := &recordingSender{clock: clock.New()}
	d := NewDispatcher(state, sender, golog.NewTestLogger(t))

	seq, err := trajectory.PointToPoint(kinematics.JointAngles{}, 0, kinematics.JointAngles{0.5, -0.5, 0.5}, 0, 0.2, 50)
	test.That(t, err, test.ShouldBeNil)

	done := make(chan struct{})
	var readerErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			snap := state.Snapshot()
			if snap.Position != model.EndEffector(snap.Joints) {
				readerErr = errors.Errorf("position %v does not match joints %v", snap.Position, snap.Joints)
				return
			}
		}
	}()

	_, err = d.Run(context.Background(), seq)
	close(done)
	wg.Wait()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readerErr, test.ShouldBeNil)
}

func TestRunPlanHoldsStateWhilePlanning(t *testing.T) {
	state := NewState(newTestModel(t))
	clk := newStepClock()
	sender := &recordingSender{clock: clk}
	d := NewDispatcher(state, sender, golog.NewTestLogger(t), WithClock(clk))

	target := kinematics.JointAngles{0.3, 0, 0}
	var setErr error
	_, err := d.RunPlan(context.Background(), func(start Snapshot) (trajectory.Sequence, error) {
		test.That(t, start.Moving, test.ShouldBeTrue)
		setErr = state.Set(kinematics.JointAngles{1, 1, 1}, 0)
		return trajectory.PointToPoint(start.Joints, start.Claw, target, start.Claw, 1, 10)
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, setErr, test.ShouldEqual, ErrMoving)
	test.That(t, state.JointAngles()[0], test.ShouldAlmostEqual, 0.3, 1e-9)
	test.That(t, state.IsMoving(), test.ShouldBeFalse)

	// A failing plan lowers the flag again and leaves the pose alone.
	planErr := errors.New("no plan")
	_, err = d.RunPlan(context.Background(), func(Snapshot) (trajectory.Sequence, error) {
		return trajectory.Sequence{}, planErr
	})
	test.That(t, err, test.ShouldEqual, planErr)
	test.That(t, state.IsMoving(), test.ShouldBeFalse)
	test.That(t, d.Busy(), test.ShouldBeFalse)
	test.That(t, state.Set(kinematics.JointAngles{}, 0), test.ShouldBeNil)
}

func TestRunRejectsMalformedSequence(t *testing.T) {
	state := NewState(newTestModel(t))
	clk := newStepClock()
	sender := &recordingSender{clock: clk}
	d := NewDispatcher(state, sender, golog.NewTestLogger(t), WithClock(clk))

	seq, err := trajectory.PointToPoint(kinematics.JointAngles{}, 0, kinematics.JointAngles{0.3, 0, 0}, 0, 1, 10)
	test.That(t, err, test.ShouldBeNil)
	seq.Claw = seq.Claw[:3]

	_, err = d.Run(context.Background(), seq)
	test.That(t, errors.Is(err, trajectory.ErrMalformedSequence), test.ShouldBeTrue)
	test.That(t, sender.sent(), test.ShouldBeEmpty)
	test.That(t, state.IsMoving(), test.ShouldBeFalse)
	test.That(t, d.Busy(), test.ShouldBeFalse)
	test.That(t, state.JointAngles(), test.ShouldResemble, kinematics.JointAngles{})
}
