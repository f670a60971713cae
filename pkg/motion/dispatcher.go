package motion

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/gwillem/ev3arm/pkg/link"
	"github.com/gwillem/ev3arm/pkg/trajectory"
)

// Sender delivers a frame to the actuator node. link.Client implements it.
type Sender interface {
	Send(ctx context.Context, f link.Frame) error
}

// Report summarizes one executed motion.
type Report struct {
	ID           uuid.UUID
	Samples      int
	SendFailures int
	Elapsed      time.Duration
	MeanLateness time.Duration
	MaxLateness  time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the wall clock used for pacing.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// Dispatcher runs sampled trajectories against the link with at most one motion in flight.
//
// A motion is paced against the time it started: sample k is sent once t_k - t_0 has elapsed.
// Each sample is sent, then its state update is handed to a writer goroutine that applies
// updates in order. The moving flag is raised on admission, before planning, and lowered
// only after the writer has applied the last sample. Once running, a motion always completes.
type Dispatcher struct {
	state  *State
	sender Sender
	logger golog.Logger
	clock  clock.Clock

	// gate holds a token while a motion runs. Waiting callers block on the send and are
	// admitted in arrival order.
	gate chan struct{}
}

// NewDispatcher returns an idle dispatcher writing to state and sending through sender.
func NewDispatcher(state *State, sender Sender, logger golog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:  state,
		sender: sender,
		logger: logger,
		clock:  clock.New(),
		gate:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the joint state the dispatcher writes to.
func (d *Dispatcher) State() *State {
	return d.state
}

// Busy reports whether a motion is running.
func (d *Dispatcher) Busy() bool {
	return len(d.gate) > 0
}

// PlanFunc builds a sequence from the pose a motion will start at.
type PlanFunc func(start Snapshot) (trajectory.Sequence, error)

// Run executes seq and blocks until it completes. If another motion is running, Run waits for
// it first; ctx only bounds that wait. Send failures are logged and counted, they never stop
// the motion.
func (d *Dispatcher) Run(ctx context.Context, seq trajectory.Sequence) (Report, error) {
	if seq.Len() == 0 {
		return Report{}, ErrEmptySequence
	}
	return d.RunPlan(ctx, func(Snapshot) (trajectory.Sequence, error) {
		return seq, nil
	})
}

// RunPlan is Run for a sequence that depends on the start pose. plan is called once the
// motion is admitted, with the state left by the previous motion; State.Set is refused from
// then on. A plan error or a malformed sequence releases the dispatcher without touching
// the joint state.
func (d *Dispatcher) RunPlan(ctx context.Context, plan PlanFunc) (Report, error) {
	select {
	case d.gate <- struct{}{}:
	case <-ctx.Done():
		return Report{}, errors.Wrap(ctx.Err(), "waiting for the previous motion")
	}
	defer func() { <-d.gate }()

	// Moving is raised before planning so the start pose cannot change under the plan.
	d.state.setMoving(true)
	seq, err := plan(d.state.Snapshot())
	if err == nil {
		err = checkSequence(seq)
	}
	if err != nil {
		d.state.setMoving(false)
		return Report{}, err
	}
	return d.execute(context.WithoutCancel(ctx), seq), nil
}

func checkSequence(seq trajectory.Sequence) error {
	if seq.Len() == 0 {
		return ErrEmptySequence
	}
	return seq.Validate()
}

func (d *Dispatcher) execute(ctx context.Context, seq trajectory.Sequence) Report {
	report := Report{ID: uuid.New(), Samples: seq.Len()}
	logger := d.logger.With("motion", report.ID.String())
	logger.Debugw("motion started", "samples", seq.Len(), "duration", seq.Duration())

	updates := make(chan Command, seq.Len())
	written := make(chan struct{})
	go func() {
		defer close(written)
		for c := range updates {
			d.state.store(c)
		}
	}()

	lateness := make(stats.Float64Data, 0, seq.Len())
	start := d.clock.Now()
	t0 := seq.Times[0]
	for k := 0; k < seq.Len(); k++ {
		at, joints, claw := seq.At(k)
		due := time.Duration((at - t0) * float64(time.Second))
		if wait := due - d.clock.Since(start); wait > 0 {
			d.clock.Sleep(wait)
		}
		lateness = append(lateness, float64(d.clock.Since(start)-due))

		cmd := Command{Joints: joints, Claw: claw}
		if err := d.sender.Send(ctx, cmd.Frame()); err != nil {
			report.SendFailures++
			logger.Warnw("send failed", "sample", k, "error", err)
		}
		updates <- cmd
	}
	close(updates)
	<-written
	d.state.setMoving(false)

	report.Elapsed = d.clock.Since(start)
	if mean, err := stats.Mean(lateness); err == nil {
		report.MeanLateness = time.Duration(mean)
	}
	if maxLate, err := stats.Max(lateness); err == nil {
		report.MaxLateness = time.Duration(maxLate)
	}
	logger.Infow("motion complete",
		"samples", report.Samples,
		"elapsed", report.Elapsed,
		"send_failures", report.SendFailures,
		"mean_lateness", report.MeanLateness,
		"max_lateness", report.MaxLateness,
	)
	return report
}
