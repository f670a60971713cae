package robot

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gwillem/ev3arm/pkg/link"
)

const (
	// DefaultBaudRate is the STS bus speed.
	DefaultBaudRate = 1_000_000
	// DefaultDeadband is the smallest joint change, in degrees, that is sent to a motor.
	DefaultDeadband = 0.5

	busTimeout = 100 * time.Millisecond
)

// targetFilter drops per-motor targets that moved less than the deadband since the last
// target written to that motor.
type targetFilter struct {
	deadband float64
	last     map[MotorName]float64
}

func newTargetFilter(deadband float64) *targetFilter {
	return &targetFilter{deadband: deadband, last: make(map[MotorName]float64)}
}

// changed returns the frame's targets that differ from the last written ones by more than
// the deadband. Motors never written always count as changed.
func (t *targetFilter) changed(f link.Frame) map[MotorName]float64 {
	out := make(map[MotorName]float64, len(f))
	for i, name := range AllMotors() {
		prev, ok := t.last[name]
		if ok && math.Abs(f[i]-prev) <= t.deadband {
			continue
		}
		out[name] = f[i]
	}
	return out
}

func (t *targetFilter) commit(targets map[MotorName]float64) {
	for name, deg := range targets {
		t.last[name] = deg
	}
}

// Arm represents the EV3 arm driven by STS servos on one bus.
type Arm struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration

	mu     sync.Mutex
	filter *targetFilter
}

// NewArm creates and initializes an arm connection.
func NewArm(cfg NodeConfig) (*Arm, error) {
	cal := cfg.Calibration
	if len(cal) == 0 {
		cal = DefaultCalibration()
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	// Open serial bus
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  busTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open bus %s", cfg.Port)
	}

	// Create servo group from calibration IDs
	group := feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...)

	return &Arm{
		bus:         bus,
		group:       group,
		calibration: cal,
		filter:      newTargetFilter(cfg.Deadband),
	}, nil
}

// Close releases torque and closes the bus.
func (a *Arm) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return multierr.Combine(
		errors.Wrap(a.group.DisableAll(ctx), "disable torque"),
		errors.Wrap(a.bus.Close(), "close bus"),
	)
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (a *Arm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// ReadDegrees reads current joint angles in degrees from all motors.
func (a *Arm) ReadDegrees(ctx context.Context) (map[MotorName]float64, error) {
	// Read raw positions using sync read
	rawPositions, err := a.group.Positions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read positions")
	}

	positions := make(map[MotorName]float64, len(rawPositions))
	for id, raw := range rawPositions {
		name, cal, ok := a.calibration.ByID(id)
		if !ok {
			continue
		}
		positions[name] = cal.ToDegrees(raw)
	}

	return positions, nil
}

// Move implements link.Driver. Only motors whose target moved beyond the deadband are
// written; the servos run to the new targets on their own.
func (a *Arm) Move(ctx context.Context, f link.Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	targets := a.filter.changed(f)
	if len(targets) == 0 {
		return nil
	}
	rawPositions := make(feetech.PositionMap, len(targets))
	for name, deg := range targets {
		cal, ok := a.calibration[name]
		if !ok {
			continue
		}
		rawPositions[cal.ID] = cal.ToRaw(deg)
	}

	// Write using sync write
	if err := a.group.SetPositions(ctx, rawPositions); err != nil {
		return errors.Wrap(err, "write positions")
	}
	a.filter.commit(targets)
	return nil
}
