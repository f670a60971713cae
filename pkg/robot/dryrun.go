package robot

import (
	"context"
	"sync"

	"github.com/edaniels/golog"

	"github.com/gwillem/ev3arm/pkg/link"
)

// DryRun is a driver without hardware. It applies the same deadband as Arm and logs the
// targets it would write.
type DryRun struct {
	logger golog.Logger

	mu     sync.Mutex
	filter *targetFilter
	moves  int
}

// NewDryRun returns a driver that only logs.
func NewDryRun(logger golog.Logger, deadband float64) *DryRun {
	return &DryRun{logger: logger, filter: newTargetFilter(deadband)}
}

// Move implements link.Driver.
func (d *DryRun) Move(_ context.Context, f link.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	targets := d.filter.changed(f)
	if len(targets) == 0 {
		return nil
	}
	d.filter.commit(targets)
	d.moves++

	fields := make([]any, 0, 2*len(targets))
	for _, name := range AllMotors() {
		if deg, ok := targets[name]; ok {
			fields = append(fields, string(name), deg)
		}
	}
	d.logger.Debugw("move", fields...)
	return nil
}

// Moves returns how many frames resulted in at least one motor write.
func (d *DryRun) Moves() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.moves
}
