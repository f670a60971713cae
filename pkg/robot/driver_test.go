package robot

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/gwillem/ev3arm/pkg/link"
)

func TestTargetFilterDeadband(t *testing.T) {
	f := newTargetFilter(DefaultDeadband)

	// Everything is new on the first frame.
	first := f.changed(link.Frame{10, 20, 30, 40})
	test.That(t, first, test.ShouldHaveLength, 4)
	f.commit(first)

	got := f.changed(link.Frame{10.4, 20.6, 30, 39.2})
	test.That(t, got, test.ShouldResemble, map[MotorName]float64{Shoulder: 20.6, Claw: 39.2})
	f.commit(got)

	// Small steps accumulate against the last written target, not the last frame.
	test.That(t, f.changed(link.Frame{10.3, 20.6, 30, 39.2}), test.ShouldBeEmpty)
	test.That(t, f.changed(link.Frame{10.6, 20.6, 30, 39.2}), test.ShouldResemble, map[MotorName]float64{Base: 10.6})
}

func TestTargetFilterZeroDeadband(t *testing.T) {
	f := newTargetFilter(0)
	f.commit(f.changed(link.Frame{1, 2, 3, 4}))
	test.That(t, f.changed(link.Frame{1, 2, 3, 4}), test.ShouldBeEmpty)
	test.That(t, f.changed(link.Frame{1, 2, 3, 4.001}), test.ShouldHaveLength, 1)
}

func TestDryRunCountsWrites(t *testing.T) {
	d := NewDryRun(golog.NewTestLogger(t), DefaultDeadband)
	ctx := context.Background()

	var driver link.Driver = d
	test.That(t, driver.Move(ctx, link.Frame{0, 0, 0, 0}), test.ShouldBeNil)
	test.That(t, driver.Move(ctx, link.Frame{0.1, 0, 0, 0}), test.ShouldBeNil)
	test.That(t, driver.Move(ctx, link.Frame{5, 0, 0, 0}), test.ShouldBeNil)
	test.That(t, d.Moves(), test.ShouldEqual, 2)
}
