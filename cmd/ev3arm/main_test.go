package main

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.viam.com/test"
)

func TestParseWaypoint(t *testing.T) {
	w, err := parseWaypoint("150, 0, 200, 1.5")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w.Target, test.ShouldResemble, r3.Vector{X: 150, Y: 0, Z: 200})
	test.That(t, w.Time, test.ShouldEqual, 1.5)
	test.That(t, w.Claw, test.ShouldEqual, 0.0)

	w, err = parseWaypoint("150,0,200,2,90")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w.Claw, test.ShouldAlmostEqual, math.Pi/2, 1e-12)

	w, err = parseWaypoint("150,0,200,2,0,0.1,-0.2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w.InitialSpeed, test.ShouldEqual, 0.1)
	test.That(t, w.FinalSpeed, test.ShouldEqual, -0.2)

	for _, bad := range []string{"", "1,2,3", "1,2,3,4,5,6", "1,2,x,4"} {
		_, err := parseWaypoint(bad)
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestCandidatePorts(t *testing.T) {
	ports := []string{"/dev/ttyUSB0", "/dev/cu.Bluetooth-Incoming-Port", "/dev/ttyACM0"}
	test.That(t, candidatePorts(ports), test.ShouldResemble, []string{"/dev/ttyUSB0", "/dev/ttyACM0"})
}

func TestIsEV3Arm(t *testing.T) {
	found := func(ids ...int) []feetech.FoundServo {
		servos := make([]feetech.FoundServo, 0, len(ids))
		for _, id := range ids {
			servos = append(servos, feetech.FoundServo{ID: id})
		}
		return servos
	}
	test.That(t, isEV3Arm(found(1, 2, 3, 4)), test.ShouldBeTrue)
	test.That(t, isEV3Arm(found(4, 3, 2, 1)), test.ShouldBeTrue)
	test.That(t, isEV3Arm(found(1, 2, 3)), test.ShouldBeFalse)
	test.That(t, isEV3Arm(found(1, 2, 3, 5)), test.ShouldBeFalse)
	test.That(t, isEV3Arm(found(1, 2, 3, 4, 5)), test.ShouldBeFalse)
}
