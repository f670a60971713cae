package robot

import (
	"math"
)

// TicksPerRevolution is the resolution of the STS servo position encoder.
const TicksPerRevolution = 4096

// MotorCalibration maps joint degrees to raw servo positions for a single motor.
type MotorCalibration struct {
	ID int `json:"id"`
	// Reduction is motor turns per joint turn.
	Reduction float64 `json:"reduction"`
	// Inverted motors turn opposite to the joint's positive direction.
	Inverted     bool `json:"inverted"`
	HomingOffset int  `json:"homing_offset"`
	RangeMin     int  `json:"range_min"`
	RangeMax     int  `json:"range_max"`
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// DefaultCalibration returns a direct-drive calibration with servo IDs 1-4 homed at mid
// travel. Shoulder and elbow are mounted mirrored.
func DefaultCalibration() Calibration {
	cal := make(Calibration, len(AllMotors()))
	for i, name := range AllMotors() {
		cal[name] = MotorCalibration{
			ID:           i + 1,
			Reduction:    1,
			Inverted:     name == Shoulder || name == Elbow,
			HomingOffset: TicksPerRevolution / 2,
			RangeMin:     0,
			RangeMax:     TicksPerRevolution - 1,
		}
	}
	return cal
}

func (c MotorCalibration) reduction() float64 {
	if c.Reduction == 0 {
		return 1
	}
	return c.Reduction
}

// ToRaw converts a joint angle in degrees to a raw servo position, clamped to the calibrated
// range.
func (c MotorCalibration) ToRaw(deg float64) int {
	motor := deg * c.reduction()
	if c.Inverted {
		motor = -motor
	}
	raw := c.HomingOffset + int(math.Round(motor/360*TicksPerRevolution))
	if c.RangeMax > c.RangeMin {
		raw = max(c.RangeMin, min(c.RangeMax, raw))
	}
	return raw
}

// ToDegrees converts a raw servo position to a joint angle in degrees.
func (c MotorCalibration) ToDegrees(raw int) float64 {
	motor := float64(raw-c.HomingOffset) * 360 / TicksPerRevolution
	if c.Inverted {
		motor = -motor
	}
	return motor / c.reduction()
}

// MotorIDs returns the servo IDs for all motors in the calibration.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllMotors() to ensure consistent ordering
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}
