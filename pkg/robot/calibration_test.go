package robot

import (
	"math"
	"testing"
)

func TestMotorCalibration_ToRaw(t *testing.T) {
	cal := MotorCalibration{
		Reduction:    1,
		HomingOffset: 2048,
		RangeMin:     1000,
		RangeMax:     3000,
	}

	tests := []struct {
		deg      float64
		expected int
	}{
		{0, 2048},     // home -> offset
		{45, 2560},    // eighth turn
		{-90, 1024},   // quarter turn back
		{90, 3000},    // quarter turn lands past max -> clamped
		{180, 3000},   // beyond range -> clamped to max
		{-180, 1000},  // beyond range -> clamped to min
		{0.05, 2049},  // rounds to nearest tick
		{-0.05, 2047}, // rounds to nearest tick
	}

	for _, tt := range tests {
		got := cal.ToRaw(tt.deg)
		if got != tt.expected {
			t.Errorf("ToRaw(%f) = %d, want %d", tt.deg, got, tt.expected)
		}
	}
}

func TestMotorCalibration_ToRawFullRange(t *testing.T) {
	cal := MotorCalibration{
		Reduction:    1,
		HomingOffset: 2048,
		RangeMin:     0,
		RangeMax:     4095,
	}

	tests := []struct {
		deg      float64
		expected int
	}{
		{90, 3072},  // quarter turn
		{-90, 1024}, // quarter turn back
		{180, 4095}, // half turn needs tick 4096 -> clamped to max
		{-180, 0},   // half turn back
	}

	for _, tt := range tests {
		got := cal.ToRaw(tt.deg)
		if got != tt.expected {
			t.Errorf("ToRaw(%f) = %d, want %d", tt.deg, got, tt.expected)
		}
	}
}

func TestMotorCalibration_Inverted(t *testing.T) {
	cal := MotorCalibration{
		Reduction:    2,
		Inverted:     true,
		HomingOffset: 2048,
	}

	// No range configured: no clamping.
	if got := cal.ToRaw(45); got != 1024 {
		t.Errorf("ToRaw(45) = %d, want 1024", got)
	}
	if got := cal.ToDegrees(1024); math.Abs(got-45) > 1e-9 {
		t.Errorf("ToDegrees(1024) = %f, want 45", got)
	}
}

func TestMotorCalibration_ZeroReduction(t *testing.T) {
	cal := MotorCalibration{HomingOffset: 100}
	if got := cal.ToRaw(360); got != 100+TicksPerRevolution {
		t.Errorf("ToRaw(360) = %d, want %d", got, 100+TicksPerRevolution)
	}
}

func TestMotorCalibration_RoundTrip(t *testing.T) {
	cal := MotorCalibration{
		Reduction:    25.0 / 3.0,
		Inverted:     true,
		HomingOffset: 2048,
	}

	// Test round-trip: raw -> degrees -> raw
	for raw := 0; raw < TicksPerRevolution; raw += 100 {
		deg := cal.ToDegrees(raw)
		back := cal.ToRaw(deg)
		if back != raw {
			t.Errorf("Round-trip failed: %d -> %f -> %d", raw, deg, back)
		}
	}
}

func TestDefaultCalibration(t *testing.T) {
	cal := DefaultCalibration()
	for i, name := range AllMotors() {
		mc, ok := cal[name]
		if !ok {
			t.Fatalf("missing calibration for %s", name)
		}
		if mc.ID != i+1 {
			t.Errorf("%s has ID %d, want %d", name, mc.ID, i+1)
		}
		wantInverted := name == Shoulder || name == Elbow
		if mc.Inverted != wantInverted {
			t.Errorf("%s inverted = %v, want %v", name, mc.Inverted, wantInverted)
		}
		if got := mc.ToRaw(0); got != TicksPerRevolution/2 {
			t.Errorf("%s ToRaw(0) = %d, want %d", name, got, TicksPerRevolution/2)
		}
	}
}

func TestCalibration_MotorIDs(t *testing.T) {
	cal := Calibration{
		Base:     MotorCalibration{ID: 1},
		Shoulder: MotorCalibration{ID: 2},
		Elbow:    MotorCalibration{ID: 3},
		Claw:     MotorCalibration{ID: 4},
	}

	ids := cal.MotorIDs()
	expected := []int{1, 2, 3, 4}

	if len(ids) != len(expected) {
		t.Fatalf("MotorIDs returned %d IDs, want %d", len(ids), len(expected))
	}

	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("MotorIDs()[%d] = %d, want %d", i, id, expected[i])
		}
	}
}

func TestCalibration_ByID(t *testing.T) {
	cal := Calibration{
		Base: MotorCalibration{ID: 1, RangeMin: 100, RangeMax: 200},
		Claw: MotorCalibration{ID: 4, RangeMin: 300, RangeMax: 400},
	}

	// Test finding existing ID
	name, mc, ok := cal.ByID(1)
	if !ok {
		t.Fatal("ByID(1) returned false")
	}
	if name != Base {
		t.Errorf("ByID(1) returned name %s, want base", name)
	}
	if mc.RangeMin != 100 {
		t.Errorf("ByID(1) returned wrong calibration: %+v", mc)
	}

	// Test non-existing ID
	_, _, ok = cal.ByID(99)
	if ok {
		t.Error("ByID(99) should return false")
	}
}
