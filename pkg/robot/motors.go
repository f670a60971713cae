// Package robot drives the arm's motors on the actuator node and holds the JSON configuration
// shared by the node and the controller.
package robot

// MotorName identifies a motor in the arm.
type MotorName string

// Motor names in wire frame order.
const (
	Base     MotorName = "base"
	Shoulder MotorName = "shoulder"
	Elbow    MotorName = "elbow"
	Claw     MotorName = "claw"
)

// AllMotors returns all motor names in frame order (matching servo IDs 1-4).
func AllMotors() []MotorName {
	return []MotorName{
		Base,
		Shoulder,
		Elbow,
		Claw,
	}
}
