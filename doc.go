// Package ev3arm drives a three joint arm with a claw from Cartesian targets and timed
// waypoints.
//
// A controller solves inverse kinematics, samples cubic joint trajectories and streams them
// as ASCII frames over TCP to an actuator node, which turns each frame into servo positions.
//
// # Installation
//
//	go install github.com/gwillem/ev3arm/cmd/ev3arm@latest
//
// # Usage
//
// On the machine wired to the servos, calibrate once and start the node:
//
//	ev3arm setup
//	ev3arm node
//
// From the controller, move the end effector (millimeters) or run a path:
//
//	ev3arm move 150 0 200 --claw 30 --monitor
//	ev3arm path -p 150,0,200,0 -p 150,50,200,1.5,45
//	ev3arm home
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/ev3arm: CLI with node, move, home, path and setup commands
//   - pkg/kinematics: DH forward kinematics and numerical inverse kinematics
//   - pkg/trajectory: Waypoint recording and cubic interpolation
//   - pkg/link: Frame codec, TCP client and actuator node server
//   - pkg/motion: Joint state and the single-flight motion dispatcher
//   - pkg/control: Controller composing the above
//   - pkg/robot: Servo calibration, arm driver and configuration
//   - pkg/logging: Logger construction
package ev3arm
