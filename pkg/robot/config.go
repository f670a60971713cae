package robot

import (
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/gwillem/ev3arm/pkg/kinematics"
	"github.com/gwillem/ev3arm/pkg/link"
)

const DefaultConfigFile = "ev3arm.json"

// Config holds the configuration of both ends of the link.
type Config struct {
	Controller ControllerConfig `json:"controller"`
	Node       NodeConfig       `json:"node"`
}

// ControllerConfig holds the motion controller settings. Times are in seconds.
type ControllerConfig struct {
	Address    string  `json:"address"`
	SampleRate float64 `json:"sample_rate"`
	HomeTime   float64 `json:"home_time"`
	MoveTime   float64 `json:"move_time"`
	// Tolerance is the accepted inverse kinematics error in millimeters.
	Tolerance float64             `json:"tolerance"`
	Links     []kinematics.DHLink `json:"links,omitempty"`
}

// NodeConfig holds the actuator node settings.
type NodeConfig struct {
	Listen      string      `json:"listen"`
	Port        string      `json:"port"`
	BaudRate    int         `json:"baud_rate"`
	Deadband    float64     `json:"deadband"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Address:    link.ListenAddr("ev3dev.local", link.DefaultPort),
			SampleRate: 10,
			HomeTime:   5,
			MoveTime:   3,
			Tolerance:  1e-3,
		},
		Node: NodeConfig{
			Listen:   link.ListenAddr("", link.DefaultPort),
			BaudRate: DefaultBaudRate,
			Deadband: DefaultDeadband,
		},
	}
}

// IsCalibrated returns true if the node has calibration data
func (n *NodeConfig) IsCalibrated() bool {
	return len(n.Calibration) > 0
}

// Model builds the kinematic model, falling back to the EV3 arm's DH table.
func (c *ControllerConfig) Model() (*kinematics.Model, error) {
	links := c.Links
	if len(links) == 0 {
		links = kinematics.DefaultLinks()
	}
	var opts []kinematics.Option
	if c.Tolerance > 0 {
		opts = append(opts, kinematics.WithTolerance(c.Tolerance))
	}
	return kinematics.NewModel(links, opts...)
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	positive := map[string]float64{
		"controller.sample_rate": c.Controller.SampleRate,
		"controller.home_time":   c.Controller.HomeTime,
		"controller.move_time":   c.Controller.MoveTime,
	}
	for name, v := range positive {
		if !(v > 0) || math.IsInf(v, 1) {
			return errors.Errorf("%s must be positive, got %v", name, v)
		}
	}
	if c.Controller.Tolerance < 0 {
		return errors.Errorf("controller.tolerance must not be negative, got %v", c.Controller.Tolerance)
	}
	if c.Node.Deadband < 0 {
		return errors.Errorf("node.deadband must not be negative, got %v", c.Node.Deadband)
	}
	if _, err := c.Controller.Model(); err != nil {
		return errors.Wrap(err, "controller.links")
	}
	seen := make(map[int]MotorName, len(c.Node.Calibration))
	for name, mc := range c.Node.Calibration {
		if other, ok := seen[mc.ID]; ok {
			return errors.Errorf("node.calibration: %s and %s share servo id %d", other, name, mc.ID)
		}
		seen[mc.ID] = name
	}
	return nil
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Missing fields keep their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s", path)
	}
	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
