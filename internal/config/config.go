package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// Angle modes for the telemetry stream.
const (
	AngleModeLiteral  = "literal"  // always report 0.0, as the deployed firmware does
	AngleModePosition = "position" // report position * 360 / steps_per_rev
)

// Telemetry outputs.
const (
	OutputStdout = "stdout"
	OutputSerial = "serial"
)

// MotorConfig holds the configuration for the 28BYJ-48 stepper behind a ULN2003 board.
// Pins are BCM numbers of the driver inputs IN1..IN4.
type MotorConfig struct {
	IN1Pin      int `yaml:"in1_pin"`
	IN2Pin      int `yaml:"in2_pin"`
	IN3Pin      int `yaml:"in3_pin"`
	IN4Pin      int `yaml:"in4_pin"`
	StepsPerRev int `yaml:"steps_per_rev"`
	RPM         int `yaml:"rpm"`
}

// SensorConfig describes the HC-SR04 wiring.
type SensorConfig struct {
	TrigPin   int  `yaml:"trig_pin"`
	EchoPin   int  `yaml:"echo_pin"`
	TimeoutMs int  `yaml:"timeout_ms"` // echo wait limit (ms)
	Strict    bool `yaml:"strict"`     // log echo timeouts as errors instead of silently reading 0
}

// ScanConfig holds the sweep parameters.
type ScanConfig struct {
	MaxSteps            int     `yaml:"max_steps"`             // travel limit in steps
	StepSize            int     `yaml:"step_size"`             // steps per tick
	ObstacleThresholdCm float64 `yaml:"obstacle_threshold_cm"` // pause below this distance; 0 never pauses
	TickDelayMs         int     `yaml:"tick_delay_ms"`         // delay after a moving tick
	PauseDelayMs        int     `yaml:"pause_delay_ms"`        // delay after a paused tick
	AngleMode           string  `yaml:"angle_mode"`            // "literal" or "position"
}

// TelemetryConfig selects where the "angle,distance" stream goes.
type TelemetryConfig struct {
	Output     string `yaml:"output"`      // "stdout" or "serial"
	SerialPort string `yaml:"serial_port"` // e.g. /dev/ttyAMA0
	BaudRate   int    `yaml:"baud_rate"`
	DataBits   int    `yaml:"data_bits"`
	StopBits   int    `yaml:"stop_bits"`
	Parity     string `yaml:"parity"`
}

// ObserverConfig configures the reading side of the stream (radar view).
type ObserverConfig struct {
	WarningCm   float64 `yaml:"warning_cm"`   // proximity warning below this distance
	HistorySize int     `yaml:"history_size"` // number of points kept for the radar view
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel     int  `yaml:"debug_level"`     // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO       bool `yaml:"mock_gpio"`       // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	SimulateSensor bool `yaml:"simulate_sensor"` // replace the HC-SR04 with a simulated room
}

// Config aggregates all application configuration.
type Config struct {
	Motor     MotorConfig     `yaml:"motor"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Scan      ScanConfig      `yaml:"scan"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Observer  ObserverConfig  `yaml:"observer"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath checks that path points to a .yaml file directly inside
// a directory named "configs" and does not contain parent references.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	clean := filepath.Clean(path)
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("config is empty")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	// A zero obstacle threshold is meaningful (never pause), so tell
	// "absent" apart from "0".
	var set struct {
		Scan struct {
			ObstacleThresholdCm *float64 `yaml:"obstacle_threshold_cm"`
		} `yaml:"scan"`
	}
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(set.Scan.ObstacleThresholdCm != nil); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(thresholdSet bool) error {
	// Motor: BCM pins of a common ULN2003 hookup.
	if c.Motor.IN1Pin == 0 && c.Motor.IN2Pin == 0 && c.Motor.IN3Pin == 0 && c.Motor.IN4Pin == 0 {
		c.Motor.IN1Pin, c.Motor.IN2Pin, c.Motor.IN3Pin, c.Motor.IN4Pin = 17, 18, 27, 22
	}
	pins := map[int]string{}
	for name, pin := range map[string]int{
		"motor.in1_pin": c.Motor.IN1Pin,
		"motor.in2_pin": c.Motor.IN2Pin,
		"motor.in3_pin": c.Motor.IN3Pin,
		"motor.in4_pin": c.Motor.IN4Pin,
	} {
		if pin <= 0 {
			return fmt.Errorf("%s must be > 0, got %d", name, pin)
		}
		if other, dup := pins[pin]; dup {
			return fmt.Errorf("%s and %s share pin %d", other, name, pin)
		}
		pins[pin] = name
	}
	if c.Motor.StepsPerRev <= 0 {
		c.Motor.StepsPerRev = 2048 // 28BYJ-48 through its gearbox
	}
	if c.Motor.RPM <= 0 {
		c.Motor.RPM = 15
	}

	if c.Sensor.TrigPin <= 0 {
		c.Sensor.TrigPin = 23
	}
	if c.Sensor.EchoPin <= 0 {
		c.Sensor.EchoPin = 24
	}
	if c.Sensor.TrigPin == c.Sensor.EchoPin {
		return fmt.Errorf("sensor.trig_pin and sensor.echo_pin must differ, both are %d", c.Sensor.TrigPin)
	}
	if _, clash := pins[c.Sensor.TrigPin]; clash {
		return fmt.Errorf("sensor.trig_pin %d is already used by the motor", c.Sensor.TrigPin)
	}
	if _, clash := pins[c.Sensor.EchoPin]; clash {
		return fmt.Errorf("sensor.echo_pin %d is already used by the motor", c.Sensor.EchoPin)
	}
	if c.Sensor.TimeoutMs <= 0 {
		c.Sensor.TimeoutMs = 1000
	}

	if c.Scan.MaxSteps <= 0 {
		c.Scan.MaxSteps = 1024 // half a revolution at 2048 steps/rev
	}
	if c.Scan.StepSize <= 0 {
		c.Scan.StepSize = 10
	}
	if c.Scan.StepSize > c.Scan.MaxSteps {
		return fmt.Errorf("scan.step_size (%d) must be <= scan.max_steps (%d)", c.Scan.StepSize, c.Scan.MaxSteps)
	}
	if c.Scan.ObstacleThresholdCm < 0 {
		return fmt.Errorf("scan.obstacle_threshold_cm must be >= 0, got %.2f", c.Scan.ObstacleThresholdCm)
	}
	if c.Scan.ObstacleThresholdCm == 0 && !thresholdSet {
		c.Scan.ObstacleThresholdCm = 17.0
	}
	if c.Scan.TickDelayMs <= 0 {
		c.Scan.TickDelayMs = 50
	}
	if c.Scan.PauseDelayMs <= 0 {
		c.Scan.PauseDelayMs = 200
	}
	switch c.Scan.AngleMode {
	case "":
		c.Scan.AngleMode = AngleModeLiteral
	case AngleModeLiteral, AngleModePosition:
	default:
		return fmt.Errorf("scan.angle_mode must be %q or %q, got %q", AngleModeLiteral, AngleModePosition, c.Scan.AngleMode)
	}

	switch c.Telemetry.Output {
	case "":
		c.Telemetry.Output = OutputStdout
	case OutputStdout:
	case OutputSerial:
		if c.Telemetry.SerialPort == "" {
			return fmt.Errorf("telemetry.serial_port is required when telemetry.output is %q", OutputSerial)
		}
	default:
		return fmt.Errorf("telemetry.output must be %q or %q, got %q", OutputStdout, OutputSerial, c.Telemetry.Output)
	}
	if c.Telemetry.BaudRate <= 0 {
		c.Telemetry.BaudRate = 9600
	}

	if c.Observer.WarningCm <= 0 {
		c.Observer.WarningCm = 10
	}
	if c.Observer.HistorySize <= 0 {
		c.Observer.HistorySize = 720
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// CoilPins returns the motor pins in coil drive order (IN1, IN3, IN2, IN4),
// the ordering the 28BYJ-48 needs for the 4-wire full-step sequence.
func (c *Config) CoilPins() [4]int {
	return [4]int{c.Motor.IN1Pin, c.Motor.IN3Pin, c.Motor.IN2Pin, c.Motor.IN4Pin}
}

// TickDelay returns the delay after a tick that moved the motor.
func (c *Config) TickDelay() time.Duration {
	return time.Duration(c.Scan.TickDelayMs) * time.Millisecond
}

// PauseDelay returns the delay after a tick paused by an obstacle.
func (c *Config) PauseDelay() time.Duration {
	return time.Duration(c.Scan.PauseDelayMs) * time.Millisecond
}

// SensorTimeout returns how long to wait for an echo.
func (c *Config) SensorTimeout() time.Duration {
	return time.Duration(c.Sensor.TimeoutMs) * time.Millisecond
}
