package main

import (
	"image"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/ICGog/erdos/sim"
	"github.com/ICGog/erdos/spatialmath"
)

// Probe is a pixel the diagnostic cross-checks.
type Probe struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Config is the scenario the diagnostic runs: where the simulator is, how
// the sensor rig is mounted, and which pixels get cross-checked.
type Config struct {
	Address            string           `json:"address"`
	DialTimeoutSecs    float64          `json:"dial_timeout_secs"`
	CollectTimeoutSecs float64          `json:"collect_timeout_secs"`
	OutDir             string           `json:"out_dir"`
	VehicleModel       string           `json:"vehicle_model"`
	SensorPose         spatialmath.Pose `json:"sensor_pose"`
	VehiclePose        spatialmath.Pose `json:"vehicle_pose"`
	Camera             sim.CameraConfig `json:"camera"`
	Lidar              sim.LidarConfig  `json:"lidar"`
	Probes             []Probe          `json:"probes"`
	ToleranceMeters    float64          `json:"tolerance_meters"`
	MaxNormalizedDepth float64          `json:"max_normalized_depth"`
}

// DefaultConfig is the scenario the diagnostic was written around: a sensor
// rig at (2, 8, 1.4) staring down the world x axis with a vehicle ahead of it.
func DefaultConfig() Config {
	return Config{
		Address:            sim.DefaultAddress,
		DialTimeoutSecs:    10,
		CollectTimeoutSecs: 30,
		OutDir:             "check3d-out",
		VehicleModel:       "vehicle.lincoln.mkz2017",
		SensorPose:         spatialmath.Pose{X: 2, Y: 8, Z: 1.4},
		VehiclePose:        spatialmath.Pose{X: 20, Y: 2},
		Camera:             sim.DefaultCameraConfig(),
		Lidar:              sim.DefaultLidarConfig(),
		Probes:             []Probe{{X: 400, Y: 285}, {X: 400, Y: 350}, {X: 500, Y: 285}, {X: 245, Y: 320}},
		ToleranceMeters:    0.1,
		MaxNormalizedDepth: 1.0,
	}
}

// ReadConfig loads a JSON5 scenario file over the defaults.
func ReadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "cannot parse config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %q", path)
	}
	return cfg, nil
}

// Validate checks the scenario is runnable before anything is spawned.
func (c *Config) Validate() error {
	intrinsics := c.Camera.Intrinsics()
	if err := intrinsics.CheckValid(); err != nil {
		return err
	}
	if c.DialTimeoutSecs <= 0 {
		return errors.New("dial timeout must be positive")
	}
	if c.CollectTimeoutSecs <= 0 {
		return errors.New("collect timeout must be positive")
	}
	if c.ToleranceMeters <= 0 {
		return errors.New("tolerance must be positive")
	}
	if c.MaxNormalizedDepth <= 0 || c.MaxNormalizedDepth > 1 {
		return errors.New("max normalized depth must be in (0, 1]")
	}
	if len(c.Probes) == 0 {
		return errors.New("need at least one probe pixel")
	}
	for _, p := range c.Probes {
		if p.X < 0 || p.X >= c.Camera.Width || p.Y < 0 || p.Y >= c.Camera.Height {
			return errors.Errorf("probe (%d, %d) outside the %dx%d camera",
				p.X, p.Y, c.Camera.Width, c.Camera.Height)
		}
	}
	return nil
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSecs * float64(time.Second))
}

func (c *Config) CollectTimeout() time.Duration {
	return time.Duration(c.CollectTimeoutSecs * float64(time.Second))
}

func (c *Config) probePoints() []image.Point {
	pts := make([]image.Point, len(c.Probes))
	for i, p := range c.Probes {
		pts[i] = image.Pt(p.X, p.Y)
	}
	return pts
}
