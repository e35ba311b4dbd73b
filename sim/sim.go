// Package sim talks to a running driving simulator: spawning actors and
// sensors into its world, stepping simulation time, and receiving sensor
// frames over channels.
package sim

import (
	"context"

	"github.com/ICGog/erdos/camera"
	"github.com/ICGog/erdos/lidar"
	"github.com/ICGog/erdos/spatialmath"
)

// DefaultAddress is where a locally running simulator listens.
const DefaultAddress = "localhost:2000"

// Settings controls how the simulator advances time. In synchronous mode the
// world only advances when Tick is called, which is what the diagnostics want:
// every sensor observes the exact same instant.
type Settings struct {
	Synchronous bool `json:"synchronous"`
}

// LidarConfig are the attributes a lidar is spawned with.
type LidarConfig struct {
	Channels            int     `json:"channels"`
	Range               float64 `json:"range"`
	PointsPerSecond     int     `json:"points_per_second"`
	RotationFrequencyHz float64 `json:"rotation_frequency_hz"`
	UpperFOVDegrees     float64 `json:"upper_fov_degs"`
	LowerFOVDegrees     float64 `json:"lower_fov_degs"`
}

// DefaultLidarConfig returns the lidar attributes the diagnostics use.
func DefaultLidarConfig() LidarConfig {
	return LidarConfig{
		Channels:            32,
		Range:               5000,
		PointsPerSecond:     500000,
		RotationFrequencyHz: 20,
		UpperFOVDegrees:     15,
		LowerFOVDegrees:     -30,
	}
}

// CameraConfig are the attributes a camera is spawned with.
type CameraConfig struct {
	Width      int     `json:"width_px"`
	Height     int     `json:"height_px"`
	FOVDegrees float64 `json:"fov_degs"`
}

// DefaultCameraConfig returns the camera attributes the diagnostics use.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{Width: 800, Height: 600, FOVDegrees: 90}
}

// Intrinsics returns the pinhole intrinsics of a camera spawned with this config.
func (c CameraConfig) Intrinsics() camera.Intrinsics {
	return camera.Intrinsics{Width: c.Width, Height: c.Height, FOVDegrees: c.FOVDegrees}
}

// Session is a connection to a simulator.
type Session interface {
	// World returns a handle on the simulated world.
	World(ctx context.Context) (World, error)

	// Connected reports whether the session can still reach the simulator.
	Connected() bool

	// FrameStats reports how many sensor frames the session has seen,
	// delivered, and dropped so far.
	FrameStats() BusStats

	// Close tears the session down. Channels of sensors spawned through the
	// session close.
	Close(ctx context.Context) error
}

// World is a handle on the simulated world of one session.
type World interface {
	// Settings returns the world's current settings.
	Settings(ctx context.Context) (Settings, error)

	// ApplySettings changes the world's settings.
	ApplySettings(ctx context.Context, settings Settings) error

	// Tick advances the world by one step and waits for it to complete. Only
	// meaningful in synchronous mode.
	Tick(ctx context.Context) error

	// SetSpectator moves the simulator's viewport.
	SetSpectator(ctx context.Context, at spatialmath.Pose) error

	// SpawnVehicle places a vehicle of the given model into the world.
	SpawnVehicle(ctx context.Context, model string, at spatialmath.Pose) (Actor, error)

	// SpawnLidar places a lidar into the world and starts streaming its sweeps.
	SpawnLidar(ctx context.Context, cfg LidarConfig, at spatialmath.Pose) (LidarSensor, error)

	// SpawnDepthCamera places a depth camera into the world and starts
	// streaming its frames.
	SpawnDepthCamera(ctx context.Context, cfg CameraConfig, at spatialmath.Pose) (DepthCamera, error)

	// SpawnCamera places a color camera into the world and starts streaming
	// its images.
	SpawnCamera(ctx context.Context, cfg CameraConfig, at spatialmath.Pose) (ColorCamera, error)
}

// Actor is anything placed into the world that can be removed again.
type Actor interface {
	// ID identifies the actor within the simulator.
	ID() uint32

	// Destroy removes the actor from the world. For sensors, the frame
	// channel closes.
	Destroy(ctx context.Context) error
}

// LidarSensor is a spawned lidar.
type LidarSensor interface {
	Actor

	// Sweeps delivers the sensor's sweeps. Sweeps not received in time are
	// dropped, never queued.
	Sweeps() <-chan *lidar.Frame
}

// DepthCamera is a spawned depth camera.
type DepthCamera interface {
	Actor

	// Frames delivers the camera's depth frames. Frames not received in time
	// are dropped, never queued.
	Frames() <-chan *camera.DepthFrame
}

// ColorCamera is a spawned color camera.
type ColorCamera interface {
	Actor

	// Images delivers the camera's images. Images not received in time are
	// dropped, never queued.
	Images() <-chan *camera.Frame
}
