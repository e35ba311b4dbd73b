package sim

import (
	"context"

	"github.com/edaniels/golog"

	"github.com/ICGog/erdos/camera"
	"github.com/ICGog/erdos/lidar"
	"github.com/ICGog/erdos/spatialmath"
)

// Noop returns a Session that is not connected to anything. Every operation
// succeeds, every spawn hands back an inert actor, and every sensor channel
// stays silent. A diagnostic can run its whole pipeline against it when no
// simulator is reachable.
func Noop() Session {
	return noopSession{}
}

// DialOrNoop connects to the simulator at address, falling back to a no-op
// session when the simulator cannot be reached.
func DialOrNoop(ctx context.Context, address string, logger golog.Logger) Session {
	sess, err := Dial(ctx, address, logger)
	if err != nil {
		logger.Errorw("cannot reach simulator; continuing with a no-op session",
			"address", address, "error", err)
		return Noop()
	}
	return sess
}

type noopSession struct{}

func (noopSession) World(ctx context.Context) (World, error) {
	return noopWorld{}, nil
}

func (noopSession) Connected() bool {
	return false
}

func (noopSession) FrameStats() BusStats {
	return BusStats{}
}

func (noopSession) Close(ctx context.Context) error {
	return nil
}

type noopWorld struct{}

func (noopWorld) Settings(ctx context.Context) (Settings, error) {
	return Settings{}, nil
}

func (noopWorld) ApplySettings(ctx context.Context, settings Settings) error {
	return nil
}

func (noopWorld) Tick(ctx context.Context) error {
	return nil
}

func (noopWorld) SetSpectator(ctx context.Context, at spatialmath.Pose) error {
	return nil
}

func (noopWorld) SpawnVehicle(ctx context.Context, model string, at spatialmath.Pose) (Actor, error) {
	return noopActor{}, nil
}

func (noopWorld) SpawnLidar(ctx context.Context, cfg LidarConfig, at spatialmath.Pose) (LidarSensor, error) {
	return noopLidar{}, nil
}

func (noopWorld) SpawnDepthCamera(ctx context.Context, cfg CameraConfig, at spatialmath.Pose) (DepthCamera, error) {
	return noopDepthCamera{}, nil
}

func (noopWorld) SpawnCamera(ctx context.Context, cfg CameraConfig, at spatialmath.Pose) (ColorCamera, error) {
	return noopColorCamera{}, nil
}

type noopActor struct{}

func (noopActor) ID() uint32 {
	return 0
}

func (noopActor) Destroy(ctx context.Context) error {
	return nil
}

type noopLidar struct {
	noopActor
}

func (noopLidar) Sweeps() <-chan *lidar.Frame {
	return nil
}

type noopDepthCamera struct {
	noopActor
}

func (noopDepthCamera) Frames() <-chan *camera.DepthFrame {
	return nil
}

type noopColorCamera struct {
	noopActor
}

func (noopColorCamera) Images() <-chan *camera.Frame {
	return nil
}
