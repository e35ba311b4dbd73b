// Package main checks a simulator's sensor geometry end to end: it spawns a
// camera and lidar rig into the world, converts one depth frame and one lidar
// sweep into world coordinates, cross-checks the camera's conversion paths
// against each other, and renders the resulting clouds.
package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"github.com/ICGog/erdos/camera"
	"github.com/ICGog/erdos/lidar"
	"github.com/ICGog/erdos/pointcloud"
	"github.com/ICGog/erdos/sim"
	"github.com/ICGog/erdos/viz"
)

var logger = golog.NewDevelopmentLogger("check3d")

// Arguments for the command. Everything else is configured through the
// scenario file.
type Arguments struct {
	Address    string `flag:"address,usage=simulator control address"`
	ConfigFile string `flag:"config,usage=JSON5 scenario file"`
	OutDir     string `flag:"out,usage=directory for rendered artifacts"`
}

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg := DefaultConfig()
	if argsParsed.ConfigFile != "" {
		cfg, err = ReadConfig(argsParsed.ConfigFile)
		if err != nil {
			return err
		}
	}
	if argsParsed.Address != "" {
		cfg.Address = argsParsed.Address
	}
	if argsParsed.OutDir != "" {
		cfg.OutDir = argsParsed.OutDir
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout())
	defer cancel()
	sess := sim.DialOrNoop(dialCtx, cfg.Address, logger)
	defer func() {
		err = multierr.Combine(err, sess.Close(context.Background()))
	}()

	return runDiagnostic(ctx, sess, cfg, logger)
}

// runDiagnostic drives one spawn, tick, collect, check cycle against the
// session. Spawned actors are destroyed on the way out no matter how far the
// cycle got.
func runDiagnostic(ctx context.Context, sess sim.Session, cfg Config, logger golog.Logger) (err error) {
	world, err := sess.World(ctx)
	if err != nil {
		return err
	}

	settings, err := world.Settings(ctx)
	if err != nil {
		return err
	}
	logger.Debugw("world settings", "synchronous", settings.Synchronous)
	if err := world.ApplySettings(ctx, sim.Settings{Synchronous: true}); err != nil {
		return errors.Wrap(err, "cannot switch the world to synchronous mode")
	}

	lidarSensor, err := world.SpawnLidar(ctx, cfg.Lidar, cfg.SensorPose)
	if err != nil {
		return errors.Wrap(err, "cannot spawn lidar")
	}
	defer func() {
		err = multierr.Combine(err, lidarSensor.Destroy(context.Background()))
	}()

	depthCam, err := world.SpawnDepthCamera(ctx, cfg.Camera, cfg.SensorPose)
	if err != nil {
		return errors.Wrap(err, "cannot spawn depth camera")
	}
	defer func() {
		err = multierr.Combine(err, depthCam.Destroy(context.Background()))
	}()

	colorCam, err := world.SpawnCamera(ctx, cfg.Camera, cfg.SensorPose)
	if err != nil {
		return errors.Wrap(err, "cannot spawn camera")
	}
	defer func() {
		err = multierr.Combine(err, colorCam.Destroy(context.Background()))
	}()

	vehicle, err := world.SpawnVehicle(ctx, cfg.VehicleModel, cfg.VehiclePose)
	if err != nil {
		return errors.Wrap(err, "cannot spawn vehicle")
	}
	defer func() {
		err = multierr.Combine(err, vehicle.Destroy(context.Background()))
	}()

	logger.Infow("scenario spawned",
		"lidar", lidarSensor.ID(),
		"depth_camera", depthCam.ID(),
		"camera", colorCam.ID(),
		"vehicle", vehicle.ID(),
	)

	if err := world.SetSpectator(ctx, cfg.SensorPose); err != nil {
		return err
	}
	if err := world.Tick(ctx); err != nil {
		return errors.Wrap(err, "cannot tick the world")
	}

	if !sess.Connected() {
		logger.Warnw("not connected to a simulator; nothing to collect", "address", cfg.Address)
		return nil
	}

	depthFrame, sweep, colorFrame := collectFrames(
		ctx, cfg.CollectTimeout(), depthCam, lidarSensor, colorCam, logger)
	stats := sess.FrameStats()
	logger.Infow("frame delivery",
		"published", stats.Published, "delivered", stats.Delivered, "dropped", stats.Dropped)

	if depthFrame != nil {
		report, err := camera.CrossCheck(depthFrame, cfg.probePoints(), cfg.ToleranceMeters)
		if err != nil {
			return errors.Wrap(err, "cross-check did not run")
		}
		report.Log(logger)
		if !report.Consistent() {
			logger.Errorw("conversion paths disagree; the camera transform chain is broken",
				"tolerance_m", cfg.ToleranceMeters)
		}
	}

	if cfg.OutDir == "" {
		return nil
	}
	return writeArtifacts(cfg, depthFrame, sweep, colorFrame, logger)
}

// collectFrames waits for one frame of each kind. A missing frame is logged,
// not fatal; the diagnostic checks whatever arrived.
func collectFrames(
	ctx context.Context,
	timeout time.Duration,
	depthCam sim.DepthCamera,
	lidarSensor sim.LidarSensor,
	colorCam sim.ColorCamera,
	logger golog.Logger,
) (*camera.DepthFrame, *lidar.Frame, *camera.Frame) {
	var (
		depthFrame *camera.DepthFrame
		sweep      *lidar.Frame
		colorFrame *camera.Frame
	)
	collectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// A plain group: one sensor going quiet must not cut the others short.
	var g errgroup.Group
	g.Go(func() error {
		select {
		case f, ok := <-depthCam.Frames():
			if !ok {
				return errors.New("depth stream closed")
			}
			depthFrame = f
			return nil
		case <-collectCtx.Done():
			return errors.Wrap(collectCtx.Err(), "no depth frame arrived")
		}
	})
	g.Go(func() error {
		select {
		case f, ok := <-lidarSensor.Sweeps():
			if !ok {
				return errors.New("lidar stream closed")
			}
			sweep = f
			return nil
		case <-collectCtx.Done():
			return errors.Wrap(collectCtx.Err(), "no lidar sweep arrived")
		}
	})
	g.Go(func() error {
		select {
		case f, ok := <-colorCam.Images():
			if !ok {
				return errors.New("camera stream closed")
			}
			colorFrame = f
			return nil
		case <-collectCtx.Done():
			return errors.Wrap(collectCtx.Err(), "no camera image arrived")
		}
	})
	if err := g.Wait(); err != nil {
		logger.Errorw("frame collection incomplete", "error", err)
	}
	return depthFrame, sweep, colorFrame
}

// writeArtifacts renders whatever frames arrived into cfg.OutDir.
func writeArtifacts(
	cfg Config,
	depthFrame *camera.DepthFrame,
	sweep *lidar.Frame,
	colorFrame *camera.Frame,
	logger golog.Logger,
) error {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create output dir %q", cfg.OutDir)
	}

	if depthFrame != nil {
		cloud, err := pointcloud.FromVectors(depthFrame.WorldPointCloud(cfg.MaxNormalizedDepth))
		if err != nil {
			return err
		}
		if err := writeCloudArtifacts(cloud, "depth-world", cfg.OutDir, logger); err != nil {
			return err
		}
		if err := viz.SavePNG(viz.DepthImage(depthFrame), filepath.Join(cfg.OutDir, "depth.png")); err != nil {
			return err
		}
	}
	if sweep != nil {
		cloud, err := pointcloud.FromVectors(sweep.WorldPoints())
		if err != nil {
			return err
		}
		if err := writeCloudArtifacts(cloud, "lidar-world", cfg.OutDir, logger); err != nil {
			return err
		}
	}
	if colorFrame != nil {
		if err := viz.SavePNG(colorFrame.Image(), filepath.Join(cfg.OutDir, "camera.png")); err != nil {
			return err
		}
	}
	logger.Infow("artifacts written", "dir", cfg.OutDir)
	return nil
}

// writeCloudArtifacts renders one world-space cloud three ways: an
// interactive scatter page, a LAS file, and a bird's-eye plot.
func writeCloudArtifacts(cloud pointcloud.PointCloud, name, dir string, logger golog.Logger) (err error) {
	if cloud.Size() == 0 {
		logger.Warnw("cloud is empty; skipping its artifacts", "cloud", name)
		return nil
	}

	htmlPath := filepath.Join(dir, name+".html")
	htmlFile, err := os.Create(htmlPath)
	if err != nil {
		return errors.Wrapf(err, "cannot create %q", htmlPath)
	}
	defer func() {
		err = multierr.Combine(err, htmlFile.Close())
	}()
	if err := viz.WriteCloudHTML(cloud, name, htmlFile); err != nil {
		return err
	}

	if err := pointcloud.WriteToLASFile(cloud, filepath.Join(dir, name+".las")); err != nil {
		return err
	}
	return viz.WriteBirdsEye(cloud, name, filepath.Join(dir, name+"-birdseye.png"))
}
