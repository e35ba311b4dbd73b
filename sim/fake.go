package sim

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/ICGog/erdos/camera"
	"github.com/ICGog/erdos/lidar"
	"github.com/ICGog/erdos/pointcloud"
	"github.com/ICGog/erdos/spatialmath"
)

// FakeData is the scene a fake session serves. Every tick, each spawned
// sensor gets one frame cut from it.
type FakeData struct {
	// DepthNormalized holds one normalized depth reading per pixel of a
	// spawned depth camera, in raster order.
	DepthNormalized []float32
	// LidarPoints is the sweep every spawned lidar reports, in the sensor's
	// frame.
	LidarPoints pointcloud.Vectors
	// ColorBGRA is the image every spawned color camera reports.
	ColorBGRA []byte
}

// FakeSession is an in-process Session backed by canned data instead of a
// simulator. Frames are produced on Tick and stamped with the session's
// clock, so tests can drive time themselves.
type FakeSession struct {
	clk  clock.Clock
	data FakeData

	mu        sync.Mutex
	closed    bool
	nextID    uint32
	settings  Settings
	ticks     int
	spectator *spatialmath.Pose
	vehicles  []string
	destroyed []uint32
	lidars    map[uint32]*fakeLidar
	depthCams map[uint32]*fakeDepthCamera
	colorCams map[uint32]*fakeColorCamera
	stats     BusStats
}

// NewFake returns a fake session over the given scene.
func NewFake(data FakeData) *FakeSession {
	return NewFakeWithClock(data, clock.New())
}

// NewFakeWithClock is NewFake with an injectable clock.
func NewFakeWithClock(data FakeData, clk clock.Clock) *FakeSession {
	return &FakeSession{
		clk:       clk,
		data:      data,
		lidars:    map[uint32]*fakeLidar{},
		depthCams: map[uint32]*fakeDepthCamera{},
		colorCams: map[uint32]*fakeColorCamera{},
	}
}

func (s *FakeSession) World(ctx context.Context) (World, error) {
	return &fakeWorld{s}, nil
}

func (s *FakeSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *FakeSession) FrameStats() BusStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *FakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, l := range s.lidars {
		close(l.ch)
	}
	for _, c := range s.depthCams {
		close(c.ch)
	}
	for _, c := range s.colorCams {
		close(c.ch)
	}
	s.lidars = map[uint32]*fakeLidar{}
	s.depthCams = map[uint32]*fakeDepthCamera{}
	s.colorCams = map[uint32]*fakeColorCamera{}
	return nil
}

// Ticks reports how many times the world has ticked.
func (s *FakeSession) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// SpawnedVehicleModels lists the vehicle blueprints spawned so far, in order.
func (s *FakeSession) SpawnedVehicleModels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.vehicles))
	copy(out, s.vehicles)
	return out
}

// DestroyedActors lists the IDs destroyed so far, in order.
func (s *FakeSession) DestroyedActors() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint32, len(s.destroyed))
	copy(out, s.destroyed)
	return out
}

// Spectator reports where the spectator was last moved, if it was.
func (s *FakeSession) Spectator() (spatialmath.Pose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spectator == nil {
		return spatialmath.Pose{}, false
	}
	return *s.spectator, true
}

func (s *FakeSession) allocID() uint32 {
	s.nextID++
	return s.nextID
}

func (s *FakeSession) recordDestroy(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = append(s.destroyed, id)
	if l, ok := s.lidars[id]; ok {
		close(l.ch)
		delete(s.lidars, id)
	}
	if c, ok := s.depthCams[id]; ok {
		close(c.ch)
		delete(s.depthCams, id)
	}
	if c, ok := s.colorCams[id]; ok {
		close(c.ch)
		delete(s.colorCams, id)
	}
}

type fakeWorld struct {
	sess *FakeSession
}

func (w *fakeWorld) Settings(ctx context.Context) (Settings, error) {
	w.sess.mu.Lock()
	defer w.sess.mu.Unlock()
	return w.sess.settings, nil
}

func (w *fakeWorld) ApplySettings(ctx context.Context, settings Settings) error {
	w.sess.mu.Lock()
	defer w.sess.mu.Unlock()
	w.sess.settings = settings
	return nil
}

// Tick cuts one frame from the scene for every live sensor. Sends follow the
// session contract: a sensor whose channel is full misses the frame.
func (w *fakeWorld) Tick(ctx context.Context) error {
	s := w.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	now := s.clk.Now()

	for _, l := range s.lidars {
		s.stats.Published++
		frame, err := lidar.NewFrame(l.at.Transform(), now, s.data.LidarPoints)
		if err != nil {
			s.stats.Dropped++
			continue
		}
		select {
		case l.ch <- frame:
			s.stats.Delivered++
		default:
			s.stats.Dropped++
		}
	}
	for _, c := range s.depthCams {
		s.stats.Published++
		frame, err := camera.NewDepthFrame(c.cfg.Intrinsics(), c.at.Transform(), now, s.data.DepthNormalized)
		if err != nil {
			s.stats.Dropped++
			continue
		}
		select {
		case c.ch <- frame:
			s.stats.Delivered++
		default:
			s.stats.Dropped++
		}
	}
	for _, c := range s.colorCams {
		s.stats.Published++
		frame, err := camera.NewFrame(c.cfg.Width, c.cfg.Height, c.at.Transform(), now, s.data.ColorBGRA)
		if err != nil {
			s.stats.Dropped++
			continue
		}
		select {
		case c.ch <- frame:
			s.stats.Delivered++
		default:
			s.stats.Dropped++
		}
	}
	return nil
}

func (w *fakeWorld) SetSpectator(ctx context.Context, at spatialmath.Pose) error {
	w.sess.mu.Lock()
	defer w.sess.mu.Unlock()
	w.sess.spectator = &at
	return nil
}

func (w *fakeWorld) SpawnVehicle(ctx context.Context, model string, at spatialmath.Pose) (Actor, error) {
	w.sess.mu.Lock()
	defer w.sess.mu.Unlock()
	id := w.sess.allocID()
	w.sess.vehicles = append(w.sess.vehicles, model)
	return &fakeActor{sess: w.sess, id: id}, nil
}

func (w *fakeWorld) SpawnLidar(ctx context.Context, cfg LidarConfig, at spatialmath.Pose) (LidarSensor, error) {
	w.sess.mu.Lock()
	defer w.sess.mu.Unlock()
	l := &fakeLidar{
		fakeActor: fakeActor{sess: w.sess, id: w.sess.allocID()},
		cfg:       cfg,
		at:        at,
		ch:        make(chan *lidar.Frame, sensorBuffer),
	}
	w.sess.lidars[l.id] = l
	return l, nil
}

func (w *fakeWorld) SpawnDepthCamera(ctx context.Context, cfg CameraConfig, at spatialmath.Pose) (DepthCamera, error) {
	w.sess.mu.Lock()
	defer w.sess.mu.Unlock()
	c := &fakeDepthCamera{
		fakeActor: fakeActor{sess: w.sess, id: w.sess.allocID()},
		cfg:       cfg,
		at:        at,
		ch:        make(chan *camera.DepthFrame, sensorBuffer),
	}
	w.sess.depthCams[c.id] = c
	return c, nil
}

func (w *fakeWorld) SpawnCamera(ctx context.Context, cfg CameraConfig, at spatialmath.Pose) (ColorCamera, error) {
	w.sess.mu.Lock()
	defer w.sess.mu.Unlock()
	c := &fakeColorCamera{
		fakeActor: fakeActor{sess: w.sess, id: w.sess.allocID()},
		cfg:       cfg,
		at:        at,
		ch:        make(chan *camera.Frame, sensorBuffer),
	}
	w.sess.colorCams[c.id] = c
	return c, nil
}

type fakeActor struct {
	sess *FakeSession
	id   uint32
}

func (a *fakeActor) ID() uint32 {
	return a.id
}

func (a *fakeActor) Destroy(ctx context.Context) error {
	a.sess.recordDestroy(a.id)
	return nil
}

type fakeLidar struct {
	fakeActor
	cfg LidarConfig
	at  spatialmath.Pose
	ch  chan *lidar.Frame
}

func (l *fakeLidar) Sweeps() <-chan *lidar.Frame {
	return l.ch
}

type fakeDepthCamera struct {
	fakeActor
	cfg CameraConfig
	at  spatialmath.Pose
	ch  chan *camera.DepthFrame
}

func (c *fakeDepthCamera) Frames() <-chan *camera.DepthFrame {
	return c.ch
}

type fakeColorCamera struct {
	fakeActor
	cfg CameraConfig
	at  spatialmath.Pose
	ch  chan *camera.Frame
}

func (c *fakeColorCamera) Images() <-chan *camera.Frame {
	return c.ch
}
