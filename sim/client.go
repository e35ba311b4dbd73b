package sim

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/ICGog/erdos/camera"
	"github.com/ICGog/erdos/lidar"
	"github.com/ICGog/erdos/spatialmath"
)

const (
	defaultDialTimeout = 10 * time.Second
	sensorBuffer       = 8
)

// clientSession is a Session over a single TCP connection. One reader
// goroutine demultiplexes control responses and sensor frames.
type clientSession struct {
	conn   net.Conn
	logger golog.Logger

	mu      sync.Mutex
	pending map[uint64]chan response
	nextID  uint64
	closed  bool

	bus        *frameBus
	readerDone chan struct{}
}

// Dial connects to a simulator's control port.
func Dial(ctx context.Context, address string, logger golog.Logger) (Session, error) {
	dialer := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot reach simulator at %q", address)
	}
	c := &clientSession{
		conn:       conn,
		logger:     logger,
		pending:    map[uint64]chan response{},
		bus:        newFrameBus(),
		readerDone: make(chan struct{}),
	}
	goutils.PanicCapturingGo(c.readLoop)
	logger.Infow("connected to simulator", "address", address)
	return c, nil
}

func (c *clientSession) readLoop() {
	defer close(c.readerDone)
	for {
		kind, body, err := readMessage(c.conn)
		if err != nil {
			c.fail(err)
			return
		}
		switch kind {
		case msgKindControl:
			var resp response
			if err := json.Unmarshal(body, &resp); err != nil {
				c.logger.Errorw("discarding malformed control message", "error", err)
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.ID]
			delete(c.pending, resp.ID)
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
		case msgKindFrame:
			f, err := decodeFrame(body)
			if err != nil {
				c.logger.Errorw("discarding malformed frame", "error", err)
				continue
			}
			c.bus.publish(f)
		default:
			c.logger.Errorw("discarding message of unknown kind", "kind", kind)
		}
	}
}

// fail tears the session down after the connection is gone. Pending requests
// and all sensor channels are closed so nobody keeps waiting.
func (c *clientSession) fail(err error) {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	pending := c.pending
	c.pending = map[uint64]chan response{}
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	c.bus.close()
	if !wasClosed {
		c.logger.Errorw("lost connection to simulator", "error", err)
	}
}

func (c *clientSession) request(ctx context.Context, req request) (response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return response{}, errors.New("session is closed")
	}
	c.nextID++
	req.ID = c.nextID
	ch := make(chan response, 1)
	c.pending[req.ID] = ch
	err := writeControl(c.conn, req)
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return response{}, errors.Wrapf(err, "cannot send %q request", req.Op)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return response{}, errors.Errorf("connection lost awaiting %q response", req.Op)
		}
		if resp.Error != "" {
			return response{}, errors.Errorf("simulator rejected %q: %s", req.Op, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return response{}, ctx.Err()
	}
}

func (c *clientSession) World(ctx context.Context) (World, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("session is closed")
	}
	return &clientWorld{c}, nil
}

func (c *clientSession) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *clientSession) FrameStats() BusStats {
	return c.bus.stats()
}

func (c *clientSession) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	select {
	case <-c.readerDone:
	case <-ctx.Done():
		return multierr.Combine(err, ctx.Err())
	}
	c.bus.close()
	return err
}

type clientWorld struct {
	sess *clientSession
}

func (w *clientWorld) Settings(ctx context.Context) (Settings, error) {
	resp, err := w.sess.request(ctx, request{Op: opGetSettings})
	if err != nil {
		return Settings{}, err
	}
	if resp.Settings == nil {
		return Settings{}, errors.New("simulator did not report settings")
	}
	return *resp.Settings, nil
}

func (w *clientWorld) ApplySettings(ctx context.Context, settings Settings) error {
	_, err := w.sess.request(ctx, request{Op: opApplySettings, Settings: &settings})
	return err
}

func (w *clientWorld) Tick(ctx context.Context) error {
	_, err := w.sess.request(ctx, request{Op: opTick})
	return err
}

func (w *clientWorld) SetSpectator(ctx context.Context, at spatialmath.Pose) error {
	_, err := w.sess.request(ctx, request{Op: opSetSpectator, At: &at})
	return err
}

func (w *clientWorld) SpawnVehicle(ctx context.Context, model string, at spatialmath.Pose) (Actor, error) {
	resp, err := w.sess.request(ctx, request{Op: opSpawnActor, Blueprint: model, At: &at})
	if err != nil {
		return nil, err
	}
	return &clientActor{sess: w.sess, id: resp.Actor}, nil
}

func formatFloatAttr(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (w *clientWorld) SpawnLidar(ctx context.Context, cfg LidarConfig, at spatialmath.Pose) (LidarSensor, error) {
	resp, err := w.sess.request(ctx, request{
		Op:        opSpawnActor,
		Blueprint: blueprintLidar,
		Attributes: map[string]string{
			"channels":           strconv.Itoa(cfg.Channels),
			"range":              formatFloatAttr(cfg.Range),
			"points_per_second":  strconv.Itoa(cfg.PointsPerSecond),
			"rotation_frequency": formatFloatAttr(cfg.RotationFrequencyHz),
			"upper_fov":          formatFloatAttr(cfg.UpperFOVDegrees),
			"lower_fov":          formatFloatAttr(cfg.LowerFOVDegrees),
		},
		At: &at,
	})
	if err != nil {
		return nil, err
	}
	raw, err := w.sess.bus.subscribe(resp.Actor, sensorBuffer)
	if err != nil {
		return nil, err
	}
	s := &clientLidar{
		clientActor: clientActor{sess: w.sess, id: resp.Actor},
		sweeps:      make(chan *lidar.Frame, sensorBuffer),
	}
	goutils.PanicCapturingGo(func() { s.pump(raw) })
	return s, nil
}

func cameraAttributes(cfg CameraConfig) map[string]string {
	return map[string]string{
		"image_size_x": strconv.Itoa(cfg.Width),
		"image_size_y": strconv.Itoa(cfg.Height),
		"fov":          formatFloatAttr(cfg.FOVDegrees),
	}
}

func (w *clientWorld) SpawnDepthCamera(ctx context.Context, cfg CameraConfig, at spatialmath.Pose) (DepthCamera, error) {
	resp, err := w.sess.request(ctx, request{
		Op:         opSpawnActor,
		Blueprint:  blueprintDepthCamera,
		Attributes: cameraAttributes(cfg),
		At:         &at,
	})
	if err != nil {
		return nil, err
	}
	raw, err := w.sess.bus.subscribe(resp.Actor, sensorBuffer)
	if err != nil {
		return nil, err
	}
	s := &clientDepthCamera{
		clientActor: clientActor{sess: w.sess, id: resp.Actor},
		frames:      make(chan *camera.DepthFrame, sensorBuffer),
	}
	goutils.PanicCapturingGo(func() { s.pump(raw) })
	return s, nil
}

func (w *clientWorld) SpawnCamera(ctx context.Context, cfg CameraConfig, at spatialmath.Pose) (ColorCamera, error) {
	resp, err := w.sess.request(ctx, request{
		Op:         opSpawnActor,
		Blueprint:  blueprintColorCamera,
		Attributes: cameraAttributes(cfg),
		At:         &at,
	})
	if err != nil {
		return nil, err
	}
	raw, err := w.sess.bus.subscribe(resp.Actor, sensorBuffer)
	if err != nil {
		return nil, err
	}
	s := &clientColorCamera{
		clientActor: clientActor{sess: w.sess, id: resp.Actor},
		images:      make(chan *camera.Frame, sensorBuffer),
	}
	goutils.PanicCapturingGo(func() { s.pump(raw) })
	return s, nil
}

type clientActor struct {
	sess *clientSession
	id   uint32
}

func (a *clientActor) ID() uint32 {
	return a.id
}

func (a *clientActor) Destroy(ctx context.Context) error {
	_, err := a.sess.request(ctx, request{Op: opDestroyActor, Actor: a.id})
	return err
}

type clientLidar struct {
	clientActor
	sweeps chan *lidar.Frame
}

func (s *clientLidar) Sweeps() <-chan *lidar.Frame {
	return s.sweeps
}

func (s *clientLidar) Destroy(ctx context.Context) error {
	s.sess.bus.unsubscribe(s.id)
	return s.clientActor.Destroy(ctx)
}

func (s *clientLidar) pump(raw <-chan wireFrame) {
	defer close(s.sweeps)
	for f := range raw {
		if f.Kind != frameKindLidar {
			s.sess.logger.Errorw("discarding frame of unexpected kind", "sensor", s.id, "kind", f.Kind)
			continue
		}
		frame, err := lidar.NewFrameFromRaw(f.Pose.Transform(), f.CapturedAt, f.Payload)
		if err != nil {
			s.sess.logger.Errorw("discarding undecodable sweep", "sensor", s.id, "error", err)
			continue
		}
		select {
		case s.sweeps <- frame:
		default:
			s.sess.logger.Debugw("dropping sweep nobody is ready for", "sensor", s.id)
		}
	}
}

type clientDepthCamera struct {
	clientActor
	frames chan *camera.DepthFrame
}

func (s *clientDepthCamera) Frames() <-chan *camera.DepthFrame {
	return s.frames
}

func (s *clientDepthCamera) Destroy(ctx context.Context) error {
	s.sess.bus.unsubscribe(s.id)
	return s.clientActor.Destroy(ctx)
}

func (s *clientDepthCamera) pump(raw <-chan wireFrame) {
	defer close(s.frames)
	for f := range raw {
		if f.Kind != frameKindDepth {
			s.sess.logger.Errorw("discarding frame of unexpected kind", "sensor", s.id, "kind", f.Kind)
			continue
		}
		intrinsics := camera.Intrinsics{Width: f.Width, Height: f.Height, FOVDegrees: f.FOVDegrees}
		frame, err := camera.NewDepthFrameFromBGRA(intrinsics, f.Pose.Transform(), f.CapturedAt, f.Payload)
		if err != nil {
			s.sess.logger.Errorw("discarding undecodable depth frame", "sensor", s.id, "error", err)
			continue
		}
		select {
		case s.frames <- frame:
		default:
			s.sess.logger.Debugw("dropping depth frame nobody is ready for", "sensor", s.id)
		}
	}
}

type clientColorCamera struct {
	clientActor
	images chan *camera.Frame
}

func (s *clientColorCamera) Images() <-chan *camera.Frame {
	return s.images
}

func (s *clientColorCamera) Destroy(ctx context.Context) error {
	s.sess.bus.unsubscribe(s.id)
	return s.clientActor.Destroy(ctx)
}

func (s *clientColorCamera) pump(raw <-chan wireFrame) {
	defer close(s.images)
	for f := range raw {
		if f.Kind != frameKindColor {
			s.sess.logger.Errorw("discarding frame of unexpected kind", "sensor", s.id, "kind", f.Kind)
			continue
		}
		frame, err := camera.NewFrame(f.Width, f.Height, f.Pose.Transform(), f.CapturedAt, f.Payload)
		if err != nil {
			s.sess.logger.Errorw("discarding undecodable image", "sensor", s.id, "error", err)
			continue
		}
		select {
		case s.images <- frame:
		default:
			s.sess.logger.Debugw("dropping image nobody is ready for", "sensor", s.id)
		}
	}
}
