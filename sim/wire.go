package sim

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/ICGog/erdos/spatialmath"
)

// The simulator speaks length-prefixed messages over a single TCP connection.
// Each message is a big-endian uint32 byte length followed by a one-byte kind
// and the body. Control messages carry JSON both ways; frame messages carry a
// fixed binary header and the sensor payload.
const (
	msgKindControl byte = 'C'
	msgKindFrame   byte = 'F'
)

// Frame kinds, discriminating the payload encoding.
const (
	frameKindLidar byte = 1
	frameKindDepth byte = 2
	frameKindColor byte = 3
)

// maxMessageBytes bounds a single message; a full 800x600 BGRA frame is ~1.9MB.
const maxMessageBytes = 64 << 20

// frameHeaderSize is sensor id + frame kind + timestamp + pose + fov + width + height.
const frameHeaderSize = 4 + 1 + 8 + 6*8 + 8 + 4 + 4

// Control operations.
const (
	opSpawnActor    = "spawn_actor"
	opDestroyActor  = "destroy_actor"
	opGetSettings   = "get_settings"
	opApplySettings = "apply_settings"
	opTick          = "tick"
	opSetSpectator  = "set_spectator"
)

// Sensor blueprints.
const (
	blueprintLidar       = "sensor.lidar.ray_cast"
	blueprintDepthCamera = "sensor.camera.depth"
	blueprintColorCamera = "sensor.camera.rgb"
)

type request struct {
	ID         uint64            `json:"id"`
	Op         string            `json:"op"`
	Blueprint  string            `json:"blueprint,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	At         *spatialmath.Pose `json:"at,omitempty"`
	Actor      uint32            `json:"actor,omitempty"`
	Settings   *Settings         `json:"settings,omitempty"`
}

type response struct {
	ID       uint64    `json:"id"`
	Error    string    `json:"error,omitempty"`
	Actor    uint32    `json:"actor,omitempty"`
	Settings *Settings `json:"settings,omitempty"`
}

// wireFrame is a decoded frame message. The pose is the sensor's pose at
// capture time; fov, width and height are zero for lidar sweeps.
type wireFrame struct {
	SensorID   uint32
	Kind       byte
	CapturedAt time.Time
	Pose       spatialmath.Pose
	FOVDegrees float64
	Width      int
	Height     int
	Payload    []byte
}

func writeMessage(w io.Writer, kind byte, body []byte) error {
	if len(body)+1 > maxMessageBytes {
		return errors.Errorf("message of %d bytes exceeds the %d byte limit", len(body)+1, maxMessageBytes)
	}
	msg := make([]byte, 5, 5+len(body))
	binary.BigEndian.PutUint32(msg, uint32(len(body)+1))
	msg[4] = kind
	msg = append(msg, body...)
	_, err := w.Write(msg)
	return err
}

func readMessage(r io.Reader) (byte, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size == 0 {
		return 0, nil, errors.New("empty message")
	}
	if size > maxMessageBytes {
		return 0, nil, errors.Errorf("message of %d bytes exceeds the %d byte limit", size, maxMessageBytes)
	}
	msg := make([]byte, size)
	if _, err := io.ReadFull(r, msg); err != nil {
		return 0, nil, err
	}
	return msg[0], msg[1:], nil
}

func writeControl(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeMessage(w, msgKindControl, body)
}

func encodeFrame(f wireFrame) []byte {
	body := make([]byte, frameHeaderSize, frameHeaderSize+len(f.Payload))
	binary.BigEndian.PutUint32(body[0:], f.SensorID)
	body[4] = f.Kind
	binary.BigEndian.PutUint64(body[5:], uint64(f.CapturedAt.UnixMicro()))
	at := 13
	for _, v := range []float64{f.Pose.X, f.Pose.Y, f.Pose.Z, f.Pose.Pitch, f.Pose.Yaw, f.Pose.Roll, f.FOVDegrees} {
		binary.BigEndian.PutUint64(body[at:], math.Float64bits(v))
		at += 8
	}
	binary.BigEndian.PutUint32(body[at:], uint32(f.Width))
	binary.BigEndian.PutUint32(body[at+4:], uint32(f.Height))
	return append(body, f.Payload...)
}

func decodeFrame(body []byte) (wireFrame, error) {
	if len(body) < frameHeaderSize {
		return wireFrame{}, errors.Errorf("frame header needs %d bytes, got %d", frameHeaderSize, len(body))
	}
	floats := make([]float64, 7)
	at := 13
	for i := range floats {
		floats[i] = math.Float64frombits(binary.BigEndian.Uint64(body[at:]))
		at += 8
	}
	f := wireFrame{
		SensorID:   binary.BigEndian.Uint32(body[0:]),
		Kind:       body[4],
		CapturedAt: time.UnixMicro(int64(binary.BigEndian.Uint64(body[5:]))),
		Pose: spatialmath.Pose{
			X: floats[0], Y: floats[1], Z: floats[2],
			Pitch: floats[3], Yaw: floats[4], Roll: floats[5],
		},
		FOVDegrees: floats[6],
		Width:      int(binary.BigEndian.Uint32(body[at:])),
		Height:     int(binary.BigEndian.Uint32(body[at+4:])),
		Payload:    body[frameHeaderSize:],
	}
	switch f.Kind {
	case frameKindLidar, frameKindDepth, frameKindColor:
	default:
		return wireFrame{}, errors.Errorf("unknown frame kind %d", f.Kind)
	}
	return f, nil
}
