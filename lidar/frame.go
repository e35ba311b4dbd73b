// Package lidar converts raw lidar sweeps from the simulator into world-frame
// point clouds.
//
// The simulator reports lidar points in the sensor's own frame, where y points
// left and z points down relative to the world convention. WorldPoints applies
// both the axis change and the sensor's mounting pose.
package lidar

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ICGog/erdos/pointcloud"
	"github.com/ICGog/erdos/spatialmath"
)

// BytesPerPoint is the wire size of a single lidar point, three little-endian
// float32 coordinates.
const BytesPerPoint = 12

// Frame is a single sweep of a simulated lidar along with the sensor's pose at
// capture time. A frame is immutable once constructed.
type Frame struct {
	pose       *spatialmath.Transform
	capturedAt time.Time
	points     pointcloud.Vectors
}

// NewFrame returns a lidar frame over the given sensor-frame points.
func NewFrame(pose *spatialmath.Transform, capturedAt time.Time, points pointcloud.Vectors) (*Frame, error) {
	if pose == nil {
		return nil, errors.New("lidar frame needs the pose of its sensor")
	}
	copied := make(pointcloud.Vectors, len(points))
	copy(copied, points)
	return &Frame{pose: pose, capturedAt: capturedAt, points: copied}, nil
}

// NewFrameFromRaw decodes the simulator's wire encoding of a sweep, a packed
// sequence of x/y/z little-endian float32 triplets.
func NewFrameFromRaw(pose *spatialmath.Transform, capturedAt time.Time, raw []byte) (*Frame, error) {
	if pose == nil {
		return nil, errors.New("lidar frame needs the pose of its sensor")
	}
	if len(raw)%BytesPerPoint != 0 {
		return nil, errors.Errorf("raw lidar sweep of %d bytes is not a whole number of points", len(raw))
	}
	points := make(pointcloud.Vectors, 0, len(raw)/BytesPerPoint)
	for i := 0; i < len(raw); i += BytesPerPoint {
		points = append(points, r3.Vector{
			X: float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i:]))),
			Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i+4:]))),
			Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i+8:]))),
		})
	}
	return &Frame{pose: pose, capturedAt: capturedAt, points: points}, nil
}

// Size returns the number of points in the sweep.
func (f *Frame) Size() int {
	return len(f.points)
}

// Pose returns the pose of the sensor at capture time.
func (f *Frame) Pose() *spatialmath.Transform {
	return f.pose
}

// CapturedAt returns the simulation time the sweep was captured at.
func (f *Frame) CapturedAt() time.Time {
	return f.capturedAt
}

// Points returns the points of the sweep in the sensor's frame.
func (f *Frame) Points() pointcloud.Vectors {
	out := make(pointcloud.Vectors, len(f.points))
	copy(out, f.points)
	return out
}

// WorldPoints returns the points of the sweep in world coordinates.
func (f *Frame) WorldPoints() pointcloud.Vectors {
	return pointcloud.Vectors(spatialmath.LidarToWorld(f.pose).TransformPoints(f.points))
}
