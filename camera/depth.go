package camera

import (
	"image"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/ICGog/erdos/pointcloud"
	"github.com/ICGog/erdos/spatialmath"
)

// FarPlaneMeters is the distance encoded by a fully saturated depth reading.
// The simulator normalizes all depth readings against this plane.
const FarPlaneMeters = 1000.0

const bytesPerDepthPixel = 4

// maxEncodedDepth is the largest value the 24-bit depth encoding can hold.
const maxEncodedDepth = float64(1<<24 - 1)

// DepthFrame is a single reading of a simulated depth camera along with the
// camera's intrinsics and its pose at capture time. Depths are stored
// normalized to [0, 1] against the far plane, row-major from the top-left
// pixel. A frame is immutable once constructed.
type DepthFrame struct {
	intrinsics Intrinsics
	pose       *spatialmath.Transform
	capturedAt time.Time
	depth      []float32
}

// NewDepthFrame returns a depth frame over the given normalized readings,
// which must contain exactly one reading per pixel.
func NewDepthFrame(
	intrinsics Intrinsics,
	pose *spatialmath.Transform,
	capturedAt time.Time,
	normalized []float32,
) (*DepthFrame, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if pose == nil {
		return nil, errors.New("depth frame needs the pose of its camera")
	}
	if len(normalized) != intrinsics.Width*intrinsics.Height {
		return nil, errors.Errorf("expected %d depth readings for a %dx%d frame, got %d",
			intrinsics.Width*intrinsics.Height, intrinsics.Width, intrinsics.Height, len(normalized))
	}
	depth := make([]float32, len(normalized))
	copy(depth, normalized)
	return &DepthFrame{intrinsics: intrinsics, pose: pose, capturedAt: capturedAt, depth: depth}, nil
}

// NewDepthFrameFromBGRA decodes the simulator's BGRA wire encoding of a depth
// image. The three color channels form a 24-bit fixed-point value scaled
// against the far plane; the alpha channel is ignored.
func NewDepthFrameFromBGRA(
	intrinsics Intrinsics,
	pose *spatialmath.Transform,
	capturedAt time.Time,
	raw []byte,
) (*DepthFrame, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if len(raw) != intrinsics.Width*intrinsics.Height*bytesPerDepthPixel {
		return nil, errors.Errorf("expected %d bytes of BGRA data for a %dx%d frame, got %d",
			intrinsics.Width*intrinsics.Height*bytesPerDepthPixel, intrinsics.Width, intrinsics.Height, len(raw))
	}
	depth := make([]float32, intrinsics.Width*intrinsics.Height)
	for i := range depth {
		b := float64(raw[i*bytesPerDepthPixel])
		g := float64(raw[i*bytesPerDepthPixel+1])
		r := float64(raw[i*bytesPerDepthPixel+2])
		depth[i] = float32((r + g*256 + b*65536) / maxEncodedDepth)
	}
	if pose == nil {
		return nil, errors.New("depth frame needs the pose of its camera")
	}
	return &DepthFrame{intrinsics: intrinsics, pose: pose, capturedAt: capturedAt, depth: depth}, nil
}

// Intrinsics returns the intrinsics of the camera that captured the frame.
func (df *DepthFrame) Intrinsics() Intrinsics {
	return df.intrinsics
}

// Pose returns the pose of the camera at capture time.
func (df *DepthFrame) Pose() *spatialmath.Transform {
	return df.pose
}

// CapturedAt returns the simulation time the frame was captured at.
func (df *DepthFrame) CapturedAt() time.Time {
	return df.capturedAt
}

// Width returns the width of the frame in pixels.
func (df *DepthFrame) Width() int {
	return df.intrinsics.Width
}

// Height returns the height of the frame in pixels.
func (df *DepthFrame) Height() int {
	return df.intrinsics.Height
}

func (df *DepthFrame) checkBounds(p image.Point) error {
	if p.X < 0 || p.X >= df.intrinsics.Width || p.Y < 0 || p.Y >= df.intrinsics.Height {
		return errors.Errorf("pixel (%d, %d) outside of frame bounds %dx%d",
			p.X, p.Y, df.intrinsics.Width, df.intrinsics.Height)
	}
	return nil
}

// NormalizedAt returns the normalized depth reading at the given pixel.
func (df *DepthFrame) NormalizedAt(p image.Point) (float64, error) {
	if err := df.checkBounds(p); err != nil {
		return 0, err
	}
	return float64(df.depth[p.Y*df.intrinsics.Width+p.X]), nil
}

// MetersAt returns the depth reading at the given pixel in meters.
func (df *DepthFrame) MetersAt(p image.Point) (float64, error) {
	normalized, err := df.NormalizedAt(p)
	if err != nil {
		return 0, err
	}
	return normalized * FarPlaneMeters, nil
}

// LocalPointCloud unprojects every pixel into the camera frame, in raster
// order. Pixels whose normalized depth exceeds maxDepth are dropped; pass 1 to
// keep every pixel, leaving the point of pixel (x, y) at index y*Width()+x.
func (df *DepthFrame) LocalPointCloud(maxDepth float64) pointcloud.Vectors {
	points := make(pointcloud.Vectors, 0, len(df.depth))
	for y := 0; y < df.intrinsics.Height; y++ {
		for x := 0; x < df.intrinsics.Width; x++ {
			normalized := float64(df.depth[y*df.intrinsics.Width+x])
			if normalized > maxDepth {
				continue
			}
			px, py, pz := df.intrinsics.PixelToPoint(float64(x), float64(y), normalized*FarPlaneMeters)
			points = append(points, r3.Vector{X: px, Y: py, Z: pz})
		}
	}
	return points
}

// WorldPointCloud unprojects every pixel into world coordinates, in raster
// order, using the pose the frame was captured at. Pixels whose normalized
// depth exceeds maxDepth are dropped.
func (df *DepthFrame) WorldPointCloud(maxDepth float64) pointcloud.Vectors {
	toWorld := spatialmath.CameraToWorld(df.pose)
	return pointcloud.Vectors(toWorld.TransformPoints(df.LocalPointCloud(maxDepth)))
}

// WorldPointAt unprojects a single pixel into world coordinates by explicitly
// inverting the intrinsic matrix. This is deliberately a separate code path
// from WorldPointCloud so the two can be checked against each other.
func (df *DepthFrame) WorldPointAt(p image.Point) (r3.Vector, error) {
	depthMeters, err := df.MetersAt(p)
	if err != nil {
		return r3.Vector{}, err
	}
	var invK mat.Dense
	if err := invK.Inverse(df.intrinsics.Matrix()); err != nil {
		return r3.Vector{}, errors.Wrap(err, "cannot invert intrinsic matrix")
	}
	pixel := mat.NewVecDense(3, []float64{float64(p.X), float64(p.Y), 1})
	var local mat.VecDense
	local.MulVec(&invK, pixel)
	local.ScaleVec(depthMeters, &local)
	return spatialmath.CameraToWorld(df.pose).TransformPoint(
		r3.Vector{X: local.AtVec(0), Y: local.AtVec(1), Z: local.AtVec(2)}), nil
}
