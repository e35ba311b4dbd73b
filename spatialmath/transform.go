// Package spatialmath implements the rigid-transform algebra used to move
// simulator measurements between coordinate frames.
//
// The world frame follows the simulator convention: x points forward, y points
// right, and z points up. Rotations are expressed as pitch/yaw/roll in degrees,
// where yaw rotates about z, pitch about y, and roll about x.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/ICGog/erdos/utils"
)

// Rotation is an orientation in degrees following the simulator convention.
type Rotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Pose is a location plus an orientation, the flat form used in configs and on
// the wire. Use Transform to do math with it.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Location returns the location component of the pose.
func (p Pose) Location() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// Transform returns the rigid transform placing a frame at the pose.
func (p Pose) Transform() *Transform {
	return NewTransform(p.Location(), Rotation{Pitch: p.Pitch, Yaw: p.Yaw, Roll: p.Roll})
}

// Transform is an immutable rigid transform between two coordinate frames,
// backed by a 4x4 homogeneous matrix.
type Transform struct {
	m *mat.Dense
}

// NewTransform returns the transform that places a frame at the given location
// with the given orientation.
func NewTransform(loc r3.Vector, rot Rotation) *Transform {
	cy := math.Cos(utils.DegToRad(rot.Yaw))
	sy := math.Sin(utils.DegToRad(rot.Yaw))
	cr := math.Cos(utils.DegToRad(rot.Roll))
	sr := math.Sin(utils.DegToRad(rot.Roll))
	cp := math.Cos(utils.DegToRad(rot.Pitch))
	sp := math.Sin(utils.DegToRad(rot.Pitch))
	return &Transform{m: mat.NewDense(4, 4, []float64{
		cp * cy, cy*sp*sr - sy*cr, -(cy*sp*cr + sy*sr), loc.X,
		sy * cp, sy*sp*sr + cy*cr, cy*sr - sy*sp*cr, loc.Y,
		sp, -cp * sr, cp * cr, loc.Z,
		0, 0, 0, 1,
	})}
}

// NewTransformFromMatrix returns a transform backed by a copy of the given
// 4x4 homogeneous matrix.
func NewTransformFromMatrix(m *mat.Dense) (*Transform, error) {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return nil, errors.Errorf("expected a 4x4 matrix, got %dx%d", r, c)
	}
	return &Transform{m: mat.DenseCopyOf(m)}, nil
}

// NewZeroTransform returns the identity transform.
func NewZeroTransform() *Transform {
	return NewTransform(r3.Vector{}, Rotation{})
}

// Compose returns the transform that applies right first and then left.
func Compose(left, right *Transform) *Transform {
	var out mat.Dense
	out.Mul(left.m, right.m)
	return &Transform{m: &out}
}

// Invert returns the inverse transform.
func (t *Transform) Invert() (*Transform, error) {
	var inv mat.Dense
	if err := inv.Inverse(t.m); err != nil {
		return nil, errors.Wrap(err, "cannot invert transform")
	}
	return &Transform{m: &inv}, nil
}

// TransformPoint applies the transform to a single point.
func (t *Transform) TransformPoint(p r3.Vector) r3.Vector {
	m := t.m
	return r3.Vector{
		X: m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2)*p.Z + m.At(0, 3),
		Y: m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2)*p.Z + m.At(1, 3),
		Z: m.At(2, 0)*p.X + m.At(2, 1)*p.Y + m.At(2, 2)*p.Z + m.At(2, 3),
	}
}

// TransformPoints applies the transform to every point, returning a new slice.
func (t *Transform) TransformPoints(pts []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = t.TransformPoint(p)
	}
	return out
}

// Translation returns the translation component of the transform.
func (t *Transform) Translation() r3.Vector {
	return r3.Vector{X: t.m.At(0, 3), Y: t.m.At(1, 3), Z: t.m.At(2, 3)}
}

// Matrix returns a copy of the underlying 4x4 homogeneous matrix.
func (t *Transform) Matrix() *mat.Dense {
	return mat.DenseCopyOf(t.m)
}

// AlmostEqual reports whether the two transforms agree elementwise within tol.
func (t *Transform) AlmostEqual(other *Transform, tol float64) bool {
	return mat.EqualApprox(t.m, other.m, tol)
}

func (t *Transform) String() string {
	loc := t.Translation()
	return fmt.Sprintf("transform(loc=(%.3f, %.3f, %.3f))", loc.X, loc.Y, loc.Z)
}

// camToWorld maps camera-local coordinates (x right, y down, z forward) into
// the world axis convention (x forward, y right, z up).
var camToWorld = mat.NewDense(4, 4, []float64{
	0, 0, 1, 0,
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0, 1,
})

// lidarToWorld maps lidar-local coordinates (y left, z down) into the world
// axis convention.
var lidarToWorld = mat.NewDense(4, 4, []float64{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, -1, 0,
	0, 0, 0, 1,
})

// R3VectorAlmostEqual compares two r3.Vector objects and returns if the all elementwise
// differences are less than epsilon.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon && math.Abs(a.Z-b.Z) < epsilon
}

// CameraToWorld returns the transform taking camera-local points to world
// coordinates for a camera mounted at the given pose.
func CameraToWorld(pose *Transform) *Transform {
	var out mat.Dense
	out.Mul(pose.m, camToWorld)
	return &Transform{m: &out}
}

// LidarToWorld returns the transform taking lidar-local points to world
// coordinates for a lidar mounted at the given pose.
func LidarToWorld(pose *Transform) *Transform {
	var out mat.Dense
	out.Mul(pose.m, lidarToWorld)
	return &Transform{m: &out}
}
