package camera

import (
	"image"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/ICGog/erdos/spatialmath"
)

func uniformDepthFrame(t *testing.T, intrinsics Intrinsics, pose *spatialmath.Transform, normalized float32) *DepthFrame {
	t.Helper()
	depth := make([]float32, intrinsics.Width*intrinsics.Height)
	for i := range depth {
		depth[i] = normalized
	}
	df, err := NewDepthFrame(intrinsics, pose, time.Unix(0, 0), depth)
	test.That(t, err, test.ShouldBeNil)
	return df
}

func TestNewDepthFrame(t *testing.T) {
	pose := spatialmath.NewZeroTransform()

	_, err := NewDepthFrame(scenarioIntrinsics, pose, time.Unix(0, 0), make([]float32, 7))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "expected 480000 depth readings")

	_, err = NewDepthFrame(scenarioIntrinsics, nil, time.Unix(0, 0), make([]float32, 800*600))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pose")

	badIntrinsics := Intrinsics{Width: 800, Height: 600, FOVDegrees: 500}
	_, err = NewDepthFrame(badIntrinsics, pose, time.Unix(0, 0), make([]float32, 800*600))
	test.That(t, err, test.ShouldNotBeNil)

	captured := time.Unix(1234, 0)
	readings := make([]float32, 800*600)
	df, err := NewDepthFrame(scenarioIntrinsics, pose, captured, readings)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, df.Width(), test.ShouldEqual, 800)
	test.That(t, df.Height(), test.ShouldEqual, 600)
	test.That(t, df.CapturedAt().Equal(captured), test.ShouldBeTrue)
	test.That(t, df.Intrinsics(), test.ShouldResemble, scenarioIntrinsics)

	// the frame is unaffected by later writes to the input
	readings[0] = 0.5
	normalized, err := df.NormalizedAt(image.Pt(0, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, normalized, test.ShouldEqual, 0)
}

func TestDepthFrameBounds(t *testing.T) {
	df := uniformDepthFrame(t, Intrinsics{Width: 4, Height: 3, FOVDegrees: 90}, spatialmath.NewZeroTransform(), 0.1)

	for _, bad := range []image.Point{{X: -1, Y: 0}, {X: 4, Y: 0}, {X: 0, Y: -1}, {X: 0, Y: 3}} {
		_, err := df.NormalizedAt(bad)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "outside of frame bounds")
	}

	meters, err := df.MetersAt(image.Pt(3, 2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meters, test.ShouldAlmostEqual, 100, 1e-4)
}

func TestNewDepthFrameFromBGRA(t *testing.T) {
	pose := spatialmath.NewZeroTransform()
	intrinsics := Intrinsics{Width: 2, Height: 1, FOVDegrees: 90}

	_, err := NewDepthFrameFromBGRA(intrinsics, pose, time.Unix(0, 0), []byte{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "expected 8 bytes")

	// black decodes to the camera plane, white to the far plane
	raw := []byte{
		0, 0, 0, 255,
		255, 255, 255, 255,
	}
	df, err := NewDepthFrameFromBGRA(intrinsics, pose, time.Unix(0, 0), raw)
	test.That(t, err, test.ShouldBeNil)

	normalized, err := df.NormalizedAt(image.Pt(0, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, normalized, test.ShouldEqual, 0)

	normalized, err = df.NormalizedAt(image.Pt(1, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, normalized, test.ShouldEqual, 1)
	meters, err := df.MetersAt(image.Pt(1, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meters, test.ShouldEqual, FarPlaneMeters)

	// the red channel is the lowest byte of the encoding
	raw = []byte{
		0, 0, 255, 255,
		0, 1, 0, 255,
	}
	df, err = NewDepthFrameFromBGRA(intrinsics, pose, time.Unix(0, 0), raw)
	test.That(t, err, test.ShouldBeNil)
	normalized, err = df.NormalizedAt(image.Pt(0, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, normalized, test.ShouldAlmostEqual, 255.0/16777215.0, 1e-10)
	normalized, err = df.NormalizedAt(image.Pt(1, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, normalized, test.ShouldAlmostEqual, 256.0/16777215.0, 1e-10)
}

func TestLocalPointCloud(t *testing.T) {
	intrinsics := Intrinsics{Width: 2, Height: 2, FOVDegrees: 90}
	depth := []float32{0.1, 0.5, 0.9, 1.0}
	df, err := NewDepthFrame(intrinsics, spatialmath.NewZeroTransform(), time.Unix(0, 0), depth)
	test.That(t, err, test.ShouldBeNil)

	all := df.LocalPointCloud(1.0)
	test.That(t, all.Len(), test.ShouldEqual, 4)
	// raster order, z is the depth in meters
	test.That(t, all[0].Z, test.ShouldAlmostEqual, 100, 1e-4)
	test.That(t, all[1].Z, test.ShouldAlmostEqual, 500, 1e-4)
	test.That(t, all[2].Z, test.ShouldAlmostEqual, 900, 1e-4)
	test.That(t, all[3].Z, test.ShouldAlmostEqual, 1000, 1e-4)

	// far readings drop out
	near := df.LocalPointCloud(0.5)
	test.That(t, near.Len(), test.ShouldEqual, 2)
	test.That(t, near[0].Z, test.ShouldAlmostEqual, 100, 1e-4)
	test.That(t, near[1].Z, test.ShouldAlmostEqual, 500, 1e-4)
}

func TestWorldPointCloudScenario(t *testing.T) {
	// a car 18m ahead of a camera at the origin fills the frame at uniform depth
	df := uniformDepthFrame(t, scenarioIntrinsics, spatialmath.NewZeroTransform(), 18.0/FarPlaneMeters)

	world := df.WorldPointCloud(1.0)
	test.That(t, world.Len(), test.ShouldEqual, 800*600)

	got := world[285*800+400]
	test.That(t, spatialmath.R3VectorAlmostEqual(got, r3.Vector{X: 18, Y: 0, Z: 0.675}, 1e-4), test.ShouldBeTrue)

	// the single-pixel path lands on the same spot
	fromPixel, err := df.WorldPointAt(image.Pt(400, 285))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(fromPixel, got, 1e-6), test.ShouldBeTrue)

	// every pixel is 18m out along the optical axis
	center := world[300*800+400]
	test.That(t, center.X, test.ShouldAlmostEqual, 18, 1e-4)
	test.That(t, center.Y, test.ShouldAlmostEqual, 0, 1e-4)
	test.That(t, center.Z, test.ShouldAlmostEqual, 0, 1e-4)
}

func TestWorldPointCloudMounted(t *testing.T) {
	intrinsics := Intrinsics{Width: 1, Height: 1, FOVDegrees: 90}
	pose := spatialmath.NewTransform(r3.Vector{X: 2, Y: 8, Z: 1.4}, spatialmath.Rotation{})
	df, err := NewDepthFrame(intrinsics, pose, time.Unix(0, 0), []float32{0.02})
	test.That(t, err, test.ShouldBeNil)

	world := df.WorldPointCloud(1.0)
	test.That(t, world.Len(), test.ShouldEqual, 1)
	test.That(t, spatialmath.R3VectorAlmostEqual(world[0], r3.Vector{X: 22, Y: -12, Z: 21.4}, 1e-4), test.ShouldBeTrue)

	fromPixel, err := df.WorldPointAt(image.Pt(0, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(fromPixel, world[0], 1e-6), test.ShouldBeTrue)
}

func TestDepthRecovery(t *testing.T) {
	// projecting world points back through the inverse pose recovers the depth
	pose := spatialmath.NewTransform(r3.Vector{X: 2, Y: 8, Z: 1.4}, spatialmath.Rotation{Yaw: 30})
	intrinsics := Intrinsics{Width: 4, Height: 4, FOVDegrees: 90}
	df := uniformDepthFrame(t, intrinsics, pose, 0.018)

	toWorld := spatialmath.CameraToWorld(pose)
	toCamera, err := toWorld.Invert()
	test.That(t, err, test.ShouldBeNil)

	for _, p := range df.WorldPointCloud(1.0) {
		local := toCamera.TransformPoint(p)
		test.That(t, local.Z, test.ShouldAlmostEqual, 18, 1e-4)
	}
}
