package lidar

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/ICGog/erdos/pointcloud"
	"github.com/ICGog/erdos/spatialmath"
)

func packPoints(points []r3.Vector) []byte {
	raw := make([]byte, 0, len(points)*BytesPerPoint)
	for _, p := range points {
		var buf [BytesPerPoint]byte
		binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.Z)))
		raw = append(raw, buf[:]...)
	}
	return raw
}

func TestNewFrameFromRaw(t *testing.T) {
	pose := spatialmath.NewZeroTransform()

	_, err := NewFrameFromRaw(nil, time.Unix(0, 0), nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pose")

	_, err = NewFrameFromRaw(pose, time.Unix(0, 0), make([]byte, 13))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "whole number of points")

	want := []r3.Vector{{X: 1.5, Y: -2.25, Z: 3.75}, {X: 0, Y: 0.5, Z: -18}}
	frame, err := NewFrameFromRaw(pose, time.Unix(0, 0), packPoints(want))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Size(), test.ShouldEqual, 2)

	got := frame.Points()
	for i := range want {
		test.That(t, spatialmath.R3VectorAlmostEqual(got[i], want[i], 1e-9), test.ShouldBeTrue)
	}

	// empty sweeps are fine
	empty, err := NewFrameFromRaw(pose, time.Unix(0, 0), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Size(), test.ShouldEqual, 0)
}

func TestFrameImmutable(t *testing.T) {
	pose := spatialmath.NewZeroTransform()
	src := pointcloud.Vectors{{X: 1, Y: 2, Z: 3}}
	frame, err := NewFrame(pose, time.Unix(0, 0), src)
	test.That(t, err, test.ShouldBeNil)

	src[0] = r3.Vector{X: 9, Y: 9, Z: 9}
	test.That(t, spatialmath.R3VectorAlmostEqual(frame.Points()[0], r3.Vector{X: 1, Y: 2, Z: 3}, 1e-9), test.ShouldBeTrue)

	out := frame.Points()
	out[0] = r3.Vector{X: 8, Y: 8, Z: 8}
	test.That(t, spatialmath.R3VectorAlmostEqual(frame.Points()[0], r3.Vector{X: 1, Y: 2, Z: 3}, 1e-9), test.ShouldBeTrue)
}

func TestWorldPoints(t *testing.T) {
	// a sensor on the roof at (2, 8, 1.4)
	pose := spatialmath.NewTransform(r3.Vector{X: 2, Y: 8, Z: 1.4}, spatialmath.Rotation{})
	frame, err := NewFrame(pose, time.Unix(0, 0), pointcloud.Vectors{{X: 1, Y: 2, Z: 3}})
	test.That(t, err, test.ShouldBeNil)

	world := frame.WorldPoints()
	test.That(t, world.Len(), test.ShouldEqual, 1)
	// sensor y points left and z points down
	test.That(t, spatialmath.R3VectorAlmostEqual(world[0], r3.Vector{X: 3, Y: 6, Z: -1.6}, 1e-9), test.ShouldBeTrue)

	// sensor-frame points are untouched
	test.That(t, spatialmath.R3VectorAlmostEqual(frame.Points()[0], r3.Vector{X: 1, Y: 2, Z: 3}, 1e-9), test.ShouldBeTrue)
}
