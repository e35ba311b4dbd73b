package pointcloud

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/ICGog/erdos/spatialmath"
)

func TestApplyTransform(t *testing.T) {
	pc := New()
	test.That(t, pc.Set(NewVector(1, 0, 0), nil), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(0, 2, 0), NewColoredData(color.NRGBA{255, 0, 0, 255})), test.ShouldBeNil)

	shift := spatialmath.NewTransform(r3.Vector{X: 0, Y: 0, Z: 10}, spatialmath.Rotation{})
	moved, err := ApplyTransform(pc, shift)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moved.Size(), test.ShouldEqual, 2)
	test.That(t, CloudContains(moved, 1, 0, 10), test.ShouldBeTrue)
	test.That(t, CloudContains(moved, 0, 2, 10), test.ShouldBeTrue)

	// data rides along
	d, got := moved.At(0, 2, 10)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d.HasColor(), test.ShouldBeTrue)
	r, _, _ := d.RGB255()
	test.That(t, r, test.ShouldEqual, 255)

	// original is untouched
	test.That(t, CloudContains(pc, 1, 0, 0), test.ShouldBeTrue)

	yaw := spatialmath.NewTransform(r3.Vector{}, spatialmath.Rotation{Yaw: 90})
	spun, err := ApplyTransform(pc, yaw)
	test.That(t, err, test.ShouldBeNil)
	var found bool
	spun.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		if spatialmath.R3VectorAlmostEqual(p, r3.Vector{X: 0, Y: 1, Z: 0}, 1e-9) {
			found = true
			return false
		}
		return true
	})
	test.That(t, found, test.ShouldBeTrue)

	// two applications in sequence match one application of the composition
	first := spatialmath.NewTransform(r3.Vector{X: 1, Y: 2, Z: 3}, spatialmath.Rotation{Yaw: 90})
	second := spatialmath.NewTransform(r3.Vector{X: -4, Y: 0, Z: 5}, spatialmath.Rotation{Pitch: 45, Roll: 10})
	stepped, err := ApplyTransform(pc, first)
	test.That(t, err, test.ShouldBeNil)
	stepped, err = ApplyTransform(stepped, second)
	test.That(t, err, test.ShouldBeNil)
	composed, err := ApplyTransform(pc, spatialmath.Compose(second, first))
	test.That(t, err, test.ShouldBeNil)

	var steppedPts, composedPts Vectors
	stepped.Iterate(0, 0, func(p r3.Vector, _ Data) bool {
		steppedPts = append(steppedPts, p)
		return true
	})
	composed.Iterate(0, 0, func(p r3.Vector, _ Data) bool {
		composedPts = append(composedPts, p)
		return true
	})
	test.That(t, len(steppedPts), test.ShouldEqual, len(composedPts))
	for i := range steppedPts {
		test.That(t, spatialmath.R3VectorAlmostEqual(steppedPts[i], composedPts[i], 1e-9), test.ShouldBeTrue)
	}
}
