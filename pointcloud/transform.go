package pointcloud

import (
	"github.com/golang/geo/r3"

	"github.com/ICGog/erdos/spatialmath"
)

// ApplyTransform rigidly transforms every point in the cloud, returning a new
// cloud with the data of each point preserved.
func ApplyTransform(cloud PointCloud, t *spatialmath.Transform) (PointCloud, error) {
	out := NewWithPrealloc(cloud.Size())
	var err error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		err = out.Set(t.TransformPoint(p), d)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
