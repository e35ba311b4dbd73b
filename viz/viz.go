// Package viz renders point clouds and camera frames into shareable
// artifacts: self-contained HTML viewers, bird's-eye plots and images.
// Sinks only; nothing here feeds back into the pipeline.
package viz

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ICGog/erdos/pointcloud"
)

// viridis colors every height-mapped artifact.
var viridis = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// maxScatterPoints bounds the embedded data; a full camera raster would
// otherwise swell the page past what browsers render smoothly.
const maxScatterPoints = 50000

// WriteCloudHTML renders the cloud as a rotatable 3D scatter page, colored
// by height. Clouds larger than maxScatterPoints are downsampled by stride.
func WriteCloudHTML(cloud pointcloud.PointCloud, title string, out io.Writer) error {
	if cloud == nil || cloud.Size() == 0 {
		return errors.New("cannot render an empty cloud")
	}

	stride := 1
	if cloud.Size() > maxScatterPoints {
		stride = (cloud.Size() + maxScatterPoints - 1) / maxScatterPoints
	}
	data := make([]opts.Chart3DData, 0, cloud.Size()/stride+1)
	nth := 0
	cloud.Iterate(0, 0, func(p r3.Vector, _ pointcloud.Data) bool {
		if nth%stride == 0 {
			data = append(data, opts.Chart3DData{Value: []interface{}{p.X, p.Y, p.Z}})
		}
		nth++
		return true
	})

	meta := cloud.MetaData()
	minZ, maxZ := meta.MinZ, meta.MaxZ
	if maxZ == minZ {
		// A flat cloud still needs a nonzero color range.
		maxZ = minZ + 1
	}

	scatter := charts.NewScatter3D()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d of %d points", len(data), cloud.Size()),
		}),
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "x (m)", Show: opts.Bool(true)}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "y (m)", Show: opts.Bool(true)}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "z (m)", Show: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minZ),
			Max:        float32(maxZ),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("points", data)
	return scatter.Render(out)
}
