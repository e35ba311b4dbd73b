package viz

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/ICGog/erdos/pointcloud"
)

// WriteBirdsEye saves a top-down scatter of the cloud's x/y extent. The
// output format follows the file extension.
func WriteBirdsEye(cloud pointcloud.PointCloud, title, path string) error {
	if cloud == nil || cloud.Size() == 0 {
		return errors.New("cannot plot an empty cloud")
	}

	xys := make(plotter.XYs, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, _ pointcloud.Data) bool {
		xys = append(xys, plotter.XY{X: p.X, Y: p.Y})
		return true
	})

	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "x (m)"
	pl.Y.Label.Text = "y (m)"
	pl.Add(plotter.NewGrid())

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return errors.Wrap(err, "cannot build scatter")
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(1)
	pl.Add(scatter)

	return pl.Save(8*vg.Inch, 8*vg.Inch, path)
}
