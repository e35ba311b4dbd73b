package viz

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
	"go.uber.org/multierr"

	"github.com/ICGog/erdos/camera"
	"github.com/ICGog/erdos/utils"
)

// Ends of the depth ramp, dark violet near through yellow far.
var (
	depthNear = colorful.Color{R: 68.0 / 255, G: 1.0 / 255, B: 84.0 / 255}
	depthFar  = colorful.Color{R: 253.0 / 255, G: 231.0 / 255, B: 37.0 / 255}
)

// logDepthScale compresses a linear normalized depth the way simulator depth
// viewers do, so the first meters of a kilometer far plane stay visible.
const logDepthScale = 5.70378

func logNormalize(n float64) float64 {
	if n <= 0 {
		return 0
	}
	return utils.Clamp(1+math.Log(n)/logDepthScale, 0, 1)
}

// DepthImage colorizes a depth frame on a logarithmic ramp.
func DepthImage(df *camera.DepthFrame) *image.NRGBA {
	w, h := df.Width(), df.Height()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n, err := df.NormalizedAt(image.Pt(x, y))
			if err != nil {
				continue
			}
			r, g, b := depthNear.BlendLuv(depthFar, logNormalize(n)).Clamped().RGB255()
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

// SavePNG writes the image to path.
func SavePNG(img image.Image, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return png.Encode(f, img)
}
