package camera

import (
	"image"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// nearZeroDepthMeters stands in for a zero depth reading when probing where
// the conversion places the camera itself.
const nearZeroDepthMeters = 0.001

// ProbeResult records where each conversion path places a single pixel.
type ProbeResult struct {
	Pixel       image.Point
	DepthMeters float64

	// FromPixel is the world position computed for the pixel alone, by
	// inverting the intrinsic matrix.
	FromPixel r3.Vector
	// FromCloud is the world position the full point cloud conversion
	// computed for the same pixel.
	FromCloud r3.Vector
	// NearCamera is the world position computed for the pixel with a
	// near-zero depth.
	NearCamera r3.Vector
	// CameraOrigin is where the camera actually sits.
	CameraOrigin r3.Vector
}

// Divergence returns the distance between the two conversion paths.
func (pr ProbeResult) Divergence() float64 {
	return pr.FromPixel.Distance(pr.FromCloud)
}

// OriginOffset returns how far the near-zero conversion landed from the camera.
func (pr ProbeResult) OriginOffset() float64 {
	return pr.NearCamera.Distance(pr.CameraOrigin)
}

// Report is the outcome of cross-checking a depth frame's conversion paths
// against each other at a set of probe pixels.
type Report struct {
	Tolerance float64
	Probes    []ProbeResult
}

// CrossCheck runs every conversion path over the given probe pixels of a depth
// frame and reports where they land. Paths that differ by more than tolerance
// meters indicate a broken conversion.
func CrossCheck(df *DepthFrame, probes []image.Point, tolerance float64) (*Report, error) {
	if tolerance <= 0 {
		return nil, errors.Errorf("tolerance must be positive, got %f", tolerance)
	}
	if len(probes) == 0 {
		return nil, errors.New("need at least one probe pixel")
	}

	world := df.WorldPointCloud(1.0)
	if len(world) != df.Width()*df.Height() {
		return nil, errors.New("frame has depth readings beyond the far plane")
	}

	intrinsics := df.Intrinsics()
	origin := df.Pose().Translation()
	report := &Report{Tolerance: tolerance, Probes: make([]ProbeResult, 0, len(probes))}
	for _, p := range probes {
		depthMeters, err := df.MetersAt(p)
		if err != nil {
			return nil, err
		}
		fromPixel, err := df.WorldPointAt(p)
		if err != nil {
			return nil, err
		}
		nearCamera, err := intrinsics.PixelToWorld(float64(p.X), float64(p.Y), nearZeroDepthMeters, df.Pose())
		if err != nil {
			return nil, err
		}
		report.Probes = append(report.Probes, ProbeResult{
			Pixel:        p,
			DepthMeters:  depthMeters,
			FromPixel:    fromPixel,
			FromCloud:    world[p.Y*df.Width()+p.X],
			NearCamera:   nearCamera,
			CameraOrigin: origin,
		})
	}
	return report, nil
}

// Consistent reports whether every probe's conversion paths agree within the
// report's tolerance.
func (r *Report) Consistent() bool {
	for _, pr := range r.Probes {
		if pr.Divergence() > r.Tolerance || pr.OriginOffset() > r.Tolerance {
			return false
		}
	}
	return true
}

// DivergenceStats summarizes the divergences across all probes.
func (r *Report) DivergenceStats() (mean, stddev, max float64, err error) {
	divergences := make(stats.Float64Data, len(r.Probes))
	for i, pr := range r.Probes {
		divergences[i] = pr.Divergence()
	}
	if mean, err = stats.Mean(divergences); err != nil {
		return 0, 0, 0, err
	}
	if stddev, err = stats.StandardDeviation(divergences); err != nil {
		return 0, 0, 0, err
	}
	if max, err = stats.Max(divergences); err != nil {
		return 0, 0, 0, err
	}
	return mean, stddev, max, nil
}

// Log writes the report out through the given logger, one line per probe plus
// a summary line.
func (r *Report) Log(logger golog.Logger) {
	for _, pr := range r.Probes {
		logger.Infow("probe",
			"pixel", pr.Pixel,
			"depth_m", pr.DepthMeters,
			"from_pixel", pr.FromPixel,
			"from_cloud", pr.FromCloud,
			"divergence_m", pr.Divergence(),
			"origin_offset_m", pr.OriginOffset(),
		)
	}
	mean, stddev, max, err := r.DivergenceStats()
	if err != nil {
		logger.Errorw("cannot summarize divergences", "error", err)
		return
	}
	logger.Infow("cross-check summary",
		"probes", len(r.Probes),
		"consistent", r.Consistent(),
		"tolerance_m", r.Tolerance,
		"divergence_mean_m", mean,
		"divergence_stddev_m", stddev,
		"divergence_max_m", max,
	)
}
