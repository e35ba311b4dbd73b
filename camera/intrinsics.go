// Package camera models the simulator's pinhole cameras and converts their
// depth output into 3D world positions.
package camera

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/ICGog/erdos/spatialmath"
	erdosutils "github.com/ICGog/erdos/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsics not found")

// NewNoIntrinsicsError is used when the intrinsics are not defined or are unusable.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrapf(ErrNoIntrinsics, "%s", msg)
}

// Intrinsics holds the parameters necessary to project between a simulated
// camera's 2D image plane and 3D space. The simulator describes a camera by
// its resolution and horizontal field of view; focal length and principal
// point derive from those.
type Intrinsics struct {
	Width      int     `json:"width_px"`
	Height     int     `json:"height_px"`
	FOVDegrees float64 `json:"fov_degs"`
}

// CheckValid checks if the fields for Intrinsics have valid inputs.
func (params *Intrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.FOVDegrees <= 0 || params.FOVDegrees >= 180 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid field of view %#v, must be within (0, 180)", params.FOVDegrees))
	}
	return nil
}

// NewIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into Intrinsics.
func NewIntrinsicsFromJSONFile(jsonPath string) (*Intrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &Intrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return intrinsics, nil
}

// FocalLength returns the focal length in pixels. The simulator uses square
// pixels, so the vertical focal length equals the horizontal one.
func (params *Intrinsics) FocalLength() float64 {
	return float64(params.Width) / (2 * math.Tan(erdosutils.DegToRad(params.FOVDegrees)/2))
}

// PrincipalPoint returns the principal point of the image plane, its center.
func (params *Intrinsics) PrincipalPoint() (float64, float64) {
	return float64(params.Width) / 2, float64(params.Height) / 2
}

// Matrix returns the 3x3 intrinsic matrix of the camera.
func (params *Intrinsics) Matrix() *mat.Dense {
	f := params.FocalLength()
	ppx, ppy := params.PrincipalPoint()
	return mat.NewDense(3, 3, []float64{
		f, 0, ppx,
		0, f, ppy,
		0, 0, 1,
	})
}

// PixelToPoint transforms a pixel with depth to a 3D point in the camera frame,
// where x points right in the image, y points down, and z points out the lens.
// The intrinsics parameters should be the ones of the sensor used to obtain the
// image that contains the pixel.
func (params *Intrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	f := params.FocalLength()
	ppx, ppy := params.PrincipalPoint()
	xOverZ := (x - ppx) / f
	yOverZ := (y - ppy) / f
	return xOverZ * z, yOverZ * z, z
}

// PointToPixel projects a 3D point in the camera frame to a pixel in the image plane.
// The intrinsics parameters should be the ones of the sensor we want to project to.
func (params *Intrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z != 0. {
		f := params.FocalLength()
		ppx, ppy := params.PrincipalPoint()
		xPx := math.Round((x/z)*f + ppx)
		yPx := math.Round((y/z)*f + ppy)
		return xPx, yPx
	}
	// if depth is zero at this pixel, return negative coordinates so that the cropping to image bounds will filter it out
	return -1.0, -1.0
}

// PixelToWorld transforms a pixel with a depth reading in meters to a 3D world
// position, given the pose of the camera that took the image. The pixel does
// not have to lie within the image bounds. As depth goes to zero the result
// converges to the camera's position.
func (params *Intrinsics) PixelToWorld(x, y, depthMeters float64, pose *spatialmath.Transform) (r3.Vector, error) {
	if err := params.CheckValid(); err != nil {
		return r3.Vector{}, err
	}
	if depthMeters < 0 {
		return r3.Vector{}, errors.Errorf("depth must be non-negative, got %f", depthMeters)
	}
	px, py, pz := params.PixelToPoint(x, y, depthMeters)
	return spatialmath.CameraToWorld(pose).TransformPoint(r3.Vector{X: px, Y: py, Z: pz}), nil
}
