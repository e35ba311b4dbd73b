package camera

import (
	"image"
	"time"

	"github.com/pkg/errors"

	"github.com/ICGog/erdos/spatialmath"
)

// Frame is a single color image from a simulated camera, kept in the
// simulator's BGRA wire encoding until converted. A frame is immutable once
// constructed.
type Frame struct {
	width      int
	height     int
	pose       *spatialmath.Transform
	capturedAt time.Time
	bgra       []byte
}

// NewFrame returns a color frame over the given BGRA data.
func NewFrame(width, height int, pose *spatialmath.Transform, capturedAt time.Time, bgra []byte) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid frame size (%d, %d)", width, height)
	}
	if len(bgra) != width*height*4 {
		return nil, errors.Errorf("expected %d bytes of BGRA data for a %dx%d frame, got %d",
			width*height*4, width, height, len(bgra))
	}
	data := make([]byte, len(bgra))
	copy(data, bgra)
	return &Frame{width: width, height: height, pose: pose, capturedAt: capturedAt, bgra: data}, nil
}

// Width returns the width of the frame in pixels.
func (f *Frame) Width() int {
	return f.width
}

// Height returns the height of the frame in pixels.
func (f *Frame) Height() int {
	return f.height
}

// Pose returns the pose of the camera at capture time, if known.
func (f *Frame) Pose() *spatialmath.Transform {
	return f.pose
}

// CapturedAt returns the simulation time the frame was captured at.
func (f *Frame) CapturedAt() time.Time {
	return f.capturedAt
}

// Image converts the frame into a standard image.
func (f *Frame) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.width, f.height))
	for i := 0; i < f.width*f.height; i++ {
		img.Pix[i*4] = f.bgra[i*4+2]
		img.Pix[i*4+1] = f.bgra[i*4+1]
		img.Pix[i*4+2] = f.bgra[i*4]
		img.Pix[i*4+3] = 255
	}
	return img
}
