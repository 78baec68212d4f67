package camera

import (
	"fmt"
	"image"
	"time"

	"golang.org/x/image/draw"
)

// PixelFormat names the memory layout of Frame.Pix.
type PixelFormat string

const (
	// FormatBGR24 is 8-bit blue, green, red (OpenCV's native order).
	FormatBGR24 PixelFormat = "bgr24"
	// FormatRGB24 is 8-bit red, green, blue.
	FormatRGB24 PixelFormat = "rgb24"
	// FormatRGBA is 8-bit red, green, blue, alpha (image.RGBA layout).
	FormatRGBA PixelFormat = "rgba"
)

// BytesPerPixel returns the pixel size for the format, or 0 if unknown.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatBGR24, FormatRGB24:
		return 3
	case FormatRGBA:
		return 4
	default:
		return 0
	}
}

// Frame is an immutable snapshot of one captured image.
// Sources always hand out a private copy; nothing may write to Pix afterwards.
type Frame struct {
	Format     PixelFormat
	Width      int
	Height     int
	Stride     int // bytes per row
	Pix        []byte
	CapturedAt time.Time
	Seq        uint64 // per-source sequence number, starting at 1
}

// NewFrame copies pix into a new frame. stride 0 means tightly packed rows.
func NewFrame(format PixelFormat, width, height, stride int, pix []byte, at time.Time) (*Frame, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("camera: unknown pixel format %q", format)
	}
	if stride == 0 {
		stride = width * bpp
	}
	f := &Frame{
		Format:     format,
		Width:      width,
		Height:     height,
		Stride:     stride,
		CapturedAt: at,
	}
	if err := f.validate(len(pix)); err != nil {
		return nil, err
	}
	f.Pix = make([]byte, stride*height)
	copy(f.Pix, pix[:stride*height])
	return f, nil
}

// FrameFromImage converts any image into an RGBA frame.
func FrameFromImage(img image.Image, at time.Time) *Frame {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Frame{
		Format:     FormatRGBA,
		Width:      rgba.Rect.Dx(),
		Height:     rgba.Rect.Dy(),
		Stride:     rgba.Stride,
		Pix:        rgba.Pix,
		CapturedAt: at,
	}
}

// Validate checks that the frame's geometry matches its buffer.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("camera: nil frame")
	}
	return f.validate(len(f.Pix))
}

func (f *Frame) validate(n int) error {
	bpp := f.Format.BytesPerPixel()
	switch {
	case bpp == 0:
		return fmt.Errorf("camera: unknown pixel format %q", f.Format)
	case f.Width <= 0 || f.Height <= 0:
		return fmt.Errorf("camera: invalid frame size %dx%d", f.Width, f.Height)
	case f.Stride < f.Width*bpp:
		return fmt.Errorf("camera: stride %d too small for width %d", f.Stride, f.Width)
	case n < f.Stride*f.Height:
		return fmt.Errorf("camera: buffer holds %d bytes, need %d", n, f.Stride*f.Height)
	}
	return nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = make([]byte, len(f.Pix))
	copy(c.Pix, f.Pix)
	return &c
}

// Image converts the frame to a new RGBA image. The frame is not modified.
func (f *Frame) Image() (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	bpp := f.Format.BytesPerPixel()
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Stride : y*f.Stride+f.Width*bpp]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		switch f.Format {
		case FormatRGBA:
			copy(dst, src)
		case FormatRGB24:
			for x := 0; x < f.Width; x++ {
				dst[x*4+0] = src[x*3+0]
				dst[x*4+1] = src[x*3+1]
				dst[x*4+2] = src[x*3+2]
				dst[x*4+3] = 0xff
			}
		case FormatBGR24:
			for x := 0; x < f.Width; x++ {
				dst[x*4+0] = src[x*3+2]
				dst[x*4+1] = src[x*3+1]
				dst[x*4+2] = src[x*3+0]
				dst[x*4+3] = 0xff
			}
		}
	}
	return img, nil
}

// Age returns how long ago the frame was captured.
func (f *Frame) Age() time.Duration {
	return time.Since(f.CapturedAt)
}
