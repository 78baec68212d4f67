package camera

import (
	"image"
	"image/color"
	"testing"
	"time"
)

func TestNewFrame_CopiesBuffer(t *testing.T) {
	pix := []byte{1, 2, 3, 4, 5, 6}
	f, err := NewFrame(FormatRGB24, 2, 1, 0, pix, time.Now())
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}

	pix[0] = 99
	if f.Pix[0] != 1 {
		t.Errorf("frame shares caller buffer: got %d, want 1", f.Pix[0])
	}
	if f.Stride != 6 {
		t.Errorf("Stride: got %d, want 6", f.Stride)
	}
}

func TestNewFrame_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		format PixelFormat
		w, h   int
		stride int
		n      int
	}{
		{"unknown format", "yuv", 2, 2, 0, 16},
		{"zero width", FormatRGB24, 0, 2, 0, 16},
		{"short stride", FormatRGB24, 4, 1, 6, 12},
		{"short buffer", FormatRGBA, 2, 2, 0, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFrame(tt.format, tt.w, tt.h, tt.stride, make([]byte, tt.n), time.Now()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFrame_Image(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{"bgr24", SolidFrame(FormatBGR24, 3, 2, 30, 20, 10)},
		{"rgb24", SolidFrame(FormatRGB24, 3, 2, 10, 20, 30)},
		{"rgba", SolidFrame(FormatRGBA, 3, 2, 10, 20, 30)},
	}

	want := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := append([]byte(nil), tt.frame.Pix...)

			img, err := tt.frame.Image()
			if err != nil {
				t.Fatalf("Image failed: %v", err)
			}
			if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
				t.Errorf("bounds: got %v", img.Bounds())
			}
			if got := img.RGBAAt(2, 1); got != want {
				t.Errorf("pixel: got %v, want %v", got, want)
			}
			for i := range before {
				if before[i] != tt.frame.Pix[i] {
					t.Fatal("Image modified the frame")
				}
			}
		})
	}
}

func TestFrameFromImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 9, 8))
	src.Set(5, 5, color.NRGBA{R: 200, A: 255})

	f := FrameFromImage(src, time.Now())
	if f.Width != 4 || f.Height != 3 {
		t.Fatalf("size: got %dx%d, want 4x3", f.Width, f.Height)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if f.Pix[0] != 200 {
		t.Errorf("origin pixel red: got %d, want 200", f.Pix[0])
	}
}

func TestFrame_Clone(t *testing.T) {
	f := SolidFrame(FormatRGB24, 2, 2, 1, 2, 3)
	c := f.Clone()
	c.Pix[0] = 42
	if f.Pix[0] != 1 {
		t.Error("Clone shares pixel buffer")
	}
}
