package classify

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
	"github.com/teslashibe/go-catcam/pkg/camera"
)

// Preprocess resizes the frame to the model's square input and writes the
// normalized tensor into dst, which must hold meta.InputElements() values.
// The frame is only read.
func Preprocess(f *camera.Frame, meta Metadata, dst []float32) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	size := meta.ImageSize
	if len(dst) != 3*size*size {
		return fmt.Errorf("classify: tensor holds %d values, need %d", len(dst), 3*size*size)
	}

	img, err := f.Image()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	rgba, ok := resized.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				rgba.Set(x, y, resized.At(x+resized.Bounds().Min.X, y+resized.Bounds().Min.Y))
			}
		}
	}

	// Source channel for each tensor channel.
	order := [3]int{0, 1, 2}
	if meta.ChannelOrder == "bgr" {
		order = [3]int{2, 1, 0}
	}

	plane := size * size
	for y := 0; y < size; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+4]
			idx := y*size + x
			for c := 0; c < 3; c++ {
				v := (float32(px[order[c]])*meta.Scale - meta.Mean[c]) / meta.Std[c]
				if meta.Layout == LayoutNHWC {
					dst[idx*3+c] = v
				} else {
					dst[c*plane+idx] = v
				}
			}
		}
	}
	return nil
}
