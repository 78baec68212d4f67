package camera

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// imageExts are the file extensions the dir backend picks up.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// IsImageFile reports whether path has a supported image extension.
func IsImageFile(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// DecodeFrame decodes a JPEG, PNG, BMP or WebP image into an RGBA frame.
func DecodeFrame(data []byte, at time.Time) (*Frame, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	f := FrameFromImage(img, at)
	if f.Width == 0 || f.Height == 0 {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}
	return f, nil
}

// DecodeFile reads and decodes an image file.
func DecodeFile(path string) (*Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeFrame(data, time.Now())
}
