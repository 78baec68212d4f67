package classify

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Tensor layouts.
const (
	LayoutNCHW = "nchw"
	LayoutNHWC = "nhwc"
)

// DefaultImageSize is the square input size used when metadata is silent.
const DefaultImageSize = 224

// Metadata describes a model's input and output tensors. It is read from a
// JSON sidecar next to the artifact (CatModel.onnx -> CatModel.json), or
// from a labels.txt with one class per line.
type Metadata struct {
	InputName   string    `json:"input_name"`
	OutputName  string    `json:"output_name"`
	InputShape  []int64   `json:"input_shape"`
	OutputShape []int64   `json:"output_shape"`
	Classes     []string  `json:"classes"`
	ImageSize   int       `json:"image_size"`
	Layout      string    `json:"layout"`
	Mean        []float32 `json:"mean"`
	Std         []float32 `json:"std"`

	// Scale multiplies raw 0-255 pixel values before mean/std.
	// Defaults to 1/255; Custom Vision exports want 1.
	Scale float32 `json:"scale"`

	// ChannelOrder is "rgb" (default) or "bgr".
	ChannelOrder string `json:"channel_order"`
}

// LoadMetadata reads the sidecar for artifactPath and fills defaults.
// A missing sidecar yields defaults with no class names.
func LoadMetadata(artifactPath string) (Metadata, error) {
	var meta Metadata

	base := strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath))
	jsonPath := base + ".json"
	data, err := os.ReadFile(jsonPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &meta); err != nil {
			return Metadata{}, fmt.Errorf("%w: %s: %v", ErrBadMetadata, jsonPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
		labels, lerr := readLabels(filepath.Join(filepath.Dir(artifactPath), "labels.txt"))
		if lerr != nil && !errors.Is(lerr, os.ErrNotExist) {
			return Metadata{}, fmt.Errorf("%w: %v", ErrBadMetadata, lerr)
		}
		meta.Classes = labels
	default:
		return Metadata{}, fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}

	meta.ApplyDefaults()
	if err := meta.Validate(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func readLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	return labels, sc.Err()
}

// ApplyDefaults fills unset fields.
func (m *Metadata) ApplyDefaults() {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	m.Layout = strings.ToLower(m.Layout)
	if m.Layout == "" {
		m.Layout = LayoutNCHW
	}
	if m.ImageSize == 0 && len(m.InputShape) == 4 {
		if m.Layout == LayoutNHWC {
			m.ImageSize = int(m.InputShape[1])
		} else {
			m.ImageSize = int(m.InputShape[2])
		}
	}
	if m.ImageSize == 0 {
		m.ImageSize = DefaultImageSize
	}
	if len(m.InputShape) == 0 {
		s := int64(m.ImageSize)
		if m.Layout == LayoutNHWC {
			m.InputShape = []int64{1, s, s, 3}
		} else {
			m.InputShape = []int64{1, 3, s, s}
		}
	}
	if len(m.OutputShape) == 0 && len(m.Classes) > 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
	if len(m.Mean) == 0 {
		m.Mean = []float32{0, 0, 0}
	}
	if len(m.Std) == 0 {
		m.Std = []float32{1, 1, 1}
	}
	if m.Scale == 0 {
		m.Scale = 1.0 / 255
	}
	m.ChannelOrder = strings.ToLower(m.ChannelOrder)
	if m.ChannelOrder == "" {
		m.ChannelOrder = "rgb"
	}
}

// Validate checks the metadata is usable for a 3-channel square input.
func (m *Metadata) Validate() error {
	bad := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrBadMetadata, fmt.Sprintf(format, args...))
	}

	if m.Layout != LayoutNCHW && m.Layout != LayoutNHWC {
		return bad("layout must be %s or %s, got %q", LayoutNCHW, LayoutNHWC, m.Layout)
	}
	if m.ChannelOrder != "rgb" && m.ChannelOrder != "bgr" {
		return bad("channel_order must be rgb or bgr, got %q", m.ChannelOrder)
	}
	if m.ImageSize <= 0 {
		return bad("image_size must be positive")
	}
	if len(m.InputShape) != 4 {
		return bad("input_shape must have 4 dimensions, got %v", m.InputShape)
	}
	want := []int64{1, 3, int64(m.ImageSize), int64(m.ImageSize)}
	if m.Layout == LayoutNHWC {
		want = []int64{1, int64(m.ImageSize), int64(m.ImageSize), 3}
	}
	for i := range want {
		if m.InputShape[i] != want[i] {
			return bad("input_shape %v does not match %s image_size %d", m.InputShape, m.Layout, m.ImageSize)
		}
	}
	if len(m.Mean) != 3 || len(m.Std) != 3 {
		return bad("mean and std need 3 values")
	}
	for _, s := range m.Std {
		if s == 0 {
			return bad("std must not contain zero")
		}
	}
	if len(m.OutputShape) > 0 {
		n := m.OutputElements()
		if n <= 0 {
			return bad("output_shape %v has no elements", m.OutputShape)
		}
		if len(m.Classes) > n {
			return bad("%d classes but output has %d values", len(m.Classes), n)
		}
	}
	return nil
}

// InputElements returns the number of float32 values in the input tensor.
func (m *Metadata) InputElements() int {
	return elements(m.InputShape)
}

// OutputElements returns the number of float32 values in the output tensor.
func (m *Metadata) OutputElements() int {
	return elements(m.OutputShape)
}

func elements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
