package camera

import (
	"context"
	"io"
)

// Source abstracts a live video device.
//
// The lifecycle is Open, StartPreview, any number of CaptureFrame calls, then
// Stop. A stopped source may be opened again; Close releases it for good.
type Source interface {
	// Name returns the backend name (e.g., "opencv", "dir", "mock").
	Name() string

	// Open acquires the device. Failures are *DeviceError.
	Open(ctx context.Context) error

	// StartPreview begins streaming and waits, bounded by the configured
	// start timeout, until the device has produced its first frame.
	// Failures are *DeviceError.
	StartPreview(ctx context.Context) error

	// CaptureFrame returns the newest frame not yet handed out.
	// It returns (nil, nil) when no new frame is ready; callers retry.
	// It never blocks on the device. Failures are *CaptureError.
	CaptureFrame(ctx context.Context) (*Frame, error)

	// Stop halts streaming and releases the device.
	// It is safe to call Stop multiple times.
	Stop() error

	// Close releases all resources.
	// After Close, the source cannot be reopened.
	io.Closer
}

// SourceStats contains statistics about a frame source.
type SourceStats struct {
	// FramesDelivered counts frames returned by CaptureFrame.
	FramesDelivered int64 `json:"frames_delivered"`

	// FramesReceived counts frames produced by the device.
	FramesReceived int64 `json:"frames_received"`

	// Running indicates the source is open and previewing.
	Running bool `json:"running"`

	// Backend is the name of the backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
