package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNotOpen is returned when capturing before Open and StartPreview.
	ErrNotOpen = errors.New("camera: device not open")

	// ErrStalled is returned when the device delivered no frame within the stall timeout.
	ErrStalled = errors.New("camera: device stalled")

	// ErrDeviceLost is returned when the device reader can no longer deliver frames.
	ErrDeviceLost = errors.New("camera: device lost")

	// ErrClosed is returned when using a source after Close.
	ErrClosed = errors.New("camera: source closed")

	// ErrUnknownBackend is returned by NewSource for unregistered backends.
	ErrUnknownBackend = errors.New("camera: unknown backend")

	// ErrStartTimeout is returned when no first frame arrives after StartPreview.
	ErrStartTimeout = errors.New("camera: timed out waiting for first frame")
)

// DeviceError is a failure to acquire or start the device.
// The capture loop treats it as unrecoverable.
type DeviceError struct {
	Backend string
	Op      string // "open" or "preview"
	Err     error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera [%s]: %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// CaptureError is a failure to deliver a single frame.
type CaptureError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	return fmt.Sprintf("camera [%s]: capture: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *CaptureError) Unwrap() error {
	return e.Err
}

// IsDeviceFailure reports whether err means the device is gone for good.
func IsDeviceFailure(err error) bool {
	var de *DeviceError
	return errors.As(err, &de) || errors.Is(err, ErrDeviceLost) || errors.Is(err, ErrClosed)
}

func deviceError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Backend: backend, Op: op, Err: err}
}

func captureError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &CaptureError{Backend: backend, Err: err}
}
