// Package opencv provides the gocv VideoCapture frame source.
//
// Importing the package registers the "opencv" backend with camera.NewSource.
package opencv

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-catcam/pkg/camera"
	"gocv.io/x/gocv"
)

// maxReadFailures is how many consecutive failed reads mean the device is gone.
const maxReadFailures = 50

func init() {
	camera.RegisterBackend(camera.BackendOpenCV, func(cfg camera.Config, logger *slog.Logger) (camera.Source, error) {
		return New(cfg, logger), nil
	})
}

// Source reads frames from a webcam, capture card, video file or stream URL.
// A reader goroutine pulls frames off the device as fast as it delivers
// them; CaptureFrame only ever looks at the newest one.
type Source struct {
	cfg    camera.Config
	logger *slog.Logger
	latest *camera.LatestFrame

	mu      sync.Mutex
	vc      *gocv.VideoCapture
	running bool
	closed  bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates an unopened OpenCV source.
func New(cfg camera.Config, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cfg:    cfg,
		logger: logger,
		latest: camera.NewLatestFrame(),
	}
}

// Name returns "opencv".
func (s *Source) Name() string {
	return camera.BackendOpenCV
}

// Open opens the device and applies the configured resolution and FPS.
// Numeric devices are camera indexes; anything else is passed to OpenCV
// as a path or URL.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.deviceError("open", camera.ErrClosed)
	}
	if s.vc != nil {
		return nil
	}

	var device interface{} = s.cfg.Device
	if idx, err := strconv.Atoi(s.cfg.Device); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return s.deviceError("open", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return s.deviceError("open", fmt.Errorf("device %s did not open", s.cfg.Device))
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(s.cfg.Framerate))

	s.logger.Info("video device opened",
		"device", s.cfg.Device,
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)),
		"fps", vc.Get(gocv.VideoCaptureFPS),
	)

	s.vc = vc
	return nil
}

// StartPreview starts the reader and waits for the first frame.
func (s *Source) StartPreview(ctx context.Context) error {
	s.mu.Lock()
	if s.vc == nil {
		s.mu.Unlock()
		return s.deviceError("preview", camera.ErrNotOpen)
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.latest.Reset(time.Now())
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	go s.readLoop(s.vc, s.stopCh, s.done)
	s.mu.Unlock()

	if err := s.latest.WaitReady(ctx, s.cfg.StartTimeout); err != nil {
		s.Stop()
		return s.deviceError("preview", err)
	}
	return nil
}

func (s *Source) readLoop(vc *gocv.VideoCapture, stopCh, done chan struct{}) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()
	bgr := gocv.NewMat()
	defer bgr.Close()

	failures := 0
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if ok := vc.Read(&mat); !ok || mat.Empty() {
			failures++
			if failures >= maxReadFailures {
				s.logger.Warn("video device stopped delivering frames", "failures", failures)
				s.latest.Fail(camera.ErrDeviceLost)
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0

		f, err := toFrame(mat, &bgr)
		if err != nil {
			s.logger.Debug("dropping frame", "error", err)
			continue
		}
		s.latest.Put(f)
	}
}

// toFrame copies a Mat into a BGR24 frame.
func toFrame(mat gocv.Mat, scratch *gocv.Mat) (*camera.Frame, error) {
	src := mat
	switch mat.Channels() {
	case 3:
	case 1:
		gocv.CvtColor(mat, scratch, gocv.ColorGrayToBGR)
		src = *scratch
	case 4:
		gocv.CvtColor(mat, scratch, gocv.ColorBGRAToBGR)
		src = *scratch
	default:
		return nil, fmt.Errorf("unsupported channel count %d", mat.Channels())
	}
	if src.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("unsupported mat type %v", src.Type())
	}

	// ToBytes returns a copy, so the frame never aliases the Mat.
	return camera.NewFrame(camera.FormatBGR24, src.Cols(), src.Rows(), 0, src.ToBytes(), time.Now())
}

// CaptureFrame returns the newest frame not yet handed out.
func (s *Source) CaptureFrame(ctx context.Context) (*camera.Frame, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil, &camera.CaptureError{Backend: camera.BackendOpenCV, Err: camera.ErrNotOpen}
	}

	f, err := s.latest.Take(s.cfg.StallTimeout, time.Now())
	if err != nil {
		return nil, &camera.CaptureError{Backend: camera.BackendOpenCV, Err: err}
	}
	return f, nil
}

// Stop stops the reader and releases the device.
func (s *Source) Stop() error {
	s.mu.Lock()
	vc, stopCh, done := s.vc, s.stopCh, s.done
	s.vc, s.stopCh, s.done = nil, nil, nil
	s.running = false
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}
	if vc == nil {
		return nil
	}
	s.logger.Info("video device released", "device", s.cfg.Device)
	return vc.Close()
}

// Close stops the source for good.
func (s *Source) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// Stats returns frame counters.
func (s *Source) Stats() camera.SourceStats {
	received, delivered := s.latest.Counts()
	s.mu.Lock()
	defer s.mu.Unlock()
	return camera.SourceStats{
		FramesDelivered: delivered,
		FramesReceived:  received,
		Running:         s.running,
		Backend:         camera.BackendOpenCV,
	}
}

func (s *Source) deviceError(op string, err error) error {
	return &camera.DeviceError{Backend: camera.BackendOpenCV, Op: op, Err: err}
}
