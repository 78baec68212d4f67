package camera

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/teslashibe/go-catcam/internal/httpc"
)

// SnapshotSource polls an HTTP endpoint that serves a still image per
// request (IP cameras, /snapshot.jpg style endpoints) at the configured
// framerate.
type SnapshotSource struct {
	cfg    Config
	logger *slog.Logger
	latest *LatestFrame
	client *http.Client

	mu      sync.Mutex
	opened  bool
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotSource creates a polling source for cfg.URL.
func NewSnapshotSource(cfg Config, logger *slog.Logger) *SnapshotSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotSource{
		cfg:    cfg,
		logger: logger,
		latest: NewLatestFrame(),
		client: httpc.Client,
	}
}

// Name returns "snapshot".
func (s *SnapshotSource) Name() string {
	return BackendSnapshot
}

// Open validates the endpoint URL.
func (s *SnapshotSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return deviceError(BackendSnapshot, "open", ErrClosed)
	}
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return deviceError(BackendSnapshot, "open", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return deviceError(BackendSnapshot, "open", fmt.Errorf("unsupported url scheme %q", u.Scheme))
	}
	s.opened = true
	return nil
}

// StartPreview starts polling and waits for the first image.
func (s *SnapshotSource) StartPreview(ctx context.Context) error {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return deviceError(BackendSnapshot, "preview", ErrNotOpen)
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.latest.Reset(time.Now())
	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.poll(pollCtx, s.done)
	s.mu.Unlock()

	if err := s.latest.WaitReady(ctx, s.cfg.StartTimeout); err != nil {
		s.Stop()
		return deviceError(BackendSnapshot, "preview", err)
	}
	s.logger.Info("polling snapshots", "url", s.cfg.URL, "interval", s.cfg.FrameInterval())
	return nil
}

func (s *SnapshotSource) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := s.cfg.FrameInterval()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.fetch(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fetch grabs one image. Failures are only logged; a dead endpoint shows
// up as a stall in CaptureFrame.
func (s *SnapshotSource) fetch(ctx context.Context) {
	data, err := httpc.Fetch(ctx, s.client, s.cfg.URL)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("snapshot fetch failed", "error", err)
		}
		return
	}
	f, err := DecodeFrame(data, time.Now())
	if err != nil {
		s.logger.Debug("snapshot decode failed", "error", err)
		return
	}
	s.latest.Put(f)
}

// CaptureFrame returns the newest snapshot not yet handed out.
func (s *SnapshotSource) CaptureFrame(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil, captureError(BackendSnapshot, ErrNotOpen)
	}

	f, err := s.latest.Take(s.cfg.StallTimeout, time.Now())
	if err != nil {
		return nil, captureError(BackendSnapshot, err)
	}
	return f, nil
}

// Stop stops polling.
func (s *SnapshotSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.running = false
	s.opened = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Close stops the source for good.
func (s *SnapshotSource) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// Stats returns frame counters.
func (s *SnapshotSource) Stats() SourceStats {
	received, delivered := s.latest.Counts()
	s.mu.Lock()
	defer s.mu.Unlock()
	return SourceStats{
		FramesDelivered: delivered,
		FramesReceived:  received,
		Running:         s.running,
		Backend:         BackendSnapshot,
	}
}
