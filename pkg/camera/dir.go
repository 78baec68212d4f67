package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirSource serves images written into a watched directory as frames.
// The newest image created or written in the directory is the current frame,
// which makes it a stand-in for a camera that drops JPEGs to disk (motion,
// ffmpeg -update, or a test harness).
type DirSource struct {
	cfg    Config
	logger *slog.Logger
	latest *LatestFrame

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	running  bool
	closed   bool
	stopping bool
	done     chan struct{}
}

// NewDirSource creates a directory-watching source for cfg.Dir.
func NewDirSource(cfg Config, logger *slog.Logger) *DirSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirSource{
		cfg:    cfg,
		logger: logger,
		latest: NewLatestFrame(),
	}
}

// Name returns "dir".
func (d *DirSource) Name() string {
	return BackendDir
}

// Open checks the directory and starts watching it.
func (d *DirSource) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return deviceError(BackendDir, "open", ErrClosed)
	}
	if d.watcher != nil {
		return nil
	}

	info, err := os.Stat(d.cfg.Dir)
	if err != nil {
		return deviceError(BackendDir, "open", err)
	}
	if !info.IsDir() {
		return deviceError(BackendDir, "open", fmt.Errorf("%s is not a directory", d.cfg.Dir))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return deviceError(BackendDir, "open", err)
	}
	if err := watcher.Add(d.cfg.Dir); err != nil {
		watcher.Close()
		return deviceError(BackendDir, "open", err)
	}
	d.watcher = watcher
	return nil
}

// StartPreview seeds the current frame with the newest image already in the
// directory and starts following new writes. An empty directory is not an
// error; captures report absent frames until an image arrives.
func (d *DirSource) StartPreview(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.watcher == nil {
		return deviceError(BackendDir, "preview", ErrNotOpen)
	}
	if d.running {
		return nil
	}

	d.latest.Reset(time.Now())
	if path := newestImage(d.cfg.Dir); path != "" {
		d.load(path)
	}

	d.running = true
	d.stopping = false
	d.done = make(chan struct{})
	go d.watch(d.watcher, d.done)

	d.logger.Info("watching directory for frames", "dir", d.cfg.Dir)
	return nil
}

func (d *DirSource) watch(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				d.lost()
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !IsImageFile(event.Name) {
				continue
			}
			d.load(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				d.lost()
				return
			}
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

// load decodes path into the latest-frame slot. Files caught mid-write fail
// to decode; the next Write event retries them.
func (d *DirSource) load(path string) {
	f, err := DecodeFile(path)
	if err != nil {
		d.logger.Debug("skipping image", "path", path, "error", err)
		return
	}
	d.latest.Put(f)
}

func (d *DirSource) lost() {
	d.mu.Lock()
	stopping := d.stopping
	d.mu.Unlock()
	if !stopping {
		d.latest.Fail(ErrDeviceLost)
	}
}

// CaptureFrame returns the newest image not yet handed out.
func (d *DirSource) CaptureFrame(ctx context.Context) (*Frame, error) {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		return nil, captureError(BackendDir, ErrNotOpen)
	}

	f, err := d.latest.Take(0, time.Now())
	if err != nil {
		return nil, captureError(BackendDir, err)
	}
	return f, nil
}

// Stop stops watching the directory.
func (d *DirSource) Stop() error {
	d.mu.Lock()
	watcher, done := d.watcher, d.done
	d.watcher = nil
	d.running = false
	d.stopping = true
	d.done = nil
	d.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	if done != nil {
		<-done
	}
	return err
}

// Close stops the source for good.
func (d *DirSource) Close() error {
	err := d.Stop()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return err
}

// Stats returns frame counters.
func (d *DirSource) Stats() SourceStats {
	received, delivered := d.latest.Counts()
	d.mu.Lock()
	defer d.mu.Unlock()
	return SourceStats{
		FramesDelivered: delivered,
		FramesReceived:  received,
		Running:         d.running,
		Backend:         BackendDir,
	}
}

// newestImage returns the most recently modified image in dir, or "".
func newestImage(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestAt time.Time
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestAt) {
			newest = filepath.Join(dir, e.Name())
			newestAt = info.ModTime()
		}
	}
	return newest
}
