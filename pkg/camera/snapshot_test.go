package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func pngBytes(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSnapshotSource(t *testing.T) {
	body := pngBytes(t, color.RGBA{R: 5, G: 6, B: 7, A: 255})
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Backend = BackendSnapshot
	cfg.URL = srv.URL
	cfg.Framerate = 50
	src := NewSnapshotSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := src.StartPreview(ctx); err != nil {
		t.Fatalf("StartPreview: %v", err)
	}

	f := waitFrame(t, src)
	if f.Width != 4 || f.Pix[0] != 5 || f.Pix[2] != 7 {
		t.Errorf("frame: %dx%d %v", f.Width, f.Height, f.Pix[:4])
	}
	if hits.Load() == 0 {
		t.Error("endpoint never polled")
	}
}

func TestSnapshotSource_StartTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "camera offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Backend = BackendSnapshot
	cfg.URL = srv.URL
	cfg.StartTimeout = 50 * time.Millisecond
	src := NewSnapshotSource(cfg, nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	err := src.StartPreview(ctx)
	if !errors.Is(err, ErrStartTimeout) {
		t.Errorf("got %v, want ErrStartTimeout", err)
	}
	var de *DeviceError
	if !errors.As(err, &de) || de.Op != "preview" {
		t.Errorf("got %v, want preview *DeviceError", err)
	}
}

func TestSnapshotSource_BadScheme(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendSnapshot
	cfg.URL = "rtsp://cam.local/stream"

	if err := NewSnapshotSource(cfg, nil).Open(context.Background()); err == nil {
		t.Error("expected error for rtsp url")
	}
}
