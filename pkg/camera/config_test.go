package camera

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("default config invalid: %v", errs)
	}
	if cfg.FrameInterval() != time.Second/30 {
		t.Errorf("FrameInterval: got %v", cfg.FrameInterval())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"default", func(c *Config) {}, true},
		{"mock backend", func(c *Config) { c.Backend = BackendMock; c.Device = "" }, true},
		{"dir without dir", func(c *Config) { c.Backend = BackendDir }, false},
		{"dir with dir", func(c *Config) { c.Backend = BackendDir; c.Dir = "/tmp" }, true},
		{"snapshot without url", func(c *Config) { c.Backend = BackendSnapshot }, false},
		{"unknown backend", func(c *Config) { c.Backend = "v4l3" }, false},
		{"opencv without device", func(c *Config) { c.Device = "" }, false},
		{"width too small", func(c *Config) { c.Width = 100 }, false},
		{"height too large", func(c *Config) { c.Height = 5000 }, false},
		{"zero framerate", func(c *Config) { c.Framerate = 0 }, false},
		{"zero start timeout", func(c *Config) { c.StartTimeout = 0 }, false},
		{"stall disabled", func(c *Config) { c.StallTimeout = 0 }, true},
		{"negative stall", func(c *Config) { c.StallTimeout = -time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			errs := cfg.Validate()
			if tt.valid && len(errs) > 0 {
				t.Errorf("expected valid, got %v", errs)
			}
			if !tt.valid && len(errs) == 0 {
				t.Error("expected validation errors")
			}
		})
	}
}

func TestPresets_AllValid(t *testing.T) {
	presets := Presets()
	for _, name := range PresetNames() {
		cfg, ok := presets[name]
		if !ok {
			t.Errorf("preset %q listed but missing", name)
			continue
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
	if GetPreset("nope") != nil {
		t.Error("GetPreset: expected nil for unknown preset")
	}
}

func TestApplyPreset_KeepsBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendDir
	cfg.Dir = "/srv/frames"

	if !ApplyPreset(&cfg, Preset720p) {
		t.Fatal("ApplyPreset returned false")
	}
	if cfg.Width != 1280 || cfg.Height != 720 {
		t.Errorf("geometry: got %dx%d, want 1280x720", cfg.Width, cfg.Height)
	}
	if cfg.Backend != BackendDir || cfg.Dir != "/srv/frames" {
		t.Errorf("backend changed: %s %s", cfg.Backend, cfg.Dir)
	}
}

func TestManager_UpdateConfig(t *testing.T) {
	m := NewManager(DefaultConfig())

	var applied []Config
	m.OnConfigChange = func(cfg Config) error {
		applied = append(applied, cfg)
		return nil
	}

	err := m.UpdateConfig(map[string]interface{}{
		"preset":        Preset1080p,
		"framerate":     float64(10),
		"stall_timeout": "500ms",
		"device":        float64(2),
	})
	if err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	cfg := m.GetConfig()
	if cfg.Width != 1920 || cfg.Framerate != 10 {
		t.Errorf("got %dx%d@%d, want 1920x1080@10", cfg.Width, cfg.Height, cfg.Framerate)
	}
	if cfg.StallTimeout != 500*time.Millisecond {
		t.Errorf("StallTimeout: got %v, want 500ms", cfg.StallTimeout)
	}
	if cfg.Device != "2" {
		t.Errorf("Device: got %q, want \"2\"", cfg.Device)
	}
	if len(applied) != 1 {
		t.Errorf("OnConfigChange calls: got %d, want 1", len(applied))
	}
}

func TestManager_RejectsInvalid(t *testing.T) {
	m := NewManager(DefaultConfig())
	called := false
	m.OnConfigChange = func(cfg Config) error {
		called = true
		return nil
	}

	if err := m.UpdateConfig(map[string]interface{}{"width": 10}); err == nil {
		t.Error("expected validation error")
	}
	if err := m.UpdateConfig(map[string]interface{}{"preset": "8k"}); err == nil {
		t.Error("expected unknown preset error")
	}
	if called {
		t.Error("OnConfigChange called for rejected update")
	}
	if m.GetConfig().Width != 640 {
		t.Errorf("config changed after rejected update: width %d", m.GetConfig().Width)
	}
}

func TestManager_CallbackError(t *testing.T) {
	m := NewManager(DefaultConfig())
	boom := errors.New("boom")
	m.OnConfigChange = func(cfg Config) error { return boom }

	err := m.SetConfig(LowFPSConfig())
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped boom", err)
	}
}

func TestManager_GetConfigJSON(t *testing.T) {
	m := NewManager(DefaultConfig())
	got := m.GetConfigJSON()

	if got["backend"] != BackendOpenCV {
		t.Errorf("backend: got %v", got["backend"])
	}
	if got["start_timeout"] != "5s" {
		t.Errorf("start_timeout: got %v, want 5s", got["start_timeout"])
	}
	if got["width"] != float64(640) {
		t.Errorf("width: got %v", got["width"])
	}
}

func TestNewSource_Registry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	src, err := NewSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	if src.Name() != BackendMock {
		t.Errorf("Name: got %q", src.Name())
	}

	cfg.Width = 1
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestNewSource_UnregisteredBackend(t *testing.T) {
	// opencv registers from its own package, which this test does not import.
	cfg := DefaultConfig()
	_, err := NewSource(cfg, nil)
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("got %v, want ErrUnknownBackend", err)
	}
}
