package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetVGA     = "vga"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetLowFPS  = "lowfps"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetVGA:     VGAConfig(),
		Preset720p:    HD720Config(),
		Preset1080p:   HD1080Config(),
		PresetLowFPS:  LowFPSConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetVGA,
		Preset720p,
		Preset1080p,
		PresetLowFPS,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// ApplyPreset copies the preset's geometry onto cfg, keeping the backend,
// device and timeouts. It returns false for unknown presets.
func ApplyPreset(cfg *Config, name string) bool {
	p := GetPreset(name)
	if p == nil {
		return false
	}
	cfg.Width = p.Width
	cfg.Height = p.Height
	cfg.Framerate = p.Framerate
	return true
}

// VGAConfig returns 640x480 at 30 FPS.
func VGAConfig() Config {
	return DefaultConfig()
}

// HD720Config returns 720p HD configuration.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// HD1080Config returns 1080p Full HD configuration.
// Most USB webcams drop to 15 FPS or lower at this size.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	cfg.Framerate = 15
	return cfg
}

// LowFPSConfig returns VGA at 5 FPS for slow CPUs.
func LowFPSConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 5
	cfg.StallTimeout = 3 * cfg.StallTimeout
	return cfg
}
