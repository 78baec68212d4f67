package camera

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Manager holds the current capture configuration and handles updates.
type Manager struct {
	config Config
	mu     sync.RWMutex

	// Callback when config changes (for rebuilding the source)
	OnConfigChange func(cfg Config) error
}

// NewManager creates a new camera manager with the given config.
func NewManager(cfg Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig updates the camera configuration.
func (m *Manager) SetConfig(cfg Config) error {
	if errors := cfg.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}

	return nil
}

// UpdateConfig updates specific fields of the configuration.
// Accepts a map of field names to values. A "preset" key is applied first
// so the remaining keys can override it.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if presetName, ok := params["preset"].(string); ok {
		if !ApplyPreset(&cfg, presetName) {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
	}

	for key, value := range params {
		switch key {
		case "backend":
			if v, ok := value.(string); ok {
				cfg.Backend = v
			}
		case "device":
			if v, ok := value.(string); ok {
				cfg.Device = v
			} else if v, ok := toInt(value); ok {
				cfg.Device = fmt.Sprint(v)
			}
		case "dir":
			if v, ok := value.(string); ok {
				cfg.Dir = v
			}
		case "url":
			if v, ok := value.(string); ok {
				cfg.URL = v
			}
		case "width":
			if v, ok := toInt(value); ok {
				cfg.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				cfg.Height = v
			}
		case "framerate":
			if v, ok := toInt(value); ok {
				cfg.Framerate = v
			}
		case "start_timeout":
			if v, ok := toDuration(value); ok {
				cfg.StartTimeout = v
			}
		case "stall_timeout":
			if v, ok := toDuration(value); ok {
				cfg.StallTimeout = v
			}
		}
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the current config as a map for JSON serialization.
// Timeouts are rendered as duration strings.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	cfg := m.GetConfig()

	data, _ := json.Marshal(cfg)
	var result map[string]interface{}
	_ = json.Unmarshal(data, &result)

	result["start_timeout"] = cfg.StartTimeout.String()
	result["stall_timeout"] = cfg.StallTimeout.String()
	return result
}

// Helper functions for type conversion

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// toDuration accepts "1.5s" style strings or a number of milliseconds.
func toDuration(v interface{}) (time.Duration, bool) {
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(s)
		return d, err == nil
	}
	if ms, ok := toInt(v); ok {
		return time.Duration(ms) * time.Millisecond, true
	}
	return 0, false
}
