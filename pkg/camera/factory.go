package camera

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory builds a Source for a validated config.
type Factory func(cfg Config, logger *slog.Logger) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		BackendDir: func(cfg Config, logger *slog.Logger) (Source, error) {
			return NewDirSource(cfg, logger), nil
		},
		BackendSnapshot: func(cfg Config, logger *slog.Logger) (Source, error) {
			return NewSnapshotSource(cfg, logger), nil
		},
		BackendMock: func(cfg Config, logger *slog.Logger) (Source, error) {
			return NewMockSource(cfg), nil
		},
	}
)

// RegisterBackend makes a backend available to NewSource.
// Device backends that need cgo call it from init.
func RegisterBackend(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSource creates a new frame source with the given configuration.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs)
	}

	if logger == nil {
		logger = slog.Default()
	}

	registryMu.RLock()
	factory, ok := registry[cfg.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}

	logger.Info("creating frame source",
		"backend", cfg.Backend,
		"width", cfg.Width,
		"height", cfg.Height,
		"framerate", cfg.Framerate,
	)

	return factory(cfg, logger.With("component", "camera", "backend", cfg.Backend))
}
