package backend

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrBackendNotFound   = errors.New("backend not found")
	ErrBackendRegistered = errors.New("backend already registered")
	ErrBackendInvalid    = errors.New("backend name is required")
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Backend{}
)

// Register adds a backend to the registry by name.
func Register(name string, backend Backend) error {
	if strings.TrimSpace(name) == "" {
		return ErrBackendInvalid
	}
	if backend == nil {
		return errors.New("backend is nil")
	}

	key := strings.ToLower(strings.TrimSpace(name))
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[key]; exists {
		return ErrBackendRegistered
	}

	registry[key] = backend
	return nil
}

// Get returns a backend by name.
func Get(name string) (Backend, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, false
	}

	registryMu.RLock()
	defer registryMu.RUnlock()

	backend, ok := registry[key]
	return backend, ok
}

// Resolve returns the backend registered under name, or DefaultName when
// name is empty, together with the normalized name.
func Resolve(name string) (Backend, string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultName()
	}
	instance, ok := Get(key)
	if !ok {
		return nil, key, fmt.Errorf("%w: %s (available: %s)", ErrBackendNotFound, key, strings.Join(Names(), ", "))
	}
	return instance, key, nil
}

// Names returns all registered backend names.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultName returns the default backend name.
func DefaultName() string {
	return "gemini"
}

// DefaultModel returns the first model a backend advertises.
func DefaultModel(b Backend) string {
	if b == nil {
		return ""
	}
	models := b.GetModels()
	if len(models) == 0 {
		return ""
	}
	return models[0]
}
