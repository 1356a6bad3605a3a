// Package registry implements MasterRegistry: a directory of per-store YAML
// descriptors, lazily instantiated and cached by logical name.
package registry

import (
	"fmt"
	"sync"

	"github.com/veldra/mdcore/pkg/errs"
)

// Registry holds descriptors loaded from a directory and the live handles
// opened from them so far.
type Registry struct {
	mu          sync.Mutex
	descriptors map[string]Descriptor
	handles     map[string]Handle
	lastErr     string
}

// LoadFrom parses every descriptor file in directory. Duplicate logical
// names, or descriptors missing required fields, fail the load.
func LoadFrom(directory string) (*Registry, error) {
	descriptors, err := loadDescriptors(directory)
	if err != nil {
		return nil, err
	}

	return &Registry{
		descriptors: descriptors,
		handles:     make(map[string]Handle),
	}, nil
}

// Open lazily instantiates and initializes the named store's backend, and
// caches the handle for subsequent calls. NotFound if name has no
// descriptor.
func (r *Registry) Open(name string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[name]; ok {
		return h, nil
	}

	d, ok := r.descriptors[name]
	if !ok {
		err := fmt.Errorf("no descriptor named %q: %w", name, errs.NotFound)
		r.lastErr = err.Error()

		return nil, err
	}

	h, err := openBackend(d)
	if err != nil {
		wrapped := fmt.Errorf("open store %q: %w", name, err)
		r.lastErr = wrapped.Error()

		return nil, wrapped
	}

	r.handles[name] = h

	return h, nil
}

// Close releases the cached handle for name, if any, closing its backing
// files. A no-op if name was never opened.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[name]
	if !ok {
		return nil
	}

	delete(r.handles, name)

	if err := h.Close(); err != nil {
		r.lastErr = err.Error()
		return err
	}

	return nil
}

// CloseAll releases every cached handle, collecting the first error
// encountered but attempting to close all of them.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	names := make([]string, 0, len(r.handles))

	for name := range r.handles {
		names = append(names, name)
	}
	r.mu.Unlock()

	var firstErr error

	for _, name := range names {
		if err := r.Close(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Descriptors returns the logical names of every loaded descriptor.
func (r *Registry) Descriptors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}

	return names
}

// LastError returns the most recent error message recorded by Open or
// Close, or "" if none has occurred. Supplemented from
// HashMaster/MasterManager.cpp's per-registry last-error string, useful for
// CLI diagnostics.
func (r *Registry) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastErr
}
