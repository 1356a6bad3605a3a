package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/veldra/mdcore/pkg/errs"
)

// Backend names a MasterRegistry backend kind.
type Backend string

const (
	// BackendMaster is a file-backed Master (pkg/master, mmap'd).
	BackendMaster Backend = "master"
	// BackendMemory is an in-memory equivalent with no backing files,
	// useful for tests and ephemeral stores.
	BackendMemory Backend = "memory"
)

// Descriptor is one store's configuration, as loaded from a single YAML
// file in a registry directory.
type Descriptor struct {
	Name         string  `yaml:"name"`
	RecordLayout string  `yaml:"record_layout"`
	Backend      Backend `yaml:"backend"`
	BasePath     string  `yaml:"base_path"`

	Capacity           uint64 `yaml:"capacity"`
	RecordSize         int    `yaml:"record_size"`
	BucketCount        uint64 `yaml:"bucket_count"`
	PrimaryKeyLength   int    `yaml:"primary_key_length"`
	SecondaryKeyLength int    `yaml:"secondary_key_length"`
	DisableLocking     bool   `yaml:"disable_locking"`
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor missing required field name: %w", errs.InvalidParameter)
	}

	if d.Backend != BackendMaster && d.Backend != BackendMemory {
		return fmt.Errorf("descriptor %q: unknown backend %q: %w", d.Name, d.Backend, errs.InvalidParameter)
	}

	if d.Capacity < 1 {
		return fmt.Errorf("descriptor %q missing required field capacity: %w", d.Name, errs.InvalidParameter)
	}

	if d.RecordSize < 1 {
		return fmt.Errorf("descriptor %q missing required field record_size: %w", d.Name, errs.InvalidParameter)
	}

	if d.PrimaryKeyLength < 1 {
		return fmt.Errorf("descriptor %q missing required field primary_key_length: %w", d.Name, errs.InvalidParameter)
	}

	if d.Backend == BackendMaster && d.BasePath == "" {
		return fmt.Errorf("descriptor %q: backend=master requires base_path: %w", d.Name, errs.InvalidParameter)
	}

	if d.BucketCount < 1 {
		return fmt.Errorf("descriptor %q missing required field bucket_count: %w", d.Name, errs.InvalidParameter)
	}

	return nil
}

// loadDescriptors parses every *.yaml/*.yml file in directory and rejects
// duplicate logical names.
func loadDescriptors(directory string) (map[string]Descriptor, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("read directory %q: %w", directory, joinFileError(err))
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	result := make(map[string]Descriptor, len(names))

	for _, name := range names {
		path := filepath.Join(directory, name)

		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read descriptor %q: %w", path, joinFileError(err))
		}

		var d Descriptor
		if err := yaml.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("parse descriptor %q: %w", path, errs.InvalidParameter)
		}

		if err := d.validate(); err != nil {
			return nil, err
		}

		if _, exists := result[d.Name]; exists {
			return nil, fmt.Errorf("duplicate descriptor name %q: %w", d.Name, errs.Duplicate)
		}

		result[d.Name] = d
	}

	return result, nil
}

func joinFileError(err error) error {
	return fmt.Errorf("%w: %v", errs.FileError, err)
}
