// Package manifest handles strtab.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/strtab/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "strtab.toml"

// Manifest represents a strtab.toml configuration.
type Manifest struct {
	Runtime Runtime `toml:"runtime"`
	Strings Strings `toml:"strings"`
	Heap    Heap    `toml:"heap"`
	GC      GC      `toml:"gc"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the strtab.toml file (set at load time).
	Dir string `toml:"-"`
}

// Runtime configures the host runtime.
type Runtime struct {
	// Seed fixes the string hash seed; nil lets the VM pick one.
	Seed *uint32 `toml:"seed"`
}

// Strings configures the string table.
type Strings struct {
	InitialCapacity int `toml:"initial-capacity"`
}

// Heap configures the allocator.
type Heap struct {
	MaxBytes int `toml:"max-bytes"`
}

// GC configures the background collector.
type GC struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no strtab.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Strings.InitialCapacity <= 0 {
		m.Strings.InitialCapacity = vm.DefaultTableCapacity
	}
	if m.GC.Interval.Duration <= 0 {
		m.GC.Interval.Duration = vm.DefaultGCInterval
	}
}

// Load parses a strtab.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if m.Strings.InitialCapacity < 0 {
		return nil, fmt.Errorf("%s: strings.initial-capacity must not be negative", path)
	}
	if m.Heap.MaxBytes < 0 {
		return nil, fmt.Errorf("%s: heap.max-bytes must not be negative", path)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a strtab.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// VMConfig converts the manifest into a vm.Config.
func (m *Manifest) VMConfig() vm.Config {
	return vm.Config{
		Seed:          m.Runtime.Seed,
		TableCapacity: m.Strings.InitialCapacity,
		MaxHeapBytes:  m.Heap.MaxBytes,
		GCInterval:    m.GC.Interval.Duration,
		GCEnabled:     m.GC.Enabled,
	}
}

// LogPath returns the configured log file, or nil for stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.Path == "" {
		return nil
	}
	p := m.Log.Path
	if !filepath.IsAbs(p) && m.Dir != "" {
		p = filepath.Join(m.Dir, p)
	}
	return &p
}
