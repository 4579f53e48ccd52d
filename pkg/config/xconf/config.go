package xconf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format identifies a configuration file format.
type Format string

const (
	// FormatYAML is the default format.
	FormatYAML Format = "yaml"
	// FormatJSON is supported for environments that template JSON.
	FormatJSON Format = "json"
)

// Loading and parsing errors.
var (
	// ErrEmptyPath signals an empty config path.
	ErrEmptyPath = errors.New("xconf: empty config path")

	// ErrUnsupportedFormat signals an unknown file extension or format.
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")

	// ErrLoadFailed signals an unreadable config source.
	ErrLoadFailed = errors.New("xconf: failed to load config")

	// ErrParseFailed signals malformed config content.
	ErrParseFailed = errors.New("xconf: failed to parse config")

	// ErrUnmarshalFailed signals a config/struct mismatch.
	ErrUnmarshalFailed = errors.New("xconf: failed to unmarshal config")

	// ErrNotReloadable rejects Reload/Watch on byte-backed configs.
	ErrNotReloadable = errors.New("xconf: config was not loaded from a file")
)

// Config is a loaded configuration source. Basic key access goes through
// the koanf instance from Client; this interface adds typed unmarshaling
// and concurrency-safe reload on top.
type Config interface {
	// Client returns the underlying koanf instance.
	Client() *koanf.Koanf

	// Unmarshal decodes the subtree at path into target; an empty path
	// decodes the whole configuration.
	Unmarshal(path string, target any) error

	// Reload re-reads the file the config was loaded from. It fails
	// with ErrNotReloadable for byte-backed configs.
	Reload() error

	// Path returns the source file path, empty for byte-backed configs.
	Path() string

	// Format returns the source format.
	Format() Format
}

type koanfConfig struct {
	mu     sync.RWMutex
	k      *koanf.Koanf
	path   string
	format Format
	opts   *Options
}

// New loads a config file, detecting the format from the extension
// (.yaml/.yml or .json).
func New(path string, opts ...Option) (Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	k := koanf.New(options.Delim)
	if err := loadData(k, data, format); err != nil {
		return nil, err
	}
	return &koanfConfig{k: k, path: path, format: format, opts: options}, nil
}

// NewFromBytes loads config from raw bytes with an explicit format,
// for sources like Kubernetes ConfigMaps. Empty data yields an empty
// config, mirroring New on an empty file.
func NewFromBytes(data []byte, format Format, opts ...Option) (Config, error) {
	if !validFormat(format) {
		return nil, ErrUnsupportedFormat
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	k := koanf.New(options.Delim)
	if len(data) > 0 {
		if err := loadData(k, data, format); err != nil {
			return nil, err
		}
	}
	return &koanfConfig{k: k, format: format, opts: options}, nil
}

func (c *koanfConfig) Client() *koanf.Koanf {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.k
}

func (c *koanfConfig) Unmarshal(path string, target any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	err := c.k.UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: c.opts.Tag})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

func (c *koanfConfig) Reload() error {
	if c.path == "" {
		return ErrNotReloadable
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	// Parse into a fresh instance so a bad file never clobbers the
	// currently served config.
	fresh := koanf.New(c.opts.Delim)
	if err := loadData(fresh, data, c.format); err != nil {
		return err
	}

	c.mu.Lock()
	c.k = fresh
	c.mu.Unlock()
	return nil
}

func (c *koanfConfig) Path() string {
	return c.path
}

func (c *koanfConfig) Format() Format {
	return c.format
}

func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func validFormat(format Format) bool {
	return format == FormatYAML || format == FormatJSON
}

func loadData(k *koanf.Koanf, data []byte, format Format) error {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return ErrUnsupportedFormat
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}
