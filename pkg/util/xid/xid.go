package xid

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/sony/sonyflake/v2"
)

var (
	// ErrInvalidConfig signals an invalid generator configuration,
	// including sonyflake machine-ID validation failures.
	ErrInvalidConfig = errors.New("xid: invalid config")

	// ErrNilGenerator signals a nil or zero-value Generator.
	// Always construct generators through NewGenerator.
	ErrNilGenerator = errors.New("xid: nil generator (use NewGenerator to create)")

	// ErrInvalidID signals a non-positive ID passed to Parse.
	ErrInvalidID = errors.New("xid: invalid id")
)

// Generator produces Sonyflake IDs: 63-bit, time-ordered, unique per
// machine. Used for durable row IDs (usage records, fallback records)
// where a sortable numeric key beats a random UUID.
//
// All methods are safe for concurrent use.
type Generator struct {
	sf *sonyflake.Sonyflake
	// nextID defaults to sf.NextID; replaceable in tests.
	nextID func() (int64, error)
}

// Option configures a Generator.
type Option func(*settings)

type settings struct {
	machineID func() (int, error)
}

// WithMachineID overrides machine-ID acquisition. The default derives the
// ID from the host's private IPv4 address.
func WithMachineID(fn func() (int, error)) Option {
	return func(s *settings) {
		if fn != nil {
			s.machineID = fn
		}
	}
}

// NewGenerator creates an independent ID generator.
//
// Independent instances keep tests isolated and allow injection; there is
// deliberately no package-level default generator.
func NewGenerator(opts ...Option) (*Generator, error) {
	var cfg settings
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	sfSettings := sonyflake.Settings{}
	if cfg.machineID != nil {
		sfSettings.MachineID = cfg.machineID
	}

	sf, err := sonyflake.New(sfSettings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	g := &Generator{sf: sf}
	g.nextID = sf.NextID
	return g, nil
}

// New returns the next ID.
func (g *Generator) New() (int64, error) {
	if g == nil || g.nextID == nil {
		return 0, ErrNilGenerator
	}
	id, err := g.nextID()
	if err != nil {
		return 0, fmt.Errorf("xid: generate: %w", err)
	}
	return id, nil
}

// NewString returns the next ID in decimal string form.
func (g *Generator) NewString() (string, error) {
	id, err := g.New()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// Parse converts a decimal ID string back to its numeric form.
func Parse(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	return id, nil
}
