// Package config loads wire engine settings from YAML and turns them into
// the extension offer and stream options the rest of the module consumes.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vitalvas/wswire/deflate"
	"github.com/vitalvas/wswire/stream"
)

var ErrNoConfigFile = errors.New("config: no config file")

const (
	defaultBufferSize       = 4096
	defaultCompressionLevel = deflate.DefaultCompressionLevel
)

// Compression configures the permessage-deflate offer for new connections.
type Compression struct {
	// Enabled controls whether connections offer permessage-deflate at
	// all.
	Enabled bool `yaml:"enabled"`

	// Level is the flate compression level for outgoing messages.
	Level int `yaml:"level"`

	// NoContextTakeover asks to reset the outgoing compression window
	// after every message, trading ratio for per-connection memory.
	NoContextTakeover bool `yaml:"no_context_takeover"`

	// RequestServerNoContextTakeover asks the server to do the same for
	// its direction.
	RequestServerNoContextTakeover bool `yaml:"request_server_no_context_takeover"`

	// MaxWindowBits caps the outgoing LZ77 window at 2^bits bytes.
	// 0 leaves the window unconstrained; otherwise 8 through 15.
	MaxWindowBits int `yaml:"max_window_bits"`

	// ServerMaxWindowBits caps the server's window the same way.
	ServerMaxWindowBits int `yaml:"server_max_window_bits"`
}

// Config holds the tunable settings of the wire engine.
type Config struct {
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`

	Compression Compression `yaml:"compression"`
}

// New returns a Config with defaults applied and no compression offered.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoConfigFile, path)
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data, fills in defaults and validates the
// result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = defaultBufferSize
	}
	if cfg.WriteBufferSize == 0 {
		cfg.WriteBufferSize = defaultBufferSize
	}
	if cfg.Compression.Level == 0 {
		cfg.Compression.Level = defaultCompressionLevel
	}
}

// Validate checks field ranges.
func (cfg *Config) Validate() error {
	if cfg.ReadBufferSize < 0 {
		return fmt.Errorf("config: read_buffer_size must not be negative, got %d", cfg.ReadBufferSize)
	}
	if cfg.WriteBufferSize < 0 {
		return fmt.Errorf("config: write_buffer_size must not be negative, got %d", cfg.WriteBufferSize)
	}
	if err := validateLevel(cfg.Compression.Level); err != nil {
		return err
	}
	if err := validateWindowBits("max_window_bits", cfg.Compression.MaxWindowBits); err != nil {
		return err
	}
	return validateWindowBits("server_max_window_bits", cfg.Compression.ServerMaxWindowBits)
}

func validateLevel(level int) error {
	if level < deflate.MinCompressionLevel || level > deflate.MaxCompressionLevel {
		return fmt.Errorf("config: compression level must be between %d and %d, got %d",
			deflate.MinCompressionLevel, deflate.MaxCompressionLevel, level)
	}
	return nil
}

func validateWindowBits(field string, bits int) error {
	if bits != 0 && (bits < deflate.MinWindowBits || bits > deflate.MaxWindowBits) {
		return fmt.Errorf("config: %s must be between %d and %d, got %d",
			field, deflate.MinWindowBits, deflate.MaxWindowBits, bits)
	}
	return nil
}

// Offer returns the permessage-deflate parameters to send in the opening
// handshake, or nil when compression is disabled.
func (cfg *Config) Offer() *deflate.Parameters {
	if !cfg.Compression.Enabled {
		return nil
	}

	offer := &deflate.Parameters{
		ServerNoContextTakeover: cfg.Compression.RequestServerNoContextTakeover,
		ClientNoContextTakeover: cfg.Compression.NoContextTakeover,
	}
	if bits := cfg.Compression.MaxWindowBits; bits != 0 {
		offer.ClientMaxWindowBits = deflate.WindowBits{Present: true, HasValue: true, Bits: bits}
	}
	if bits := cfg.Compression.ServerMaxWindowBits; bits != 0 {
		offer.ServerMaxWindowBits = deflate.WindowBits{Present: true, HasValue: true, Bits: bits}
	}
	return offer
}

// StreamOptions builds the stream options for one connection. ext holds the
// parameters the handshake settled on, as returned by deflate.Negotiate;
// nil disables compression regardless of the offer.
func (cfg *Config) StreamOptions(ext *deflate.Parameters) *stream.Options {
	return &stream.Options{
		ReadBufferSize:   cfg.ReadBufferSize,
		WriteBufferSize:  cfg.WriteBufferSize,
		CompressionLevel: cfg.Compression.Level,
		Extension:        ext,
	}
}
