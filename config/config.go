// Package config holds the run configuration of the emulator CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/S-YOU/nsemu/cache"
	"github.com/S-YOU/nsemu/loader"
)

// DefaultLoadAddress is where raw images are loaded when none is given.
const DefaultLoadAddress = 0x400000

// Config holds everything needed to load an image and run it.
type Config struct {
	// Entry overrides the image entry point when non-zero.
	Entry uint64 `json:"entry,omitempty"`

	// LoadAddress is the base of raw images. ELF images carry their own
	// addresses. Default: 0x400000.
	LoadAddress uint64 `json:"load_address"`

	// StackTop is the initial stack pointer. Default: loader.DefaultStackTop.
	StackTop uint64 `json:"stack_top"`

	// StackSize is the size of the stack mapped below StackTop. Default: 8MB.
	StackSize uint64 `json:"stack_size"`

	// MaxInstructions stops the run after this many instructions. Zero
	// means no limit.
	MaxInstructions uint64 `json:"max_instructions"`

	// Debug enables per-cycle tracing.
	Debug bool `json:"debug"`

	// ICache configures the optional instruction cache.
	ICache ICacheConfig `json:"icache"`

	// Color enables colored CLI output.
	Color bool `json:"color"`
}

// ICacheConfig enables a cache in front of memory and sets its geometry.
type ICacheConfig struct {
	Enabled bool `json:"enabled"`
	cache.Config
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() *Config {
	return &Config{
		LoadAddress: DefaultLoadAddress,
		StackTop:    loader.DefaultStackTop,
		StackSize:   loader.DefaultStackSize,
		ICache: ICacheConfig{
			Config: cache.DefaultL1IConfig(),
		},
	}
}

// LoadConfig loads a Config from a JSON file. Fields absent from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks addresses and sizes for consistency.
func (c *Config) Validate() error {
	if c.Entry&3 != 0 {
		return fmt.Errorf("entry 0x%x must be 4-byte aligned", c.Entry)
	}
	if c.LoadAddress&3 != 0 {
		return fmt.Errorf("load_address 0x%x must be 4-byte aligned", c.LoadAddress)
	}
	if c.StackTop&15 != 0 {
		return fmt.Errorf("stack_top 0x%x must be 16-byte aligned", c.StackTop)
	}
	if c.StackSize > c.StackTop {
		return fmt.Errorf("stack_size 0x%x exceeds stack_top 0x%x", c.StackSize, c.StackTop)
	}
	if c.ICache.Enabled {
		if err := c.ICache.Validate(); err != nil {
			return fmt.Errorf("icache: %w", err)
		}
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
