// Package config handles application configuration and setup
package config

import (
	"fmt"
	"os"

	"github.com/retroenv/flashpatch/internal/geometry"
	"github.com/retroenv/flashpatch/internal/options"
	"github.com/retroenv/retrogolib/log"
)

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}

// Geometry resolves the flash geometry selected by the program options.
// A profile file takes precedence over a device name.
func Geometry(opts options.Program) (geometry.Geometry, error) {
	if opts.Profile == "" {
		return geometry.Lookup(opts.Device)
	}

	file, err := os.Open(opts.Profile)
	if err != nil {
		return geometry.Geometry{}, fmt.Errorf("opening profile '%s': %w", opts.Profile, err)
	}
	defer func() {
		_ = file.Close()
	}()

	geo, err := geometry.Load(file)
	if err != nil {
		return geometry.Geometry{}, fmt.Errorf("loading profile '%s': %w", opts.Profile, err)
	}
	return geo, nil
}
