// Package options contains the program options.
package options

import "github.com/retroenv/flashpatch/internal/geometry"

// Parameters contains file path options.
type Parameters struct {
	Image   string // flash image file, created when missing
	Profile string // YAML device profile file, overrides Device
}

// Flags contains behavior options.
type Flags struct {
	Device string // reference profile name
	Debug  bool
	Quiet  bool
}

// Program options of the flash tool.
type Program struct {
	Parameters
	Flags
}

// New returns the program options with default values.
func New() Program {
	return Program{
		Parameters: Parameters{
			Image: "flash.bin",
		},
		Flags: Flags{
			Device: geometry.Default,
		},
	}
}

// SRAMWrite contains the options of a byte range write.
type SRAMWrite struct {
	Offset    uint32
	File      string
	Unchecked bool
}

// SRAMRead contains the options of a byte range read.
type SRAMRead struct {
	Offset uint32
	Size   uint32
	Output string // file to write to, hex dump on stdout if empty
}
