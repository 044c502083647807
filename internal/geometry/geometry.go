// Package geometry describes the static layout and timing of supported NOR
// flash devices.
package geometry

import (
	"errors"
	"fmt"
	"time"
)

// DefaultBankSize is the size of the CPU memory window the backup flash is
// mapped into. Larger devices are split into banks of this size.
const DefaultBankSize = 0x10000

var (
	errSectorShift = errors.New("sector size does not match sector shift")
	errRomSize     = errors.New("sector size multiplied by sector count does not match rom size")
	errSectorCount = errors.New("sector count must be even to form two partitions")
	errBankSize    = errors.New("rom size is not a multiple of the bank size")
	errPartition   = errors.New("partition too small for a header and a frame")
)

// MinPartitionSize is the smallest half of a device that holds a journal
// header and one frame.
const MinPartitionSize = 32

// Sector describes the erase unit of a device.
type Sector struct {
	Size  uint32 `yaml:"size"`
	Shift uint8  `yaml:"shift"`
	Count uint16 `yaml:"count"`
}

// Budget bounds how long the status poller waits for an operation to finish.
// Spins is the number of status samples, Timeout an optional wall clock
// deadline. If both are set the first one to run out ends the wait.
type Budget struct {
	Spins   int           `yaml:"spins"`
	Timeout time.Duration `yaml:"timeout"`
}

// Timing contains the per phase wait budgets.
type Timing struct {
	Program   Budget `yaml:"program"`
	Erase     Budget `yaml:"erase"`
	ChipErase Budget `yaml:"chip_erase"`
}

// IDs are the identity bytes reported by the chip in identify mode.
type IDs struct {
	Maker  byte `yaml:"maker"`
	Device byte `yaml:"device"`
}

// Geometry is the static configuration descriptor of a flash device.
// It is supplied once per target device and never mutated.
type Geometry struct {
	Name     string    `yaml:"name"`
	RomSize  uint32    `yaml:"rom_size"`
	Sector   Sector    `yaml:"sector"`
	BankSize uint32    `yaml:"bank_size"`
	Timing   Timing    `yaml:"timing"`
	Wait     [2]uint16 `yaml:"wait"`
	IDs      IDs       `yaml:"ids"`
}

// Validate checks the descriptor for internal consistency.
func (g Geometry) Validate() error {
	if g.Sector.Size == 0 || g.Sector.Size != 1<<g.Sector.Shift {
		return fmt.Errorf("%s: %w", g.Name, errSectorShift)
	}
	if g.Sector.Size*uint32(g.Sector.Count) != g.RomSize {
		return fmt.Errorf("%s: %w", g.Name, errRomSize)
	}
	if g.Sector.Count == 0 || g.Sector.Count%2 != 0 {
		return fmt.Errorf("%s: %w", g.Name, errSectorCount)
	}
	if g.BankSize == 0 || g.RomSize%g.BankSize != 0 || g.BankSize%g.Sector.Size != 0 {
		return fmt.Errorf("%s: %w", g.Name, errBankSize)
	}
	if g.PartitionSize() < MinPartitionSize {
		return fmt.Errorf("%s: %w", g.Name, errPartition)
	}
	return nil
}

// SectorOf returns the sector containing the given device address.
func (g Geometry) SectorOf(address uint32) uint16 {
	return uint16(address >> g.Sector.Shift)
}

// SectorBase returns the device address of the first byte of a sector.
func (g Geometry) SectorBase(sector uint16) uint32 {
	return uint32(sector) << g.Sector.Shift
}

// Banks returns the number of banks the device is split into.
func (g Geometry) Banks() int {
	if g.BankSize == 0 || g.RomSize <= g.BankSize {
		return 1
	}
	return int(g.RomSize / g.BankSize)
}

// Multibank returns whether the device is larger than a single CPU window.
func (g Geometry) Multibank() bool {
	return g.Banks() > 1
}

// SectorsPerBank returns how many sectors are visible through one window.
func (g Geometry) SectorsPerBank() uint16 {
	if !g.Multibank() {
		return g.Sector.Count
	}
	return uint16(g.BankSize >> g.Sector.Shift)
}

// BankOf returns the bank a sector lives in.
func (g Geometry) BankOf(sector uint16) uint8 {
	return uint8(sector / g.SectorsPerBank())
}

// Window translates an absolute device address into a bank number and the
// offset inside the mapped window.
func (g Geometry) Window(address uint32) (bank uint8, offset uint32) {
	if !g.Multibank() {
		return 0, address
	}
	return uint8(address / g.BankSize), address % g.BankSize
}

// PartitionSize returns the size of one journal partition, half of the device.
func (g Geometry) PartitionSize() uint32 {
	return g.RomSize / 2
}

// String returns a human readable summary of the geometry.
func (g Geometry) String() string {
	return fmt.Sprintf("%s: %d KiB, %d sectors of %d bytes, %d bank(s), id %02X:%02X",
		g.Name, g.RomSize/1024, g.Sector.Count, g.Sector.Size, g.Banks(), g.IDs.Maker, g.IDs.Device)
}
