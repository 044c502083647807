// Package sector implements read-modify-write of arbitrary byte ranges on a
// flash device whose erase unit is a whole sector.
package sector

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/retroenv/flashpatch/internal/flash"
	"github.com/retroenv/flashpatch/internal/geometry"
	"github.com/retroenv/retrogolib/log"
)

// ErrOutOfRange is returned for writes that do not fit into the device.
var ErrOutOfRange = errors.New("range exceeds device size")

// VerifyError is returned by a checked write when a byte could not be
// programmed after all attempts.
type VerifyError struct {
	Address uint32 // absolute device address of the first unverified byte
	Err     error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verifying address 0x%05X: %v", e.Address, e.Err)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// Writer overlays byte ranges onto flash sectors.
type Writer struct {
	logger   *log.Logger
	driver   *flash.Driver
	geometry geometry.Geometry
	scratch  []byte // one sector
}

// New returns a sector writer using the given driver.
func New(logger *log.Logger, driver *flash.Driver) *Writer {
	geo := driver.Geometry()
	return &Writer{
		logger:   logger,
		driver:   driver,
		geometry: geo,
		scratch:  make([]byte, geo.Sector.Size),
	}
}

// chunk is the part of a write that falls into one sector.
type chunk struct {
	sector uint16
	base   uint32
	offset uint32
	data   []byte
}

// split calls fn for every sector touched by a write of src to dest.
// It stops at the first error returned by fn.
func (w *Writer) split(dest uint32, src []byte, fn func(c chunk) error) error {
	if uint64(dest)+uint64(len(src)) > uint64(w.geometry.RomSize) {
		return fmt.Errorf("%w: 0x%05X+%d", ErrOutOfRange, dest, len(src))
	}

	for len(src) > 0 {
		sector := w.geometry.SectorOf(dest)
		base := w.geometry.SectorBase(sector)
		offset := dest - base
		n := min(len(src), int(w.geometry.Sector.Size-offset))

		if err := fn(chunk{sector: sector, base: base, offset: offset, data: src[:n]}); err != nil {
			return err
		}

		dest += uint32(n)
		src = src[n:]
	}
	return nil
}

// overlay reads the sector into the scratch buffer and reports whether the
// new data differs from the content and whether it can be programmed
// without an erase. The scratch buffer contains the new sector content.
func (w *Writer) overlay(c chunk) (changed, compatible bool) {
	w.driver.ReadRange(w.scratch, c.base)

	current := w.scratch[c.offset : c.offset+uint32(len(c.data))]
	changed = !bytes.Equal(current, c.data)
	compatible = true
	for i, value := range c.data {
		if current[i]&value != value {
			compatible = false
			break
		}
	}

	copy(current, c.data)
	return changed, compatible
}

// WriteRangeUnchecked writes src to the absolute device address dest. Every
// touched sector is written even if an earlier one failed, the first error
// is returned. Bytes outside of the range keep their content.
func (w *Writer) WriteRangeUnchecked(dest uint32, src []byte) error {
	var first error

	err := w.split(dest, src, func(c chunk) error {
		if err := w.writeSector(c); err != nil && first == nil {
			first = err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return first
}

func (w *Writer) writeSector(c chunk) error {
	changed, compatible := w.overlay(c)
	if !changed {
		return nil
	}

	if !compatible {
		w.logger.Debug("Rewriting sector", log.Uint16("sector", c.sector))
		return w.driver.ProgramSector(c.sector, w.scratch)
	}

	// only bits are cleared, program the changed bytes in place
	start := c.base + c.offset
	current := make([]byte, len(c.data))
	w.driver.ReadRange(current, start)
	for i, value := range c.data {
		if current[i] == value {
			continue
		}
		if err := w.driver.ProgramByte(start+uint32(i), value, true); err != nil {
			return err
		}
	}
	return nil
}

// WriteRangeChecked writes src to the absolute device address dest and
// verifies every sector after programming it, with up to 3 attempts per
// sector. On failure a *VerifyError with the address of the first unverified
// byte is returned and the following sectors are not touched.
func (w *Writer) WriteRangeChecked(dest uint32, src []byte) error {
	return w.split(dest, src, func(c chunk) error {
		changed, _ := w.overlay(c)
		if !changed {
			return nil
		}

		address, err := w.driver.ProgramSectorAndVerify(c.sector, w.scratch)
		if err == nil {
			return nil
		}

		w.logger.Warn("Sector verification failed",
			log.Uint16("sector", c.sector),
			log.Hex("address", address),
			log.Err(err))
		return &VerifyError{Address: address, Err: err}
	})
}
