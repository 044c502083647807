package flash

import (
	"errors"
	"fmt"

	"github.com/retroenv/retrogolib/log"
)

// ErrBufferSize is returned for sector buffers that are not one sector long.
var ErrBufferSize = errors.New("buffer size does not match sector size")

// ProgramSector erases a sector and programs buf into it. buf must be
// exactly one sector long. Bytes that equal the erased value are skipped.
func (d *Driver) ProgramSector(sector uint16, buf []byte) error {
	if sector >= d.geometry.Sector.Count {
		return StatusOutOfRange
	}
	if len(buf) != int(d.geometry.Sector.Size) {
		return fmt.Errorf("%w: got %d, expected %d", ErrBufferSize, len(buf), d.geometry.Sector.Size)
	}

	if err := d.EraseSector(sector, true); err != nil {
		return err
	}

	base := d.geometry.SectorBase(sector)
	for i, value := range buf {
		if value == Erased {
			continue
		}
		if err := d.ProgramByte(base+uint32(i), value, true); err != nil {
			return err
		}
	}
	return nil
}

// VerifySector compares a sector byte by byte against buf using the raw read
// path. It returns the absolute address of the first mismatching byte.
func (d *Driver) VerifySector(sector uint16, buf []byte) (uint32, bool) {
	base := d.geometry.SectorBase(sector)
	for i, value := range buf {
		address := base + uint32(i)
		if d.ReadData(address) != value {
			return address, false
		}
	}
	return 0, true
}

// ProgramSectorAndVerify programs and verifies a sector, with up to 3
// attempts. On failure the address of the first mismatching byte of the
// last attempt is returned together with the error.
func (d *Driver) ProgramSectorAndVerify(sector uint16, buf []byte) (uint32, error) {
	var (
		address uint32
		err     error
	)

	for attempt := 1; attempt <= verifyAttempts; attempt++ {
		err = d.ProgramSector(sector, buf)
		if errors.Is(err, StatusOutOfRange) || errors.Is(err, ErrBufferSize) {
			return 0, err
		}

		mismatch, ok := d.VerifySector(sector, buf)
		if err == nil && ok {
			return 0, nil
		}

		address = d.geometry.SectorBase(sector)
		if !ok {
			address = mismatch
		}
		if err == nil {
			err = NewStatus(PhaseProgram, ReasonVerify)
		}

		d.logger.Debug("Sector program attempt failed",
			log.Uint16("sector", sector),
			log.Int("attempt", attempt),
			log.Hex("address", address),
			log.Err(err))
	}
	return address, err
}
