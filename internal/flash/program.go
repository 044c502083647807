package flash

import (
	"github.com/retroenv/retrogolib/log"
)

const (
	eraseRetries   = 4 // additional attempts after a failed sector erase
	verifyAttempts = 3 // program and verify cycles for a whole sector
)

// ProgramByte programs a single byte at an absolute device address. Programming
// can only clear bits, bits that are 0 in the array stay 0. If wait is set,
// the status poller waits until the address reads back the value.
func (d *Driver) ProgramByte(dest uint32, value byte, wait bool) error {
	if dest >= d.geometry.RomSize {
		return StatusOutOfRange
	}

	offset := d.mapAddress(dest)

	d.setWait(d.geometry.Wait[0])
	defer d.setWait(d.geometry.Wait[1])

	d.command(CmdProgram)
	d.bus.Write(offset, value)

	if !wait {
		d.deferWait(PhaseProgram, offset, value, d.geometry.Timing.Program)
		return nil
	}
	return d.wait(PhaseProgram, offset, value, d.geometry.Timing.Program)
}

// WriteBytes programs the serialized representation of a fixed size value
// byte by byte and returns the first error. Only the final byte is polled
// for completion, the chip does not accept the next program command before
// the previous one finished.
func (d *Driver) WriteBytes(dest uint32, data []byte) error {
	for i, value := range data {
		last := i == len(data)-1
		if err := d.ProgramByte(dest+uint32(i), value, last); err != nil {
			return err
		}
	}
	return nil
}

// EraseChip erases the whole device and waits for completion.
func (d *Driver) EraseChip() error {
	d.setWait(d.geometry.Wait[0])
	defer d.setWait(d.geometry.Wait[1])

	d.SwitchBank(0)
	d.command(CmdEraseSetup)
	d.command(CmdEraseChip)

	if err := d.wait(PhaseChipErase, 0, Erased, d.geometry.Timing.ChipErase); err != nil {
		d.logger.Warn("Chip erase failed", log.Err(err))
		return err
	}
	return nil
}

// EraseSector erases a single sector. If wait is not set, the erase command
// is issued and the function returns immediately without retries, the next
// read of the array waits for it. A failed erase is retried up to 4 times.
func (d *Driver) EraseSector(sector uint16, wait bool) error {
	if sector >= d.geometry.Sector.Count {
		return StatusOutOfRange
	}

	d.SwitchBank(sector)
	_, offset := d.geometry.Window(d.geometry.SectorBase(sector))

	d.setWait(d.geometry.Wait[0])
	defer d.setWait(d.geometry.Wait[1])

	var err error
	for attempt := 0; attempt <= eraseRetries; attempt++ {
		d.command(CmdEraseSetup)
		d.unlock()
		d.bus.Write(offset, CmdEraseSector)

		if !wait {
			d.deferWait(PhaseErase, offset, Erased, d.geometry.Timing.Erase)
			return nil
		}

		err = d.wait(PhaseErase, offset, Erased, d.geometry.Timing.Erase)
		if err == nil {
			return nil
		}

		d.logger.Warn("Sector erase failed",
			log.Uint16("sector", sector),
			log.Int("attempt", attempt+1),
			log.Err(err))
	}
	return err
}
