package journal

import (
	"bytes"
	"fmt"

	"github.com/retroenv/flashpatch/internal/flash"
	"github.com/retroenv/retrogolib/log"
)

// partition is one half of the device.
type partition struct {
	index       int
	base        uint32
	firstSector uint16
	sectors     uint16
	capacity    int
}

func (p partition) frameAddress(slot int) uint32 {
	return p.base + headerSize + uint32(slot)*frameSize
}

func (p partition) String() string {
	return fmt.Sprintf("partition %d", p.index)
}

// state reads the header of a partition.
func (j *Journal) state(p partition) State {
	var fields [fieldCount]byte
	j.driver.ReadRange(fields[:], p.base)
	return decodeState(fields[:])
}

// setState clears the header field of the given state. Fields that are
// already cleared are not programmed again.
func (j *Journal) setState(p partition, state State) error {
	address := p.base + uint32(state.field())
	if j.driver.ReadData(address) != flash.Erased {
		return nil
	}

	if err := j.driver.ProgramByte(address, 0x00, true); err != nil {
		return fmt.Errorf("marking %s %s: %w", p, state, err)
	}

	j.logger.Debug("Partition state changed",
		log.Int("partition", p.index),
		log.Stringer("state", state))
	return nil
}

// readFrame reads and decodes a frame slot.
func (j *Journal) readFrame(p partition, slot int) frame {
	var raw [frameSize]byte
	j.driver.Load(raw[:], p.frameAddress(slot))
	return decodeFrame(raw[:])
}

// writeFrame programs a frame into a free slot. The value and key are
// verified before the commit byte is written.
func (j *Journal) writeFrame(p partition, slot int, key uint16, value Value) error {
	address := p.frameAddress(slot)

	if err := j.driver.WriteBytes(address+frameValue, value[:]); err != nil {
		return fmt.Errorf("writing frame value: %w", err)
	}

	head := encodeFrameHead(key)
	if err := j.driver.WriteBytes(address, head[:frameCommit]); err != nil {
		return fmt.Errorf("writing frame key: %w", err)
	}

	var raw [frameSize]byte
	j.driver.ReadRange(raw[:], address)
	if !bytes.Equal(raw[:frameCommit], head[:frameCommit]) || !bytes.Equal(raw[frameValue:], value[:]) {
		j.logger.Warn("Frame verification failed",
			log.Int("slot", slot),
			log.Hex("address", address))
		return flash.NewStatus(flash.PhaseProgram, flash.ReasonVerify)
	}

	if err := j.driver.ProgramByte(address+frameCommit, 0x00, true); err != nil {
		return fmt.Errorf("committing frame: %w", err)
	}
	return nil
}

// isBlank checks whether a sector only contains erased bytes.
func (j *Journal) isBlank(sector uint16) bool {
	buf := make([]byte, j.geometry.Sector.Size)
	j.driver.ReadRange(buf, j.geometry.SectorBase(sector))
	return isErased(buf)
}

// erase erases all sectors of a partition, the sector holding the header
// last so that an interrupted erase keeps the erasing state visible.
func (j *Journal) erase(p partition, wait bool) error {
	for i := int(p.sectors) - 1; i >= 0; i-- {
		if err := j.driver.EraseSector(p.firstSector+uint16(i), wait); err != nil {
			return fmt.Errorf("erasing %s: %w", p, err)
		}
	}
	return nil
}

// clean erases the sectors of a partition that are not blank.
func (j *Journal) clean(p partition) error {
	for i := int(p.sectors) - 1; i >= 0; i-- {
		sector := p.firstSector + uint16(i)
		if j.isBlank(sector) {
			continue
		}
		if err := j.driver.EraseSector(sector, true); err != nil {
			return fmt.Errorf("erasing %s: %w", p, err)
		}
	}
	return nil
}
