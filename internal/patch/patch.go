// Package patch provides the entry points a host calls into: boot, the
// emulated EEPROM variable interface and the SRAM byte range interface, all
// backed by a single flash device.
package patch

import (
	"errors"
	"sync"

	"github.com/retroenv/flashpatch/internal/flash"
	"github.com/retroenv/flashpatch/internal/geometry"
	"github.com/retroenv/flashpatch/internal/journal"
	"github.com/retroenv/flashpatch/internal/sector"
	"github.com/retroenv/retrogolib/log"
)

// Status codes returned for errors that do not come from the flash chip.
const (
	StatusFull       uint16 = 0x40FF
	StatusInvalidKey uint16 = 0x41FF
	StatusNotBooted  uint16 = 0x42FF
	StatusFailure    uint16 = 0xFFFF
)

// Device bundles the driver, the journal and the sector writer of a flash
// chip. All entry points are serialized, the chip can only process a single
// command stream.
type Device struct {
	logger  *log.Logger
	mu      sync.Mutex
	driver  *flash.Driver
	journal *journal.Journal
	writer  *sector.Writer
}

type config struct {
	driver  []flash.Option
	journal []journal.Option
}

// Option configures a Device.
type Option func(*config)

// WithDriverOptions passes options to the flash driver.
func WithDriverOptions(opts ...flash.Option) Option {
	return func(c *config) {
		c.driver = append(c.driver, opts...)
	}
}

// WithJournalOptions passes options to the journal.
func WithJournalOptions(opts ...journal.Option) Option {
	return func(c *config) {
		c.journal = append(c.journal, opts...)
	}
}

// New returns a device for the flash chip attached to bus.
func New(logger *log.Logger, bus flash.Bus, geo geometry.Geometry, opts ...Option) *Device {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	driver := flash.New(logger, bus, geo, cfg.driver...)
	return &Device{
		logger:  logger,
		driver:  driver,
		journal: journal.New(logger, driver, cfg.journal...),
		writer:  sector.New(logger, driver),
	}
}

// Boot puts the chip into array read mode and recovers the journal.
func (d *Device) Boot() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.driver.Init()
	return d.journal.Init()
}

// Format erases the whole chip and starts an empty journal.
func (d *Device) Format() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.journal.Format()
}

// Identify returns the manufacturer and device IDs reported by the chip.
func (d *Device) Identify() (maker, device byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.driver.Identify()
}

// Stats returns the usage information of the journal.
func (d *Device) Stats() (journal.Stats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.journal.Stats()
}

// Vars returns the latest value of every written variable.
func (d *Device) Vars() (map[uint16]journal.Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.journal.Vars()
}

// Driver returns the flash driver of the device.
func (d *Device) Driver() *flash.Driver {
	return d.driver
}

// EEPROMRead reads an 8 byte variable. Variables that were never written
// read as all 0xFF. It always returns 0.
func (d *Device) EEPROMRead(address uint16, dst *[8]byte) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	value, err := d.journal.ReadVar(address)
	if err != nil {
		d.logger.Warn("Reading variable failed", log.Uint16("address", address), log.Err(err))
		value = journal.Unwritten
	}
	*dst = value
	return 0
}

// EEPROMWrite writes an 8 byte variable and returns a status code, 0 on
// success.
func (d *Device) EEPROMWrite(address uint16, src [8]byte) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.journal.WriteVar(address, src)
	if err != nil {
		d.logger.Warn("Writing variable failed", log.Uint16("address", address), log.Err(err))
	}
	return StatusCode(err)
}

// SRAMWrite writes a byte range and verifies it. On failure it returns the
// address of the first byte that could not be written and false.
func (d *Device) SRAMWrite(dest uint32, src []byte) (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.driver.Init()
	err := d.writer.WriteRangeChecked(dest, src)
	if err == nil {
		return 0, true
	}

	d.logger.Warn("Writing SRAM range failed", log.Hex("address", dest), log.Err(err))
	var verifyErr *sector.VerifyError
	if errors.As(err, &verifyErr) {
		return verifyErr.Address, false
	}
	return dest, false
}

// SRAMWriteUnchecked writes a byte range without verification and returns
// a status code, 0 on success.
func (d *Device) SRAMWriteUnchecked(dest uint32, src []byte) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.driver.Init()
	err := d.writer.WriteRangeUnchecked(dest, src)
	if err != nil {
		d.logger.Warn("Writing SRAM range failed", log.Hex("address", dest), log.Err(err))
	}
	return StatusCode(err)
}

// SRAMRead reads a byte range of the device.
func (d *Device) SRAMRead(dst []byte, src uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if uint64(src)+uint64(len(dst)) > uint64(d.driver.Geometry().RomSize) {
		return sector.ErrOutOfRange
	}
	d.driver.Load(dst, src)
	return nil
}

// StatusCode converts an error into the 16 bit status code of the entry
// points.
func StatusCode(err error) uint16 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, journal.ErrFull):
		return StatusFull
	case errors.Is(err, journal.ErrInvalidKey):
		return StatusInvalidKey
	case errors.Is(err, journal.ErrNoActivePartition):
		return StatusNotBooted
	case errors.Is(err, sector.ErrOutOfRange):
		return uint16(flash.StatusOutOfRange)
	}

	var status flash.Status
	if errors.As(err, &status) {
		return uint16(status)
	}
	return StatusFailure
}
