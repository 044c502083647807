// Package flash implements the command protocol driver for JEDEC style
// byte programmable, sector erasable NOR flash chips.
package flash

import (
	"time"

	"github.com/retroenv/flashpatch/internal/geometry"
	"github.com/retroenv/retrogolib/log"
)

// Driver issues command sequences to a flash chip attached to a Bus.
// It is not safe for concurrent use: the chip itself only accepts one
// command stream at a time, hosts with multiple callers must serialize all
// access to a Driver.
type Driver struct {
	logger   *log.Logger
	bus      Bus
	geometry geometry.Geometry

	setWait func(uint16)
	now     func() time.Time

	bank    int // currently mapped bank, -1 if unknown
	pending pendingOperation
}

// pendingOperation is a program or erase that was started without waiting
// for its completion.
type pendingOperation struct {
	active   bool
	phase    Phase
	offset   uint32
	expected byte
	budget   geometry.Budget
}

// Option configures a Driver.
type Option func(*Driver)

// WithWaitStateFunc sets the device configuration call that is made with
// the command phase wait state before a program or erase and with the idle
// wait state afterwards.
func WithWaitStateFunc(fn func(uint16)) Option {
	return func(d *Driver) {
		d.setWait = fn
	}
}

// WithClock sets the time source used for wall clock poll deadlines.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// New returns a driver for the chip described by geo attached to bus.
func New(logger *log.Logger, bus Bus, geo geometry.Geometry, opts ...Option) *Driver {
	d := &Driver{
		logger:   logger,
		bus:      bus,
		geometry: geo,
		setWait:  func(uint16) {},
		now:      time.Now,
		bank:     -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Geometry returns the descriptor of the driven chip.
func (d *Driver) Geometry() geometry.Geometry {
	return d.geometry
}

// Init puts the chip into normal array read mode by entering and leaving
// identify mode, and maps the first bank. It can be called any number of times.
func (d *Driver) Init() {
	d.setWait(d.geometry.Wait[1])
	d.command(CmdIdentify)
	d.command(CmdReset)

	d.bank = -1
	d.SwitchBank(0)
}

// Identify reads the maker and device identity bytes of the chip.
func (d *Driver) Identify() (maker, device byte) {
	d.settle()
	d.command(CmdIdentify)
	maker = d.bus.Read(0)
	device = d.bus.Read(1)
	d.command(CmdReset)

	d.logger.Debug("Identified flash chip",
		log.Hex("maker", maker),
		log.Hex("device", device))
	return maker, device
}

// SwitchBank maps the bank containing the given sector into the CPU window.
// It is a no-op for devices that fit into a single window.
func (d *Driver) SwitchBank(sector uint16) {
	if !d.geometry.Multibank() {
		return
	}

	bank := int(d.geometry.BankOf(sector))
	if bank == d.bank {
		return
	}

	d.command(CmdBankSwitch)
	d.bus.Write(BankRegister, byte(bank))
	d.bank = bank
}

// ReadData reads a byte at an absolute device address through the raw bus
// path. It is safe to use right after a program or erase.
func (d *Driver) ReadData(address uint32) byte {
	d.settle()
	offset := d.mapAddress(address)
	return d.bus.Read(offset)
}

// ReadRange reads len(dst) bytes starting at an absolute device address
// through the raw bus path.
func (d *Driver) ReadRange(dst []byte, src uint32) {
	for i := range dst {
		dst[i] = d.ReadData(src + uint32(i))
	}
}

// Load reads len(dst) bytes of stable data. It uses a direct memory load
// if the bus supports it and falls back to raw reads otherwise. Load must
// not be used to observe the result of a still running operation.
func (d *Driver) Load(dst []byte, src uint32) {
	d.settle()
	loader, ok := d.bus.(Loader)
	if !ok {
		d.ReadRange(dst, src)
		return
	}

	// a load may not cross a bank boundary
	for len(dst) > 0 {
		offset := d.mapAddress(src)
		n := len(dst)
		if d.geometry.Multibank() {
			if remaining := int(d.geometry.BankSize - offset); n > remaining {
				n = remaining
			}
		}
		loader.Load(offset, dst[:n])
		dst = dst[n:]
		src += uint32(n)
	}
}

// mapAddress switches to the bank of an absolute device address and returns
// the offset inside the mapped window.
func (d *Driver) mapAddress(address uint32) uint32 {
	d.SwitchBank(d.geometry.SectorOf(address))
	_, offset := d.geometry.Window(address)
	return offset
}

// unlock writes the two byte unlock sequence.
func (d *Driver) unlock() {
	d.bus.Write(UnlockAddr1, UnlockData1)
	d.bus.Write(UnlockAddr2, UnlockData2)
}

// command writes the unlock sequence followed by a command byte. The chip
// finishes a running operation before it accepts a new command sequence.
func (d *Driver) command(cmd byte) {
	d.pending.active = false
	d.unlock()
	d.bus.Write(UnlockAddr1, cmd)
}

// deferWait marks an operation that was started without waiting for it.
func (d *Driver) deferWait(phase Phase, offset uint32, expected byte, budget geometry.Budget) {
	d.pending = pendingOperation{
		active:   true,
		phase:    phase,
		offset:   offset,
		expected: expected,
		budget:   budget,
	}
}

// settle waits for a deferred operation to finish before the array is read,
// the chip reports status instead of array data until then.
func (d *Driver) settle() {
	if !d.pending.active {
		return
	}
	p := d.pending
	d.pending.active = false

	if err := d.wait(p.phase, p.offset, p.expected, p.budget); err != nil {
		d.logger.Warn("Deferred flash operation failed",
			log.Hex("offset", p.offset),
			log.Err(err))
	}
}
