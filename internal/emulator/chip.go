// Package emulator implements an emulated JEDEC NOR flash chip that can be
// attached to the flash driver as its bus.
package emulator

import (
	"errors"
	"fmt"

	"github.com/retroenv/flashpatch/internal/flash"
	"github.com/retroenv/flashpatch/internal/geometry"
)

// DefaultBusyReads is the number of status reads an operation stays busy.
const DefaultBusyReads = 2

var errMemorySize = errors.New("memory size does not match rom size")

type commandState uint8

const (
	stateIdle commandState = iota
	stateUnlocked1
	stateUnlocked2
	stateProgram
	stateEraseSetup
	stateEraseUnlocked1
	stateEraseUnlocked2
	stateBank
)

// Chip is an emulated flash chip backed by a byte slice. It implements the
// flash.Bus and flash.Loader interfaces, addresses are offsets inside the
// currently mapped bank window.
type Chip struct {
	geometry geometry.Geometry
	mem      []byte

	busyReads int
	busy      int  // remaining status reads of the running operation
	failed    bool // running operation exceeded its time limit
	expected  byte // terminal value of the running operation
	toggle    byte

	state  commandState
	idMode bool
	bank   uint32

	stuck     map[uint32]byte
	failErase map[uint16]int

	powerBudget int // operations left before power is cut, negative for unlimited
	powered     bool

	programs int
	erases   int
}

// Option configures a Chip.
type Option func(*Chip)

// WithBusyReads sets the number of reads an operation reports status before
// the array data becomes visible again.
func WithBusyReads(reads int) Option {
	return func(c *Chip) {
		c.busyReads = reads
	}
}

// New returns a chip that operates on mem, which has to be exactly as large
// as the device. The memory is used directly, for example a mapped image file.
func New(geo geometry.Geometry, mem []byte, opts ...Option) (*Chip, error) {
	if len(mem) != int(geo.RomSize) {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", errMemorySize, len(mem), geo.RomSize)
	}

	c := &Chip{
		geometry:    geo,
		mem:         mem,
		busyReads:   DefaultBusyReads,
		stuck:       map[uint32]byte{},
		failErase:   map[uint16]int{},
		powerBudget: -1,
		powered:     true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewBlank returns a chip with freshly erased memory.
func NewBlank(geo geometry.Geometry, opts ...Option) *Chip {
	mem := make([]byte, geo.RomSize)
	for i := range mem {
		mem[i] = flash.Erased
	}
	c, _ := New(geo, mem, opts...)
	return c
}

// Memory returns the backing memory of the chip.
func (c *Chip) Memory() []byte {
	return c.mem
}

// Bank returns the currently mapped bank.
func (c *Chip) Bank() int {
	return int(c.bank)
}

// Programs returns the number of byte program operations started.
func (c *Chip) Programs() int {
	return c.programs
}

// Erases returns the number of sector and chip erase operations started.
func (c *Chip) Erases() int {
	return c.erases
}

// StickBits marks bits of an absolute address that can no longer be
// programmed to 0.
func (c *Chip) StickBits(address uint32, mask byte) {
	c.stuck[address] |= mask
}

// FailErase lets the next n erase attempts of a sector exceed their time
// limit without changing the sector content.
func (c *Chip) FailErase(sector uint16, n int) {
	c.failErase[sector] = n
}

// CutPowerAfter lets n more program or erase operations start, after that
// the chip ignores all writes until Restore is called.
func (c *Chip) CutPowerAfter(n int) {
	c.powerBudget = n
}

// Powered returns whether the chip still accepts writes.
func (c *Chip) Powered() bool {
	return c.powered
}

// Restore powers the chip back up. Like a real power cycle it resets the
// command state, identify mode and bank register.
func (c *Chip) Restore() {
	c.powered = true
	c.powerBudget = -1
	c.busy = 0
	c.failed = false
	c.state = stateIdle
	c.idMode = false
	c.bank = 0
}

// Read returns array data, identity bytes in identify mode or the data
// polling status while an operation is running.
func (c *Chip) Read(address uint32) byte {
	if c.failed {
		return c.status() | flash.StatusExceeded
	}
	if c.busy > 0 {
		c.busy--
		return c.status()
	}

	if c.idMode {
		switch address {
		case 0:
			return c.geometry.IDs.Maker
		case 1:
			return c.geometry.IDs.Device
		}
	}
	return c.mem[c.absolute(address)]
}

// Load copies array data of the mapped bank into dst.
func (c *Chip) Load(address uint32, dst []byte) {
	start := c.absolute(address)
	copy(dst, c.mem[start:])
}

// Write feeds a byte into the command state machine.
func (c *Chip) Write(address uint32, value byte) {
	if !c.powered {
		return
	}

	// a new bus cycle finishes a running operation, a failed one is aborted
	c.busy = 0
	if c.failed {
		c.failed = false
		c.state = stateIdle
		if value == flash.CmdReset {
			return
		}
	}

	if value == flash.CmdReset && c.state != stateProgram && c.state != stateBank {
		c.state = stateIdle
		c.idMode = false
		return
	}

	switch c.state {
	case stateIdle:
		c.state = c.unlockStep(address, value, flash.UnlockAddr1, flash.UnlockData1, stateUnlocked1)

	case stateUnlocked1:
		c.state = c.unlockStep(address, value, flash.UnlockAddr2, flash.UnlockData2, stateUnlocked2)

	case stateUnlocked2:
		c.state = stateIdle
		if address != flash.UnlockAddr1 {
			return
		}
		c.command(value)

	case stateProgram:
		c.state = stateIdle
		c.program(c.absolute(address), value)

	case stateEraseSetup:
		c.state = c.unlockStep(address, value, flash.UnlockAddr1, flash.UnlockData1, stateEraseUnlocked1)

	case stateEraseUnlocked1:
		c.state = c.unlockStep(address, value, flash.UnlockAddr2, flash.UnlockData2, stateEraseUnlocked2)

	case stateEraseUnlocked2:
		c.state = stateIdle
		switch {
		case value == flash.CmdEraseSector:
			c.eraseSector(c.geometry.SectorOf(c.absolute(address)))
		case value == flash.CmdEraseChip && address == flash.UnlockAddr1:
			c.eraseChip()
		}

	case stateBank:
		c.state = stateIdle
		if address == flash.BankRegister {
			c.bank = uint32(value) % uint32(c.geometry.Banks())
		}
	}
}

func (c *Chip) unlockStep(address uint32, value byte, expectedAddress uint32, expectedValue byte,
	next commandState) commandState {

	if address == expectedAddress && value == expectedValue {
		return next
	}
	return stateIdle
}

func (c *Chip) command(value byte) {
	switch value {
	case flash.CmdIdentify:
		c.idMode = true
	case flash.CmdProgram:
		c.state = stateProgram
	case flash.CmdEraseSetup:
		c.state = stateEraseSetup
	case flash.CmdBankSwitch:
		if c.geometry.Multibank() {
			c.state = stateBank
		}
	}
}

// absolute translates a window offset into a device address.
func (c *Chip) absolute(address uint32) uint32 {
	if !c.geometry.Multibank() {
		return address % c.geometry.RomSize
	}
	return c.bank*c.geometry.BankSize + address%c.geometry.BankSize
}

// start accounts for an operation and returns whether it may run.
func (c *Chip) start() bool {
	if c.powerBudget == 0 {
		c.powered = false
		return false
	}
	if c.powerBudget > 0 {
		c.powerBudget--
	}
	return true
}

func (c *Chip) program(address uint32, value byte) {
	if !c.start() {
		return
	}
	c.programs++

	c.mem[address] &= value | c.stuck[address]
	c.begin(value)
}

func (c *Chip) eraseSector(sector uint16) {
	if !c.start() {
		return
	}
	c.erases++

	if n := c.failErase[sector]; n > 0 {
		c.failErase[sector] = n - 1
		c.expected = flash.Erased
		c.failed = true
		return
	}

	base := c.geometry.SectorBase(sector)
	fill(c.mem[base : base+c.geometry.Sector.Size])
	c.begin(flash.Erased)
}

func (c *Chip) eraseChip() {
	if !c.start() {
		return
	}
	c.erases++

	fill(c.mem)
	c.begin(flash.Erased)
}

func (c *Chip) begin(expected byte) {
	c.expected = expected
	c.busy = c.busyReads
}

// status returns the data polling status byte: DQ7 is the complement of the
// expected data bit and DQ6 toggles on every read.
func (c *Chip) status() byte {
	c.toggle ^= flash.StatusToggle
	return (^c.expected & flash.StatusDataPoll) | c.toggle
}

func fill(mem []byte) {
	for i := range mem {
		mem[i] = flash.Erased
	}
}
