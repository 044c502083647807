package flash

// Bus is the memory mapped window the flash chip is attached to. Addresses
// are relative to the device base inside the currently mapped bank.
//
// Read must be a raw load that is not cached or reordered: right after a
// command sequence the chip drives status information onto the data lines
// instead of array data, so every status poll and every read shortly after a
// program or erase has to go through it.
type Bus interface {
	Read(address uint32) byte
	Write(address uint32, value byte)
}

// Loader is implemented by buses that offer a direct memory load for data
// that is known to be stable. It must not be used to poll status.
type Loader interface {
	Load(address uint32, dst []byte)
}

// JEDEC command protocol offsets and data bytes.
const (
	UnlockAddr1 = 0x5555
	UnlockAddr2 = 0x2AAA

	UnlockData1 = 0xAA
	UnlockData2 = 0x55
)

// Command bytes written after the unlock sequence.
const (
	CmdIdentify    = 0x90
	CmdReset       = 0xF0
	CmdProgram     = 0xA0
	CmdEraseSetup  = 0x80
	CmdEraseSector = 0x30
	CmdEraseChip   = 0x10
	CmdBankSwitch  = 0xB0
)

// BankRegister is the window offset the bank number is written to after a
// bank switch command.
const BankRegister = 0x0000

// Status bits driven by the chip while an operation is in progress.
const (
	StatusDataPoll = 0x80 // DQ7, complement of the expected data bit
	StatusToggle   = 0x40 // DQ6, toggles on every read
	StatusExceeded = 0x20 // DQ5, internal time limit exceeded
)

// Erased is the value of every byte after an erase.
const Erased = 0xFF
