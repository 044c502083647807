package patch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/retroenv/flashpatch/internal/emulator"
	"github.com/retroenv/flashpatch/internal/flash"
	"github.com/retroenv/flashpatch/internal/geometry"
	"github.com/retroenv/flashpatch/internal/journal"
	"github.com/retroenv/flashpatch/internal/sector"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func newTestDevice(t *testing.T) (*Device, *emulator.Chip) {
	t.Helper()
	g, err := geometry.Lookup(geometry.Default)
	assert.NoError(t, err)
	g.Timing.Program.Spins = 16
	g.Timing.Erase.Spins = 16
	g.Timing.ChipErase.Spins = 16

	var waits []uint16
	chip := emulator.NewBlank(g)
	d := New(log.NewTestLogger(t), chip, g,
		WithDriverOptions(flash.WithWaitStateFunc(func(value uint16) {
			waits = append(waits, value)
		})),
		WithJournalOptions(journal.WithHints(false)),
	)
	assert.NoError(t, d.Boot())
	assert.True(t, len(waits) > 0)
	return d, chip
}

func TestEEPROM(t *testing.T) {
	d, _ := newTestDevice(t)

	assert.Equal(t, uint16(0), d.EEPROMWrite(1, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}))

	var data [8]byte
	assert.Equal(t, uint16(0), d.EEPROMRead(1, &data))
	assert.Equal(t, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, data)

	assert.Equal(t, uint16(0), d.EEPROMRead(2, &data))
	assert.Equal(t, [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, data)

	assert.Equal(t, StatusInvalidKey, d.EEPROMWrite(journal.EmptyKey, data))
	assert.Equal(t, uint16(0), d.EEPROMRead(journal.EmptyKey, &data))
}

func TestSRAM(t *testing.T) {
	d, chip := newTestDevice(t)

	src := []byte("save game")
	failAddress, ok := d.SRAMWrite(0x1FFC, src)
	assert.True(t, ok)
	assert.Equal(t, uint32(0), failAddress)

	dst := make([]byte, len(src))
	assert.NoError(t, d.SRAMRead(dst, 0x1FFC))
	assert.Equal(t, src, dst)

	assert.Equal(t, uint16(0), d.SRAMWriteUnchecked(0x1FFC, []byte("SAVE")))
	assert.Equal(t, byte('S'), chip.Memory()[0x1FFC])

	chip.StickBits(0x3002, 0x80)
	failAddress, ok = d.SRAMWrite(0x3000, []byte{0, 0, 0, 0})
	assert.False(t, ok)
	assert.Equal(t, uint32(0x3002), failAddress)

	failAddress, ok = d.SRAMWrite(0xFFFF, []byte{0, 0})
	assert.False(t, ok)
	assert.Equal(t, uint32(0xFFFF), failAddress)
	assert.Equal(t, uint16(flash.StatusOutOfRange), d.SRAMWriteUnchecked(0xFFFF, []byte{0, 0}))
	assert.Error(t, d.SRAMRead(dst, 0xFFFF))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		code uint16
	}{
		{nil, 0},
		{fmt.Errorf("wrapped: %w", journal.ErrFull), StatusFull},
		{journal.ErrInvalidKey, StatusInvalidKey},
		{journal.ErrNoActivePartition, StatusNotBooted},
		{sector.ErrOutOfRange, 0x80FF},
		{flash.NewStatus(flash.PhaseErase, flash.ReasonTimeout), 0x020A},
		{&sector.VerifyError{Address: 1, Err: flash.NewStatus(flash.PhaseProgram, flash.ReasonVerify)}, 0x010C},
		{errors.New("other"), StatusFailure},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, StatusCode(tt.err))
	}
}

func TestDeviceJournal(t *testing.T) {
	d, chip := newTestDevice(t)

	maker, device := d.Identify()
	assert.Equal(t, byte(0xBF), maker)
	assert.Equal(t, byte(0xB4), device)

	assert.Equal(t, uint16(0), d.EEPROMWrite(3, [8]byte{3}))
	vars, err := d.Vars()
	assert.NoError(t, err)
	assert.Equal(t, map[uint16]journal.Value{3: {3}}, vars)

	stats, err := d.Stats()
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.LiveKeys)
	assert.Equal(t, 2047, stats.Capacity)

	erases := chip.Erases()
	assert.NoError(t, d.Format())
	assert.True(t, chip.Erases() > erases)

	vars, err = d.Vars()
	assert.NoError(t, err)
	assert.Equal(t, 0, len(vars))
}
