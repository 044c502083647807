package geometry

import (
	"strings"
	"testing"
	"time"

	"github.com/retroenv/retrogolib/assert"
)

func TestProfilesValidate(t *testing.T) {
	for _, name := range Names() {
		g, err := Lookup(name)
		assert.NoError(t, err)
		assert.NoError(t, g.Validate())
		assert.Equal(t, name, g.Name)
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("w25q128")
	assert.ErrorContains(t, err, "unsupported device")
}

func TestByID(t *testing.T) {
	g, ok := ByID(0xC2, 0x09)
	assert.True(t, ok)
	assert.Equal(t, "mx29l010", g.Name)

	_, ok = ByID(0x00, 0x00)
	assert.False(t, ok)
}

func TestSingleBankLayout(t *testing.T) {
	g, err := Lookup("sst39sf512")
	assert.NoError(t, err)

	assert.False(t, g.Multibank())
	assert.Equal(t, 1, g.Banks())
	assert.Equal(t, uint16(16), g.SectorsPerBank())
	assert.Equal(t, uint16(3), g.SectorOf(0x3FFF))
	assert.Equal(t, uint32(0x4000), g.SectorBase(4))
	assert.Equal(t, uint32(0x8000), g.PartitionSize())

	bank, offset := g.Window(0xABCD)
	assert.Equal(t, uint8(0), bank)
	assert.Equal(t, uint32(0xABCD), offset)
}

func TestMultibankLayout(t *testing.T) {
	g, err := Lookup("mx29l010")
	assert.NoError(t, err)

	assert.True(t, g.Multibank())
	assert.Equal(t, 2, g.Banks())
	assert.Equal(t, uint16(16), g.SectorsPerBank())
	assert.Equal(t, uint8(0), g.BankOf(15))
	assert.Equal(t, uint8(1), g.BankOf(16))

	bank, offset := g.Window(0x12345)
	assert.Equal(t, uint8(1), bank)
	assert.Equal(t, uint32(0x2345), offset)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(g *Geometry)
		err    string
	}{
		{
			name:   "shift mismatch",
			modify: func(g *Geometry) { g.Sector.Shift = 11 },
			err:    errSectorShift.Error(),
		},
		{
			name:   "rom size mismatch",
			modify: func(g *Geometry) { g.RomSize = 0x18000 },
			err:    errRomSize.Error(),
		},
		{
			name: "odd sector count",
			modify: func(g *Geometry) {
				g.Sector.Count = 15
				g.RomSize = 15 * 0x1000
			},
			err: errSectorCount.Error(),
		},
		{
			name:   "bank size",
			modify: func(g *Geometry) { g.BankSize = 0x3000 },
			err:    errBankSize.Error(),
		},
		{
			name: "partition smaller than header and frame",
			modify: func(g *Geometry) {
				g.Sector = Sector{Size: 8, Shift: 3, Count: 6}
				g.RomSize = 48
				g.BankSize = 48
			},
			err: errPartition.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Lookup(Default)
			assert.NoError(t, err)
			tt.modify(&g)
			assert.ErrorContains(t, g.Validate(), tt.err)
		})
	}
}

func TestLoad(t *testing.T) {
	profile := `
base: mx29l010
name: custom
timing:
  program:
    spins: 100
    timeout: 10ms
`
	g, err := Load(strings.NewReader(profile))
	assert.NoError(t, err)
	assert.Equal(t, "custom", g.Name)
	assert.Equal(t, uint32(0x20000), g.RomSize)
	assert.Equal(t, uint16(32), g.Sector.Count)
	assert.Equal(t, 100, g.Timing.Program.Spins)
	assert.Equal(t, 10*time.Millisecond, g.Timing.Program.Timeout)
	assert.Equal(t, eraseSpins, g.Timing.Erase.Spins)
}

func TestLoadInvalid(t *testing.T) {
	profile := `
name: broken
rom_size: 4096
`
	_, err := Load(strings.NewReader(profile))
	assert.ErrorContains(t, err, errRomSize.Error())

	profile = `
name: tiny
rom_size: 16
bank_size: 16
sector: {size: 4, shift: 2, count: 4}
`
	_, err = Load(strings.NewReader(profile))
	assert.ErrorContains(t, err, errPartition.Error())

	_, err = Load(strings.NewReader("base: unknown"))
	assert.ErrorContains(t, err, "unsupported device")
}
