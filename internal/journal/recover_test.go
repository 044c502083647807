package journal

import (
	"bytes"
	"testing"

	"github.com/retroenv/flashpatch/internal/emulator"
	"github.com/retroenv/flashpatch/internal/flash"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func TestDecodeState(t *testing.T) {
	tests := []struct {
		fields []byte
		state  State
	}{
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF}, StateErased},
		{[]byte{0x00, 0xFF, 0xFF, 0xFF}, StateReceiving},
		{[]byte{0x00, 0x00, 0xFF, 0xFF}, StateActive},
		{[]byte{0x00, 0x00, 0x00, 0xFF}, StateSending},
		{[]byte{0x00, 0x00, 0x00, 0x00}, StateErasing},
		{[]byte{0x7F, 0x00, 0xFF, 0xFF}, StateActive},
		{[]byte{0xFF, 0x00, 0xFF, 0xFF}, StateInvalid},
		{[]byte{0x00, 0xFF, 0x00, 0xFF}, StateInvalid},
		{[]byte{0xFF, 0xFF, 0xFF, 0x00}, StateInvalid},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.state, decodeState(tt.fields))
	}
	assert.Equal(t, "sending", StateSending.String())
}

func TestInitRecovery(t *testing.T) {
	tests := []struct {
		name    string
		states  [2]State
		current int
		keep    bool // the frame of the current partition survives
		after   [2]State
	}{
		{"blank device", [2]State{StateErased, StateErased}, 0, false, [2]State{StateActive, StateErased}},
		{"active", [2]State{StateActive, StateErased}, 0, true, [2]State{StateActive, StateErased}},
		{"second active", [2]State{StateErased, StateActive}, 1, true, [2]State{StateErased, StateActive}},
		{"copy completed", [2]State{StateSending, StateActive}, 1, true, [2]State{StateErased, StateActive}},
		{"erase interrupted", [2]State{StateActive, StateErasing}, 0, true, [2]State{StateActive, StateErased}},
		{"copy interrupted", [2]State{StateSending, StateReceiving}, 0, true, [2]State{StateSending, StateErased}},
		{"receiver not marked", [2]State{StateErased, StateSending}, 1, true, [2]State{StateErased, StateSending}},
		{"stale receiver", [2]State{StateActive, StateReceiving}, 0, true, [2]State{StateActive, StateErased}},
		{"invalid header", [2]State{StateInvalid, StateActive}, 1, true, [2]State{StateErased, StateActive}},
		{"both active", [2]State{StateActive, StateActive}, 0, false, [2]State{StateActive, StateErased}},
		{"both sending", [2]State{StateSending, StateSending}, 0, false, [2]State{StateActive, StateErased}},
		{"only erasing", [2]State{StateErasing, StateErased}, 0, false, [2]State{StateActive, StateErased}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tinyGeometry()
			chip := emulator.NewBlank(g)
			mem := chip.Memory()

			// prepare headers and one frame per partition that is in use
			for i, state := range tt.states {
				base := uint32(i) * g.PartitionSize()
				if state == StateErased {
					continue
				}
				if state == StateInvalid {
					mem[base+fieldActive] = 0x00
				} else {
					for field := range int(state) {
						mem[base+uint32(field)] = 0x00
					}
				}

				frameAddress := base + headerSize
				copy(mem[frameAddress:], []byte{0x01, 0x00, 0, 0, 0, 0, 0, 0})
				copy(mem[frameAddress+frameValue:], bytes.Repeat([]byte{byte(0xA0 + i)}, valueSize))
			}

			j := boot(t, chip, g)
			stats, err := j.Stats()
			assert.NoError(t, err)
			assert.Equal(t, tt.current, stats.Current)
			assert.Equal(t, tt.after, stats.States)

			v, err := j.ReadVar(1)
			assert.NoError(t, err)
			if tt.keep {
				assert.Equal(t, value(byte(0xA0+tt.current)), v)
			} else {
				assert.Equal(t, Unwritten, v)
			}

			other := 1 - tt.current
			if tt.after[other] == StateErased {
				base := uint32(other) * g.PartitionSize()
				assert.True(t, isErased(mem[base:base+g.PartitionSize()]))
			}
		})
	}
}

// TestCrashDuringTransfer cuts the power after every single program or erase
// operation of a partition transfer and checks that the next boot sees
// either the state before or after the transfer.
func TestCrashDuringTransfer(t *testing.T) {
	g := tinyGeometry()

	// 20 keys, the partition is full
	chip := emulator.NewBlank(g)
	j := boot(t, chip, g)
	old := map[uint16]Value{}
	for i := range j.Capacity() {
		key := uint16(i % 20)
		v := value(byte(i))
		assert.NoError(t, j.WriteVar(key, v))
		old[key] = v
	}
	snapshot := bytes.Clone(chip.Memory())

	const pendingKey = 7
	pending := value(0xEE)

	// count the operations of an uninterrupted transfer
	ops := chip.Programs() + chip.Erases()
	assert.NoError(t, j.WriteVar(pendingKey, pending))
	total := chip.Programs() + chip.Erases() - ops
	assert.True(t, total > 20)

	for cut := range total + 1 {
		mem := bytes.Clone(snapshot)
		chip, err := emulator.New(g, mem)
		assert.NoError(t, err)

		logger := log.NewTestLogger(t)
		driver := flash.New(logger, chip, g)
		driver.Init()
		j := New(logger, driver)
		assert.NoError(t, j.Init())

		chip.CutPowerAfter(cut)
		err = j.WriteVar(pendingKey, pending)
		if cut == total {
			assert.NoError(t, err)
		}

		chip.Restore()
		j = boot(t, chip, g)

		stats, err := j.Stats()
		assert.NoError(t, err)
		other := 1 - stats.Current
		current := stats.States[stats.Current]
		if current != StateActive && current != StateSending {
			t.Fatalf("cut after %d operations: current partition is %s", cut, current)
		}
		if stats.States[other] != StateErased {
			t.Fatalf("cut after %d operations: other partition is %s", cut, stats.States[other])
		}

		for key, v := range old {
			actual, err := j.ReadVar(key)
			assert.NoError(t, err)
			if key == pendingKey && actual == pending {
				continue
			}
			if actual != v {
				t.Fatalf("cut after %d operations: key %d has value %v, expected %v", cut, key, actual, v)
			}
		}

		// the journal is usable again
		assert.NoError(t, j.WriteVar(pendingKey, pending))
		actual, err := j.ReadVar(pendingKey)
		assert.NoError(t, err)
		assert.Equal(t, pending, actual)
	}
}
