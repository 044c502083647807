package journal

import (
	"encoding/binary"

	"github.com/retroenv/flashpatch/internal/flash"
)

// Frame layout. The value is written first, then the key and the reserved
// bytes, the commit byte last. A frame counts only once its commit byte is
// cleared, an interrupted write leaves a torn frame that is never used.
const (
	frameSize = 16

	frameKey      = 0 // little endian key
	frameReserved = 2
	frameCommit   = 7
	frameValue    = 8

	valueSize = 8
)

// EmptyKey is the key of an unwritten frame.
const EmptyKey = 0xFFFF

// Value is the content of a variable.
type Value [valueSize]byte

// Unwritten is the value of a variable that was never written.
var Unwritten = Value{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

type slotKind uint8

const (
	slotFree slotKind = iota // all bytes erased
	slotUsed                 // committed frame
	slotTorn                 // interrupted write
)

// frame is a decoded frame slot.
type frame struct {
	kind  slotKind
	key   uint16
	value Value
}

func decodeFrame(raw []byte) frame {
	var f frame
	f.key = binary.LittleEndian.Uint16(raw[frameKey:])
	copy(f.value[:], raw[frameValue:frameValue+valueSize])

	switch {
	case raw[frameCommit] == 0x00 && f.key != EmptyKey:
		f.kind = slotUsed
	case isErased(raw):
		f.kind = slotFree
	default:
		f.kind = slotTorn
	}
	return f
}

// encodeFrameHead returns the key and reserved part of a frame including the
// commit byte, which is the last byte.
func encodeFrameHead(key uint16) []byte {
	head := make([]byte, frameValue)
	binary.LittleEndian.PutUint16(head[frameKey:], key)
	// reserved bytes and the commit byte are programmed to 0
	return head
}

func isErased(data []byte) bool {
	for _, b := range data {
		if b != flash.Erased {
			return false
		}
	}
	return true
}
