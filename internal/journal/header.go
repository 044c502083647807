package journal

import (
	"fmt"
)

// Header layout: one state byte per field followed by reserved bytes.
// A field is cleared once its byte is no longer erased.
const (
	headerSize = 16

	fieldReceiving = 0
	fieldActive    = 1
	fieldSending   = 2
	fieldErasing   = 3
	fieldCount     = 4
)

// State is the lifecycle state of a partition. Every transition clears
// exactly one more header field, so the fields that are cleared always form
// a prefix of receiving, active, sending, erasing.
type State uint8

// Partition states in transition order.
const (
	StateErased State = iota
	StateReceiving
	StateActive
	StateSending
	StateErasing
	StateInvalid
)

var stateNames = map[State]string{
	StateErased:    "erased",
	StateReceiving: "receiving",
	StateActive:    "active",
	StateSending:   "sending",
	StateErasing:   "erasing",
	StateInvalid:   "invalid",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// field returns the header field that is cleared to enter the state.
func (s State) field() int {
	return int(s) - 1
}

// decodeState derives the partition state from the header field bytes.
func decodeState(fields []byte) State {
	cleared := 0
	for cleared < fieldCount && fields[cleared] != 0xFF {
		cleared++
	}
	for _, b := range fields[cleared:fieldCount] {
		if b != 0xFF {
			return StateInvalid // a field is cleared out of order
		}
	}
	return State(cleared)
}
