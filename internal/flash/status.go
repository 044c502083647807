package flash

import (
	"errors"
	"fmt"
)

// Phase identifies the operation that was in progress when a failure occurred.
type Phase uint8

// Operation phases encoded in the high byte of a Status.
const (
	PhaseProgram   Phase = 1
	PhaseErase     Phase = 2
	PhaseChipErase Phase = 3
)

// Reason describes why an operation failed.
type Reason uint8

// Failure reasons encoded in the low nibble of a Status.
const (
	ReasonTimeout Reason = 0xA
	ReasonVerify  Reason = 0xC
)

// Status is a 16 bit phase tagged result code: (phase << 8) | reason.
// The zero value means success and is never returned as an error.
type Status uint16

// StatusOutOfRange is returned for sector numbers beyond the device.
const StatusOutOfRange Status = 0x80FF

// NewStatus builds the status code for a phase and reason.
func NewStatus(phase Phase, reason Reason) Status {
	return Status(uint16(phase)<<8 | uint16(reason))
}

// Phase returns the phase the failure occurred in.
func (s Status) Phase() Phase {
	return Phase(s >> 8)
}

// Reason returns the failure reason.
func (s Status) Reason() Reason {
	return Reason(s & 0x0F)
}

// Timeout returns whether the failure was a timeout.
func (s Status) Timeout() bool {
	return s != StatusOutOfRange && s.Reason() == ReasonTimeout
}

func (s Status) Error() string {
	if s == StatusOutOfRange {
		return fmt.Sprintf("flash status 0x%04X: sector out of range", uint16(s))
	}

	var phase, reason string
	switch s.Phase() {
	case PhaseProgram:
		phase = "program"
	case PhaseErase:
		phase = "sector erase"
	case PhaseChipErase:
		phase = "chip erase"
	default:
		phase = "unknown phase"
	}
	switch s.Reason() {
	case ReasonTimeout:
		reason = "timeout"
	case ReasonVerify:
		reason = "verify mismatch"
	default:
		reason = "failure"
	}
	return fmt.Sprintf("flash status 0x%04X: %s %s", uint16(s), phase, reason)
}

// StatusOf returns the status code carried by an error, 0 for nil.
// Errors that do not carry a flash status map to 0xFFFF.
func StatusOf(err error) Status {
	if err == nil {
		return 0
	}
	var status Status
	if errors.As(err, &status) {
		return status
	}
	return 0xFFFF
}
