package flash

import (
	"time"

	"github.com/retroenv/flashpatch/internal/geometry"
	"github.com/retroenv/retrogolib/log"
)

// wait polls the window offset through the raw bus path until it reads back
// the expected terminal value. The budget limits the number of samples and,
// if set, the wall clock time. On failure the chip is reset to array read
// mode and a timeout status for the phase is returned.
func (d *Driver) wait(phase Phase, offset uint32, expected byte, budget geometry.Budget) error {
	var deadline time.Time
	if budget.Timeout > 0 {
		deadline = d.now().Add(budget.Timeout)
	}

	for spins := 0; ; spins++ {
		value := d.bus.Read(offset)
		if value == expected {
			return nil
		}

		if value&StatusExceeded != 0 {
			// the operation can finish between the two samples
			if d.bus.Read(offset) == expected {
				return nil
			}
			break
		}

		if budget.Spins > 0 && spins >= budget.Spins {
			break
		}
		if budget.Spins <= 0 && deadline.IsZero() {
			break // no budget configured, single sample
		}
		if !deadline.IsZero() && !d.now().Before(deadline) {
			break
		}
	}

	d.bus.Write(UnlockAddr1, CmdReset)

	status := NewStatus(phase, ReasonTimeout)
	d.logger.Debug("Flash operation timed out",
		log.Hex("offset", offset),
		log.Hex("expected", expected),
		log.Hex("status", uint16(status)))
	return status
}
