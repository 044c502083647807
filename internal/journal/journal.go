// Package journal implements a wear leveled variable store on NOR flash.
//
// The device is split into two partitions that are used as ping-pong logs.
// Every write appends a frame to the current partition. Once it is full, the
// latest value of every key is moved to the other partition and the full one
// is erased. Partition headers record the progress of such a transfer, so
// that the store can be recovered after a power loss at any point.
package journal

import (
	"errors"

	"github.com/retroenv/flashpatch/internal/flash"
	"github.com/retroenv/flashpatch/internal/geometry"
	"github.com/retroenv/retrogolib/log"
)

var (
	// ErrFull is returned when compaction can not free a frame because every
	// frame holds a different live key.
	ErrFull = errors.New("journal full")
	// ErrInvalidKey is returned for the reserved key of unwritten frames.
	ErrInvalidKey = errors.New("invalid variable key")
	// ErrNoActivePartition is returned when the journal was not initialized.
	ErrNoActivePartition = errors.New("no active partition")
)

// Journal is a variable store on a flash device. It owns both partitions of
// the device and is not safe for concurrent use.
type Journal struct {
	logger   *log.Logger
	driver   *flash.Driver
	geometry geometry.Geometry

	partitions [2]partition
	current    int // index of the current partition, -1 if unknown

	// acceleration state, reset on every format, transfer and init
	useHints bool
	nextFree int            // all slots below are known to be in use
	keySlots map[uint16]int // slot of the latest frame of every key
}

// Option configures a Journal.
type Option func(*Journal)

// WithHints enables or disables the RAM resident allocation and key hints.
// Hints are enabled by default, they never change the results.
func WithHints(enabled bool) Option {
	return func(j *Journal) {
		j.useHints = enabled
	}
}

// New returns a journal on the device of the driver. Init has to be called
// before the journal can be used.
func New(logger *log.Logger, driver *flash.Driver, opts ...Option) *Journal {
	geo := driver.Geometry()
	size := geo.PartitionSize()
	sectors := geo.Sector.Count / 2
	capacity := 0
	if size > headerSize {
		capacity = int((size - headerSize) / frameSize)
	}

	j := &Journal{
		logger:   logger,
		driver:   driver,
		geometry: geo,
		current:  -1,
		useHints: true,
	}
	for i := range j.partitions {
		j.partitions[i] = partition{
			index:       i,
			base:        uint32(i) * size,
			firstSector: uint16(i) * sectors,
			sectors:     sectors,
			capacity:    capacity,
		}
	}
	for _, opt := range opts {
		opt(j)
	}
	j.resetHints()
	return j
}

// Capacity returns the number of frames of a partition.
func (j *Journal) Capacity() int {
	return j.partitions[0].capacity
}

// Format erases the whole device and makes partition 0 the active, empty log.
func (j *Journal) Format() error {
	j.current = -1
	j.resetHints()

	j.logger.Info("Formatting journal", log.String("device", j.geometry.Name))

	if err := j.driver.EraseChip(); err != nil {
		return err
	}

	p := j.partitions[0]
	if err := j.setState(p, StateReceiving); err != nil {
		return err
	}
	if err := j.setState(p, StateActive); err != nil {
		return err
	}

	j.current = p.index
	return nil
}

// ReadVar returns the latest value of a key, or Unwritten if it was never
// written.
func (j *Journal) ReadVar(key uint16) (Value, error) {
	if key == EmptyKey {
		return Unwritten, ErrInvalidKey
	}
	if j.current < 0 {
		return Unwritten, ErrNoActivePartition
	}
	p := j.partitions[j.current]

	if j.useHints {
		slot, ok := j.keySlots[key]
		if !ok {
			return Unwritten, nil
		}
		if f := j.readFrame(p, slot); f.kind == slotUsed && f.key == key {
			return f.value, nil
		}
		j.logger.Warn("Stale key hint", log.Uint16("key", key), log.Int("slot", slot))
	}

	// later frames shadow earlier ones
	for slot := p.capacity - 1; slot >= 0; slot-- {
		f := j.readFrame(p, slot)
		if f.kind == slotUsed && f.key == key {
			return f.value, nil
		}
	}
	return Unwritten, nil
}

// WriteVar appends a frame with the value of the key. If the current
// partition is full, the live variables are moved to the other partition.
func (j *Journal) WriteVar(key uint16, value Value) error {
	if key == EmptyKey {
		return ErrInvalidKey
	}
	if j.current < 0 {
		return ErrNoActivePartition
	}
	p := j.partitions[j.current]

	slot := j.findFree(p)
	if slot < 0 {
		return j.transfer(key, value)
	}

	err := j.writeFrame(p, slot, key, value)
	if j.useHints {
		// a failed write leaves a torn frame or a free slot, both are found again
		if err == nil {
			j.nextFree = slot + 1
			j.keySlots[key] = slot
		}
	}
	return err
}

// findFree returns the lowest free slot of a partition or -1.
func (j *Journal) findFree(p partition) int {
	start := 0
	if j.useHints {
		start = j.nextFree
	}
	for slot := start; slot < p.capacity; slot++ {
		if j.readFrame(p, slot).kind == slotFree {
			if j.useHints {
				j.nextFree = slot
			}
			return slot
		}
	}
	if j.useHints {
		j.nextFree = p.capacity
	}
	return -1
}

func (j *Journal) resetHints() {
	j.nextFree = 0
	j.keySlots = map[uint16]int{}
}

// buildHints scans the current partition and rebuilds the hint state.
func (j *Journal) buildHints() {
	j.resetHints()
	if !j.useHints || j.current < 0 {
		return
	}

	p := j.partitions[j.current]
	free := p.capacity
	for slot := p.capacity - 1; slot >= 0; slot-- {
		f := j.readFrame(p, slot)
		switch f.kind {
		case slotFree:
			free = slot
		case slotUsed:
			if _, ok := j.keySlots[f.key]; !ok {
				j.keySlots[f.key] = slot
			}
		}
	}
	// slots are allocated in order, the hint is the lowest free slot
	j.nextFree = free
}
