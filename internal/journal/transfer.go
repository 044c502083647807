package journal

import (
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
)

// transfer moves the latest value of every live key of the full current
// partition to the other partition, appends the pending frame and erases the
// full partition without waiting for the erase to finish.
//
// Header transitions, each a single byte program:
//
//	sending:   active -> sending ............................ -> erasing
//	receiving:          erased -> receiving -> (copy) -> active
//
// A power loss before the receiving partition is active leaves the sending
// partition as the current log, after that the transfer is finished on the
// next Init.
func (j *Journal) transfer(key uint16, value Value) error {
	sending := j.partitions[j.current]
	receiving := j.partitions[1-j.current]

	live := j.countLiveKeys(sending, key)
	if live+1 > receiving.capacity {
		j.logger.Warn("Journal full",
			log.Int("live_keys", live),
			log.Int("capacity", receiving.capacity))
		return fmt.Errorf("%w: %d live keys", ErrFull, live)
	}

	j.logger.Debug("Transferring partition",
		log.Int("from", sending.index),
		log.Int("to", receiving.index),
		log.Int("live_keys", live))

	if err := j.setState(sending, StateSending); err != nil {
		return err
	}

	// an interrupted erase can leave data behind an erased header
	if err := j.clean(receiving); err != nil {
		return err
	}
	if err := j.setState(receiving, StateReceiving); err != nil {
		return err
	}

	keySlots, slot, err := j.copyLive(sending, receiving, key)
	if err != nil {
		return err
	}
	if err := j.writeFrame(receiving, slot, key, value); err != nil {
		return err
	}
	keySlots[key] = slot

	if err := j.setState(receiving, StateActive); err != nil {
		return err
	}
	j.current = receiving.index
	j.keySlots = keySlots
	j.nextFree = slot + 1

	if err := j.setState(sending, StateErasing); err != nil {
		return err
	}
	return j.erase(sending, false)
}

// countLiveKeys returns the number of distinct keys of a partition, not
// counting the excluded key.
func (j *Journal) countLiveKeys(p partition, exclude uint16) int {
	seen := set.New[uint16]()
	seen.Add(exclude)

	count := 0
	for slot := range p.capacity {
		f := j.readFrame(p, slot)
		if f.kind != slotUsed || seen.Contains(f.key) {
			continue
		}
		seen.Add(f.key)
		count++
	}
	return count
}

// copyLive appends the latest frame of every key except the skipped one to
// the receiving partition. Scanning backward visits the latest frame of a
// key first. It returns the slots of the copied keys and the next free slot
// of the receiving partition.
func (j *Journal) copyLive(sending, receiving partition, skip uint16) (map[uint16]int, int, error) {
	keySlots := map[uint16]int{}
	migrated := set.New[uint16]()
	migrated.Add(skip)

	next := 0
	for slot := sending.capacity - 1; slot >= 0; slot-- {
		f := j.readFrame(sending, slot)
		if f.kind != slotUsed || migrated.Contains(f.key) {
			continue
		}
		migrated.Add(f.key)

		if err := j.writeFrame(receiving, next, f.key, f.value); err != nil {
			return nil, 0, err
		}
		keySlots[f.key] = next
		next++
	}
	return keySlots, next, nil
}
