package journal

import (
	"github.com/retroenv/retrogolib/log"
)

// Init reads both partition headers, finishes or rolls back an interrupted
// transfer and selects the current partition. If no partition holds a
// usable log, the device is formatted. Init is safe to call on every boot.
func (j *Journal) Init() error {
	j.current = -1
	j.resetHints()

	states := [2]State{
		j.state(j.partitions[0]),
		j.state(j.partitions[1]),
	}
	j.logger.Debug("Journal partition states",
		log.Stringer("partition_0", states[0]),
		log.Stringer("partition_1", states[1]))

	current, err := j.recover(states)
	if err != nil {
		return err
	}
	if current < 0 {
		return j.Format()
	}

	j.current = current
	j.buildHints()
	return nil
}

// recover resolves the partition states to the index of the current
// partition, or -1 if the device needs to be formatted.
func (j *Journal) recover(states [2]State) (int, error) {
	active := indexesOf(states, StateActive)
	sending := indexesOf(states, StateSending)

	switch {
	case len(active) == 1:
		current := active[0]
		other := j.partitions[1-current]

		switch states[other.index] {
		case StateErased:
			return current, nil

		case StateSending:
			// the new log is complete, only the old one was not released yet
			j.logger.Info("Finishing interrupted partition transfer", log.Int("partition", current))
			if err := j.setState(other, StateErasing); err != nil {
				return 0, err
			}

		default:
			j.logger.Info("Erasing stale partition",
				log.Int("partition", other.index),
				log.Stringer("state", states[other.index]))
		}

		if err := j.erase(other, true); err != nil {
			return 0, err
		}
		return current, nil

	case len(active) == 0 && len(sending) == 1:
		// the transfer did not complete, the sending partition still holds the log
		current := sending[0]
		other := j.partitions[1-current]
		j.logger.Info("Rolling back interrupted partition transfer", log.Int("partition", current))

		if states[other.index] != StateErased {
			if err := j.erase(other, true); err != nil {
				return 0, err
			}
		}
		return current, nil

	default:
		j.logger.Warn("No usable journal partition",
			log.Stringer("partition_0", states[0]),
			log.Stringer("partition_1", states[1]))
		return -1, nil
	}
}

func indexesOf(states [2]State, state State) []int {
	var indexes []int
	for i, s := range states {
		if s == state {
			indexes = append(indexes, i)
		}
	}
	return indexes
}
