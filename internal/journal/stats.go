package journal

// Stats describes the usage of the journal.
type Stats struct {
	Current    int      // index of the current partition
	States     [2]State // states of both partitions
	UsedFrames int      // frames of the current partition that are not free
	TornFrames int      // frames of interrupted writes
	LiveKeys   int      // distinct keys
	Capacity   int      // frames per partition
}

// Stats scans the current partition and returns usage information.
func (j *Journal) Stats() (Stats, error) {
	if j.current < 0 {
		return Stats{}, ErrNoActivePartition
	}
	p := j.partitions[j.current]

	stats := Stats{
		Current:  p.index,
		Capacity: p.capacity,
	}
	for i := range j.partitions {
		stats.States[i] = j.state(j.partitions[i])
	}

	keys := map[uint16]struct{}{}
	for slot := range p.capacity {
		f := j.readFrame(p, slot)
		switch f.kind {
		case slotUsed:
			stats.UsedFrames++
			keys[f.key] = struct{}{}
		case slotTorn:
			stats.UsedFrames++
			stats.TornFrames++
		}
	}
	stats.LiveKeys = len(keys)
	return stats, nil
}

// Vars returns the latest value of every written key.
func (j *Journal) Vars() (map[uint16]Value, error) {
	if j.current < 0 {
		return nil, ErrNoActivePartition
	}
	p := j.partitions[j.current]

	vars := map[uint16]Value{}
	for slot := p.capacity - 1; slot >= 0; slot-- {
		f := j.readFrame(p, slot)
		if f.kind != slotUsed {
			continue
		}
		if _, ok := vars[f.key]; !ok {
			vars[f.key] = f.value
		}
	}
	return vars, nil
}
