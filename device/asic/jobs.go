package asic

import (
	"time"

	"asic_chain/device/chip"
	"asic_chain/log"
)

type hwJob struct {
	ID     uint8
	Work   chip.Work
	SentAt time.Time
}

// jobTable maps hardware job ids back to the work that was sent with them.
// Ids come from the model and wrap, so an id reused by a newer job
// replaces the older entry.
type jobTable struct {
	last     uint8
	started  bool
	jobs     map[uint8]*hwJob
	staleTTL time.Duration
}

const defaultStaleTTL = 120 * time.Second

func newJobTable(ttl time.Duration) *jobTable {
	if ttl <= 0 {
		ttl = defaultStaleTTL
	}
	return &jobTable{jobs: make(map[uint8]*hwJob), staleTTL: ttl}
}

func (t *jobTable) nextID(m chip.Model) uint8 {
	if !t.started {
		return 0
	}
	return m.NextJobID(t.last)
}

func (t *jobTable) add(id uint8, w chip.Work) {
	if v, ok := t.jobs[id]; ok {
		log.Debugf("hw job %d reused, dropping %q", id, v.Work.Tag)
	}
	t.jobs[id] = &hwJob{ID: id, Work: w, SentAt: time.Now()}
	t.last = id
	t.started = true
}

// find returns the job for id unless it is unknown or older than the
// stale limit.
func (t *jobTable) find(id uint8) (*hwJob, bool) {
	j, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	if time.Since(j.SentAt) > t.staleTTL {
		return nil, false
	}
	return j, true
}

func (t *jobTable) removeStale() int {
	n := 0
	for k, v := range t.jobs {
		if time.Since(v.SentAt) > t.staleTTL {
			delete(t.jobs, k)
			n++
		}
	}
	return n
}

func (t *jobTable) clear() int {
	n := len(t.jobs)
	t.jobs = make(map[uint8]*hwJob)
	t.started = false
	t.last = 0
	return n
}

func (t *jobTable) len() int {
	return len(t.jobs)
}
