// Package scheduler implements the world's process completion scheduler:
// an indexed min-heap of (endAt, pid, revision) entries with lazy
// stale-entry discard. The heap is hand-rolled directly on a slice; the
// scheduler inserts and removes single entries every tick, so the sift
// pair below does incremental push/pop rather than a full-slice sort.
package scheduler

// entry is one heap slot. revision lets scheduleOrUpdate invalidate a
// prior entry for the same pid without a heap-internal delete: popDue
// simply discards any entry whose revision no longer matches the live
// one recorded for its pid.
type entry struct {
	endAt    int64
	pid      int
	revision int64
}

// Scheduler is the process-completion min-heap plus its pid->revision
// index.
type Scheduler struct {
	heap      []entry
	revisions map[int]int64
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{revisions: make(map[int]int64)}
}

// ScheduleOrUpdate (re)schedules pid to complete at endAt, bumping its
// revision so any previously-heaped entry for pid becomes stale.
func (s *Scheduler) ScheduleOrUpdate(pid int, endAt int64) {
	rev := s.revisions[pid] + 1
	s.revisions[pid] = rev
	s.push(entry{endAt: endAt, pid: pid, revision: rev})
}

// Cancel invalidates any pending heap entry for pid without requiring a
// heap scan; the entry becomes stale and is discarded on pop.
func (s *Scheduler) Cancel(pid int) {
	s.revisions[pid] = s.revisions[pid] + 1
}

// ProcessLookup resolves a pid to the (running, endAt) state a caller's
// process list currently holds for it, so popDue can confirm a heap entry
// still matches live state.
type ProcessLookup func(pid int) (running bool, endAt int64, ok bool)

// PopDue repeatedly pops due entries (priority <= now, revision current,
// and confirmed Running at the same endAt via lookup) and returns their
// pids in completion order. Stale or no-longer-matching entries are
// discarded without being returned.
func (s *Scheduler) PopDue(now int64, lookup ProcessLookup) []int {
	var due []int

	for len(s.heap) > 0 {
		top := s.heap[0]
		if top.endAt > now {
			break
		}

		s.popMin()

		if s.revisions[top.pid] != top.revision {
			continue // stale, superseded by a later ScheduleOrUpdate/Cancel
		}
		running, endAt, ok := lookup(top.pid)
		if !ok || !running || endAt != top.endAt {
			continue
		}

		due = append(due, top.pid)
	}

	return due
}

// Len reports the number of live (possibly stale) heap entries.
func (s *Scheduler) Len() int {
	return len(s.heap)
}

// Rebuild discards all heap state and re-seeds it from a snapshot's
// process list.
// Each (pid, endAt) pair is scheduled fresh with revision 1.
func (s *Scheduler) Rebuild(running map[int]int64) {
	s.heap = nil
	s.revisions = make(map[int]int64)
	for pid, endAt := range running {
		s.ScheduleOrUpdate(pid, endAt)
	}
}

func less(a, b entry) bool {
	if a.endAt != b.endAt {
		return a.endAt < b.endAt
	}
	return a.pid < b.pid
}

func (s *Scheduler) push(e entry) {
	s.heap = append(s.heap, e)
	s.siftUp(len(s.heap) - 1)
}

func (s *Scheduler) popMin() entry {
	top := s.heap[0]
	last := len(s.heap) - 1
	s.heap[0] = s.heap[last]
	s.heap = s.heap[:last]
	if len(s.heap) > 0 {
		s.siftDown(0)
	}
	return top
}

func (s *Scheduler) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !less(s.heap[i], s.heap[parent]) {
			return
		}
		s.heap[i], s.heap[parent] = s.heap[parent], s.heap[i]
		i = parent
	}
}

func (s *Scheduler) siftDown(root int) {
	for {
		child := 2*root + 1
		if child >= len(s.heap) {
			return
		}
		if child+1 < len(s.heap) && !less(s.heap[child], s.heap[child+1]) {
			child++
		}
		if less(s.heap[root], s.heap[child]) {
			return
		}
		s.heap[root], s.heap[child] = s.heap[child], s.heap[root]
		root = child
	}
}
