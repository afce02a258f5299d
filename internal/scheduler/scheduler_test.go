package scheduler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailtwo/nexus-link-sub005/internal/scheduler"
)

type fakeProc struct {
	running bool
	endAt   int64
}

func lookupFrom(procs map[int]fakeProc) scheduler.ProcessLookup {
	return func(pid int) (bool, int64, bool) {
		p, ok := procs[pid]
		if !ok {
			return false, 0, false
		}
		return p.running, p.endAt, true
	}
}

func TestPopDueOrdersByEndAt(t *testing.T) {
	s := scheduler.New()
	procs := map[int]fakeProc{
		1: {running: true, endAt: 300},
		2: {running: true, endAt: 100},
		3: {running: true, endAt: 200},
	}
	s.ScheduleOrUpdate(1, 300)
	s.ScheduleOrUpdate(2, 100)
	s.ScheduleOrUpdate(3, 200)

	due := s.PopDue(1000, lookupFrom(procs))
	assert.Equal(t, []int{2, 3, 1}, due)
}

func TestPopDueRespectsNow(t *testing.T) {
	s := scheduler.New()
	procs := map[int]fakeProc{1: {running: true, endAt: 500}}
	s.ScheduleOrUpdate(1, 500)

	assert.Empty(t, s.PopDue(400, lookupFrom(procs)))
	assert.Equal(t, []int{1}, s.PopDue(500, lookupFrom(procs)))
}

func TestScheduleOrUpdateInvalidatesPriorEntry(t *testing.T) {
	s := scheduler.New()
	procs := map[int]fakeProc{1: {running: true, endAt: 900}}

	s.ScheduleOrUpdate(1, 100) // superseded before it becomes due
	s.ScheduleOrUpdate(1, 900)

	due := s.PopDue(100, lookupFrom(procs))
	assert.Empty(t, due, "stale entry for old endAt must not fire")

	due = s.PopDue(900, lookupFrom(procs))
	assert.Equal(t, []int{1}, due)
}

func TestCancelSuppressesEntry(t *testing.T) {
	s := scheduler.New()
	procs := map[int]fakeProc{1: {running: true, endAt: 100}}
	s.ScheduleOrUpdate(1, 100)
	s.Cancel(1)

	assert.Empty(t, s.PopDue(1000, lookupFrom(procs)))
}

func TestPopDueSkipsMismatchedProcessListState(t *testing.T) {
	s := scheduler.New()
	// process list disagrees with the heap's endAt (e.g. rescheduled
	// out-of-band) -- must not fire.
	procs := map[int]fakeProc{1: {running: true, endAt: 999}}
	s.ScheduleOrUpdate(1, 100)

	assert.Empty(t, s.PopDue(100, lookupFrom(procs)))
}

func TestPopDueSkipsNonRunning(t *testing.T) {
	s := scheduler.New()
	procs := map[int]fakeProc{1: {running: false, endAt: 100}}
	s.ScheduleOrUpdate(1, 100)

	assert.Empty(t, s.PopDue(100, lookupFrom(procs)))
}

func TestRebuildFromSnapshot(t *testing.T) {
	s := scheduler.New()
	s.Rebuild(map[int]int64{5: 50, 6: 60})

	procs := map[int]fakeProc{5: {running: true, endAt: 50}, 6: {running: true, endAt: 60}}
	due := s.PopDue(60, lookupFrom(procs))
	assert.Equal(t, []int{5, 6}, due)
}

func TestLenTracksHeapSize(t *testing.T) {
	s := scheduler.New()
	assert.Equal(t, 0, s.Len())
	s.ScheduleOrUpdate(1, 10)
	s.ScheduleOrUpdate(2, 20)
	assert.Equal(t, 2, s.Len())
}
