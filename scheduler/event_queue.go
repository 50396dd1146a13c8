package scheduler

import "sort"

// eventQueues holds the scheduler's two event collections: an unordered
// future bag and a current, time-bucketed map keyed by floored simulated
// time. The smallest current-events key is "now".
type eventQueues struct {
	future  []*Event
	current map[int64][]*Event
}

func newEventQueues() *eventQueues {
	return &eventQueues{
		current: make(map[int64][]*Event),
	}
}

func (q *eventQueues) pushFuture(e *Event) {
	q.future = append(q.future, e)
}

// pushCurrent buckets e by its floored current time.
func (q *eventQueues) pushCurrent(e *Event) {
	key := FloorTime(e.CurrentTime)
	q.current[key] = append(q.current[key], e)
}

func (q *eventQueues) isEmpty() bool {
	return len(q.future) == 0 && len(q.current) == 0
}

// currentTime reports the scheduler's clock: the smallest current_events
// key if any bucket is non-empty, else the floor of the earliest
// future_events timestamp, else 0.
func (q *eventQueues) currentTime() float64 {
	if key, ok := q.smallestCurrentKey(); ok {
		return float64(key)
	}
	if len(q.future) > 0 {
		min := q.future[0].CurrentTime
		for _, e := range q.future[1:] {
			if e.CurrentTime < min {
				min = e.CurrentTime
			}
		}
		return float64(FloorTime(min))
	}
	return 0
}

func (q *eventQueues) smallestCurrentKey() (int64, bool) {
	first := true
	var min int64
	for k, bucket := range q.current {
		if len(bucket) == 0 {
			continue
		}
		if first || k < min {
			min = k
			first = false
		}
	}
	return min, !first
}

// collectSoonestEvents removes and returns the entire bucket at the
// smallest key, or nil if current_events is empty.
func (q *eventQueues) collectSoonestEvents() []*Event {
	key, ok := q.smallestCurrentKey()
	if !ok {
		return nil
	}
	events := q.current[key]
	delete(q.current, key)
	return events
}

// drainDueFuture removes and returns every future event whose floored
// current time is < clock+1, in stable arrival order; the caller is
// expected to shuffle before admitting them, per the seeded tie-break rule.
func (q *eventQueues) drainDueFuture(clock int64) []*Event {
	due := make([]*Event, 0)
	remaining := q.future[:0]
	for _, e := range q.future {
		if FloorTime(e.CurrentTime) < clock+1 {
			due = append(due, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	q.future = remaining
	return due
}

// snapshot returns a read-only summary of queue sizes (the future-event
// count and the event count per current-time bucket) for inspection, e.g.
// property tests and the dashboard front-end.
type queueSnapshot struct {
	FutureCount  int           `json:"futureCount"`
	CurrentTicks map[int64]int `json:"currentTicks"`
}

func (q *eventQueues) snapshot() queueSnapshot {
	ticks := make(map[int64]int, len(q.current))
	for k, bucket := range q.current {
		ticks[k] = len(bucket)
	}
	return queueSnapshot{FutureCount: len(q.future), CurrentTicks: ticks}
}

// sortedCurrentKeys returns current_events keys in ascending order, used
// only by inspection/debug helpers, never by the dispatch loop itself.
func (q *eventQueues) sortedCurrentKeys() []int64 {
	keys := make([]int64, 0, len(q.current))
	for k := range q.current {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
