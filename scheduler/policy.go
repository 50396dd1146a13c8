package scheduler

import "sort"

// eventClasses is the per-tick partition of a soonest bucket. TRIM events
// are not included; they execute immediately wherever they are found and
// never participate in policy ordering.
type eventClasses struct {
	readCmd               []*Event // includes flexible reads except under SchemeFlexReadWritePriority
	readCmdCopybackSource []*Event
	readXfer              []*Event
	writes                []*Event // includes COPY_BACK
	gcWrites              []*Event
	erases                []*Event
}

func sortByBusWait(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].BusWaitTime < events[j].BusWaitTime })
}

func sortByOverallWait(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].OverallWaitTime < events[j].OverallWaitTime })
}

// policy orders a tick's classified events into the sequence handlers are
// invoked in, per SCHEDULING_SCHEME.
type policy interface {
	order(c *eventClasses) []*Event
}

func newPolicy(scheme SchedulingScheme) policy {
	switch scheme {
	case SchemeGCPriority:
		return gcPriorityPolicy{}
	case SchemeInterleavedEqual:
		return interleavedEqualPolicy{}
	case SchemeFlexReadWritePriority:
		return flexReadWritePriorityPolicy{}
	default:
		return applicationPriorityPolicy{}
	}
}

type applicationPriorityPolicy struct{}

func (applicationPriorityPolicy) order(c *eventClasses) []*Event {
	sortByBusWait(c.readCmd)
	sortByOverallWait(c.readXfer)
	sortByBusWait(c.writes)
	sortByOverallWait(c.gcWrites)
	sortByBusWait(c.erases)

	out := make([]*Event, 0, len(c.readCmd)+len(c.readXfer)+len(c.writes)+len(c.gcWrites)+len(c.erases))
	out = append(out, c.readCmd...)
	out = append(out, c.readXfer...)
	out = append(out, c.writes...)
	out = append(out, c.gcWrites...)
	out = append(out, c.erases...)
	return out
}

type gcPriorityPolicy struct{}

func (gcPriorityPolicy) order(c *eventClasses) []*Event {
	sortByBusWait(c.erases)
	sortByOverallWait(c.gcWrites)
	sortByBusWait(c.readCmd)
	sortByBusWait(c.writes)
	sortByOverallWait(c.readXfer)

	out := make([]*Event, 0, len(c.erases)+len(c.gcWrites)+len(c.readCmd)+len(c.writes)+len(c.readXfer))
	out = append(out, c.erases...)
	out = append(out, c.gcWrites...)
	out = append(out, c.readCmd...)
	out = append(out, c.writes...)
	out = append(out, c.readXfer...)
	return out
}

type interleavedEqualPolicy struct{}

func (interleavedEqualPolicy) order(c *eventClasses) []*Event {
	writes := append(append([]*Event{}, c.writes...), c.gcWrites...)
	reads := append([]*Event{}, c.readXfer...) // copy-backs already folded into writes upstream

	sortByBusWait(c.erases)
	sortByOverallWait(c.readCmd)
	sortByOverallWait(c.readCmdCopybackSource)
	sortByBusWait(writes)
	sortByOverallWait(reads)

	out := make([]*Event, 0, len(c.erases)+len(c.readCmd)+len(c.readCmdCopybackSource)+len(writes)+len(reads))
	out = append(out, c.erases...)
	out = append(out, c.readCmd...)
	out = append(out, c.readCmdCopybackSource...)
	out = append(out, writes...)
	out = append(out, reads...)
	return out
}

type flexReadWritePriorityPolicy struct{}

func (flexReadWritePriorityPolicy) order(c *eventClasses) []*Event {
	// Flexible reads were already merged into c.writes by the caller under
	// this scheme instead of c.readCmd; ordering itself matches scheme 2.
	return interleavedEqualPolicy{}.order(c)
}
