package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeBlockManager is a minimal BlockManager sufficient to drive the
// dispatch loop without any device-busy accounting, so tests can focus on
// admission/resolver/dispatch behavior in isolation.
type fakeBlockManager struct {
	nextAddr         int
	alternative      *FlexCandidate
	alternativeUsed  bool
	trimmedRedundant []*Event
	pageOverride     int
	pageOverrideSet  bool
	busyUntil        float64
}

func (bm *fakeBlockManager) ChooseWriteAddress(e *Event) (Address, error) {
	bm.nextAddr++
	page := 0
	if bm.pageOverrideSet {
		page = bm.pageOverride
	}
	return Address{Block: bm.nextAddr, Page: page}, nil
}

func (bm *fakeBlockManager) ChooseFlexibleReadAddress(e *Event) ([]FlexCandidate, error) {
	return []FlexCandidate{{Address: Address{Die: 0}, LBA: e.LogicalAddress}}, nil
}

func (bm *fakeBlockManager) InHowLongCanThisEventBeScheduled(addr Address, now float64) float64 {
	if wait := bm.busyUntil - now; wait > 0 {
		return wait
	}
	return 0
}

func (bm *fakeBlockManager) CanScheduleOnDie(addr Address, t EventType, opID OpID) bool {
	return true
}

func (bm *fakeBlockManager) Migrate(e *Event) ([][]*Event, error) { return nil, nil }

func (bm *fakeBlockManager) FindAlternativeCandidate(e *Event) (FlexCandidate, bool) {
	if bm.alternative != nil && !bm.alternativeUsed {
		bm.alternativeUsed = true
		return *bm.alternative, true
	}
	return FlexCandidate{}, false
}

func (bm *fakeBlockManager) RegisterWriteArrival(e *Event)         {}
func (bm *fakeBlockManager) RegisterWriteOutcome(e *Event)         {}
func (bm *fakeBlockManager) RegisterEraseOutcome(e *Event)         {}
func (bm *fakeBlockManager) RegisterReadCommandOutcome(e *Event)   {}
func (bm *fakeBlockManager) RegisterReadTransferOutcome(e *Event)  {}
func (bm *fakeBlockManager) RegisterRegisterCleared(e *Event)      {}
func (bm *fakeBlockManager) RegisterTrimMakingGCRedundant(e *Event) {
	bm.trimmedRedundant = append(bm.trimmedRedundant, e)
}
func (bm *fakeBlockManager) Trim(e *Event) {}

type fakeFTL struct {
	mapping map[LBA]Address
}

func newFakeFTL() *fakeFTL { return &fakeFTL{mapping: make(map[LBA]Address)} }

func (f *fakeFTL) SetReadAddress(e *Event) error {
	addr, ok := f.mapping[e.LogicalAddress]
	if !ok {
		return SchedError{Message: "read of unmapped lba in test fixture"}
	}
	e.PhysicalAddress = addr
	return nil
}

func (f *fakeFTL) SetReplaceAddress(e *Event) error {
	f.mapping[e.LogicalAddress] = e.PhysicalAddress
	return nil
}

func (f *fakeFTL) RegisterWriteCompletion(e *Event) {}
func (f *fakeFTL) RegisterReadCompletion(e *Event)  {}
func (f *fakeFTL) RegisterTrimCompletion(e *Event) {
	delete(f.mapping, e.LogicalAddress)
}

type fakeDevice struct {
	issued     int
	lastIssued *Event
}

func (d *fakeDevice) Issue(e *Event) (DeviceStatus, error) {
	d.issued++
	d.lastIssued = e
	return DeviceSuccess, nil
}

func (d *fakeDevice) RegisterEventCompletion(e *Event) {}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeBlockManager, *fakeFTL, *fakeDevice) {
	bm := &fakeBlockManager{}
	ftl := newFakeFTL()
	dev := &fakeDevice{}
	cfg := DefaultConfig()
	sched, err := NewScheduler(cfg, bm, ftl, dev)
	require.NoError(t, err)
	return sched, bm, ftl, dev
}

// S1 — a READ at an already-mapped LBA decomposes into READ_COMMAND then
// READ_TRANSFER, with exactly two device issues, and the op fully releases.
func TestScenario_ReadDecomposition(t *testing.T) {
	sched, _, ftl, dev := newTestScheduler(t)
	ftl.mapping[100] = Address{Block: 1}

	_, err := sched.ScheduleEvent(&Event{LogicalAddress: 100, Type: EventRead, IsOriginalAppIO: true})
	require.NoError(t, err)

	require.NoError(t, sched.FinishAllEventsUntilThisTime(10))
	require.Equal(t, 2, dev.issued)
	require.Equal(t, 2, sched.Stats.NumIssued)
	require.Equal(t, 1, sched.Stats.NumOpsCompleted)
	require.True(t, sched.IsEmpty())
}

// S2 — two writes to the same LBA at the same tick: one is dispatched, the
// other is cancelled, exactly one write cancellation is counted.
func TestScenario_WriteCoalescing(t *testing.T) {
	sched, _, _, dev := newTestScheduler(t)

	first, _, err := sched.registerChain([]*Event{{LogicalAddress: 7, Type: EventWrite, IsOriginalAppIO: true}})
	require.NoError(t, err)
	require.NoError(t, sched.admitToCurrent(first))

	second, _, err := sched.registerChain([]*Event{{LogicalAddress: 7, Type: EventWrite, IsOriginalAppIO: true}})
	require.NoError(t, err)
	require.NoError(t, sched.admitToCurrent(second))

	require.NoError(t, sched.ExecuteSoonestEvents())

	require.Equal(t, 1, sched.Stats.NumWriteCancellations)
	require.Equal(t, 1, dev.issued)
	require.Equal(t, 2, sched.Stats.NumOpsCompleted)
	require.True(t, sched.IsEmpty())
}

// S3 — a read admitted behind an already-admitted write to the same LBA
// becomes dependent on it and serializes: the write issues, then the
// two-phase read, so exactly one write and one two-phase read complete.
func TestScenario_ReadAfterWriteSerializes(t *testing.T) {
	sched, _, ftl, dev := newTestScheduler(t)
	ftl.mapping[7] = Address{Block: 9}

	writeChain, _, err := sched.registerChain([]*Event{{LogicalAddress: 7, Type: EventWrite, IsOriginalAppIO: true}})
	require.NoError(t, err)
	require.NoError(t, sched.admitToCurrent(writeChain))

	readQueue := expandReads([]*Event{{LogicalAddress: 7, Type: EventRead, IsOriginalAppIO: true}}, sched)
	readChain, _, err := sched.registerChain(readQueue)
	require.NoError(t, err)
	require.NoError(t, sched.admitToCurrent(readChain))

	require.NoError(t, sched.FinishAllEventsUntilThisTime(10))

	require.Equal(t, 3, dev.issued, "one write issue plus two read-phase issues")
	require.Equal(t, 2, sched.Stats.NumOpsCompleted)
	require.True(t, sched.IsEmpty())
}

// S4 — a trim arriving behind an admitted-but-undispatched write cancels
// that write and executes itself.
func TestScenario_TrimCancelsPendingWrite(t *testing.T) {
	sched, _, _, dev := newTestScheduler(t)

	write, _, err := sched.registerChain([]*Event{{LogicalAddress: 7, Type: EventWrite, IsOriginalAppIO: true}})
	require.NoError(t, err)
	require.NoError(t, sched.admitToCurrent(write))

	trim, _, err := sched.registerChain([]*Event{{LogicalAddress: 7, Type: EventTrim, IsOriginalAppIO: true}})
	require.NoError(t, err)
	require.NoError(t, sched.admitToCurrent(trim))

	require.True(t, write.Noop, "existing write must be cancelled by the trim")
	require.NoError(t, sched.ExecuteSoonestEvents())

	require.Equal(t, 1, sched.Stats.NumWriteCancellations)
	require.Equal(t, 1, dev.issued, "only the trim reaches the device")
	require.True(t, sched.IsEmpty())
}

// S5 — a GC migration write arriving behind an in-flight application write
// to the same LBA promotes the application write to GC and cancels the new
// GC write; only one physical write occurs.
func TestScenario_GCPreemptsUserWrite(t *testing.T) {
	sched, _, _, dev := newTestScheduler(t)

	appWrite, _, err := sched.registerChain([]*Event{{LogicalAddress: 7, Type: EventWrite, IsOriginalAppIO: true}})
	require.NoError(t, err)
	require.NoError(t, sched.admitToCurrent(appWrite))
	require.False(t, appWrite.IsGarbageCollection)

	gcWrite, _, err := sched.registerChain([]*Event{{LogicalAddress: 7, Type: EventWrite, IsGarbageCollection: true}})
	require.NoError(t, err)
	require.NoError(t, sched.admitToCurrent(gcWrite))

	require.True(t, gcWrite.Noop)
	require.True(t, appWrite.IsGarbageCollection, "existing op promoted to GC")

	require.NoError(t, sched.ExecuteSoonestEvents())

	require.Equal(t, 1, sched.Stats.NumWriteCancellations)
	require.Equal(t, 1, dev.issued, "only the promoted application write reaches the device")
	require.Equal(t, 2, sched.Stats.NumOpsCompleted)
}

// S6 — a flexible read whose sole candidate's LBA is locked by another op
// asks the block manager for an alternative and eventually dispatches.
func TestScenario_FlexibleReadAlternatesCandidate(t *testing.T) {
	sched, bm, _, dev := newTestScheduler(t)
	bm.alternative = &FlexCandidate{Address: Address{Die: 1}, LBA: 200}

	lockedWrite, _, err := sched.registerChain([]*Event{{LogicalAddress: 100, Type: EventWrite, IsOriginalAppIO: true}})
	require.NoError(t, err)
	require.NoError(t, sched.admitToCurrent(lockedWrite))

	flexRead, _, err := sched.registerChain([]*Event{{
		LogicalAddress:  100,
		Type:            EventReadCommand,
		IsFlexibleRead:  true,
		IsOriginalAppIO: true,
	}})
	require.NoError(t, err)
	require.NoError(t, sched.handleFlexibleRead(flexRead))

	require.True(t, bm.alternativeUsed, "FindAlternativeCandidate must be consulted once the first candidate is locked")
	require.Equal(t, 1, sched.Stats.NumFlexReadRetries)
	require.Len(t, flexRead.FlexCandidates, 2, "the alternative is appended alongside the locked candidate")
	current, ok := flexRead.currentCandidate()
	require.True(t, ok)
	require.Equal(t, LBA(200), current.LBA, "re-pushed onto the alternative candidate's LBA")
	require.Equal(t, 0, dev.issued, "still waiting, not yet dispatched")
}

func TestIsEmptyAfterFullRun(t *testing.T) {
	sched, _, ftl, _ := newTestScheduler(t)
	ftl.mapping[1] = Address{Block: 1}
	ftl.mapping[2] = Address{Block: 2}

	_, err := sched.ScheduleEvent(&Event{LogicalAddress: 1, Type: EventWrite, IsOriginalAppIO: true})
	require.NoError(t, err)
	_, err = sched.ScheduleEvent(&Event{LogicalAddress: 2, Type: EventRead, IsOriginalAppIO: true})
	require.NoError(t, err)

	require.NoError(t, sched.FinishAllEventsUntilThisTime(10))
	require.True(t, sched.IsEmpty())

	snap := sched.Snapshot()
	require.Equal(t, 0, snap.Queues.FutureCount)
	require.Empty(t, snap.Queues.CurrentTicks)
}

// A block manager that hands out a page at or beyond block_size violates
// the scheduler's own dispatch invariant and must never reach the device.
func TestExecuteNextRejectsPageOutOfBlockSizeBounds(t *testing.T) {
	sched, bm, _, dev := newTestScheduler(t)
	bm.pageOverrideSet = true
	bm.pageOverride = sched.cfg.BlockSize

	_, err := sched.ScheduleEvent(&Event{LogicalAddress: 1, Type: EventWrite, IsOriginalAppIO: true})
	require.NoError(t, err)

	err = sched.FinishAllEventsUntilThisTime(10)
	require.Error(t, err)
	require.Equal(t, 0, dev.issued, "an out-of-bounds address must never reach the device")
}

// OverallWaitTime reflects the full time since an op's first sub-event was
// created, not just the bus wait accrued since its last re-push.
func TestOverallWaitTimeReflectsElapsedTimeSinceCreation(t *testing.T) {
	sched, bm, _, dev := newTestScheduler(t)
	bm.busyUntil = 5

	_, err := sched.ScheduleEvent(&Event{LogicalAddress: 1, Type: EventWrite, IsOriginalAppIO: true})
	require.NoError(t, err)

	require.NoError(t, sched.FinishAllEventsUntilThisTime(10))
	require.Equal(t, 1, dev.issued)
	require.NotNil(t, dev.lastIssued)
	require.GreaterOrEqual(t, dev.lastIssued.OverallWaitTime, 5.0, "op sat waiting on the busy die for several ticks before dispatch")
}
