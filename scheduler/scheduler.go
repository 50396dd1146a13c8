package scheduler

import "fmt"

// Scheduler is the I/O scheduling core: a single-threaded, deterministic
// dispatch loop coordinating event queues, the dependency store, the LBA
// lock table, and the redundancy resolver against a pluggable block
// manager, FTL, and device model.
type Scheduler struct {
	cfg    Config
	bm     BlockManager
	ftl    FTL
	device Device

	queues *eventQueues
	deps   *dependencyStore
	locks  *lockTable
	rand   *rng
	pol    policy

	nextEventID uint64
	nextOpID    uint64

	Stats Stats

	// LogEvent, when set, receives every tracing line the scheduler would
	// otherwise only print, mirroring how a front-end mirrors dispatch
	// activity to a live dashboard.
	LogEvent func(string)
}

// NewScheduler constructs a Scheduler against a validated Config and its
// three external collaborators.
func NewScheduler(cfg Config, bm BlockManager, ftl FTL, device Device) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:    cfg,
		bm:     bm,
		ftl:    ftl,
		device: device,
		queues: newEventQueues(),
		deps:   newDependencyStore(),
		locks:  newLockTable(),
		rand:   newRNG(cfg.RandomSeed),
		pol:    newPolicy(cfg.SchedulingScheme),
	}, nil
}

// NextOpID mints a fresh, monotonically increasing operation id.
func (s *Scheduler) NextOpID() OpID {
	s.nextOpID++
	return OpID(s.nextOpID)
}

// NextEventID mints a fresh, monotonically increasing event id.
func (s *Scheduler) NextEventID() uint64 {
	s.nextEventID++
	return s.nextEventID
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.cfg.PrintLevel <= 0 {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Println(msg)
	if s.LogEvent != nil {
		s.LogEvent(msg)
	}
}

// VirtualTime returns the scheduler's current clock value.
func (s *Scheduler) VirtualTime() float64 { return s.queues.currentTime() }

// HasPendingOp reports whether opID still has any tracked, uncompleted
// sub-events, letting a caller poll a specific operation to completion
// without inspecting scheduler internals directly.
func (s *Scheduler) HasPendingOp(opID OpID) bool { return s.deps.opExists(opID) }

// SetWaitTime updates the minimum bus-wait penalty applied when a die is
// busy, letting a long-running caller retune backpressure without
// reconstructing the Scheduler.
func (s *Scheduler) SetWaitTime(t float64) { s.cfg.WaitTime = t }

// IsEmpty reports false iff any event remains queued or in flight.
func (s *Scheduler) IsEmpty() bool {
	return s.queues.isEmpty() && s.deps.isEmpty()
}

// expandReads rewrites every virtual READ in queue into a dependent
// READ_COMMAND + READ_TRANSFER pair, in place of the original entry.
func expandReads(queue []*Event, s *Scheduler) []*Event {
	out := make([]*Event, 0, len(queue)+1)
	for _, e := range queue {
		if e.Type != EventRead {
			out = append(out, e)
			continue
		}
		cmd := *e
		cmd.Type = EventReadCommand
		cmd.EventID = s.NextEventID()

		xfer := *e
		xfer.Type = EventReadTransfer
		xfer.EventID = s.NextEventID()
		xfer.BusWaitTime = 0

		out = append(out, &cmd, &xfer)
	}
	return out
}

// registerChain assigns a fresh op id to every event in chain, registers it
// with the dependency store, and returns the resulting head.
func (s *Scheduler) registerChain(chain []*Event) (*Event, OpID, error) {
	opID := s.NextOpID()
	for _, e := range chain {
		e.OpID = opID
		if e.EventID == 0 {
			e.EventID = s.NextEventID()
		}
	}
	head, err := s.deps.register(opID, chain, s.NextOpID, s.NextEventID)
	if err != nil {
		return nil, 0, err
	}
	return head, opID, nil
}

// ScheduleEvent submits a single new logical operation, admitting it into
// future_events. A virtual READ is decomposed before registration.
func (s *Scheduler) ScheduleEvent(e *Event) (OpID, error) {
	return s.ScheduleEventsQueue([]*Event{e})
}

// ScheduleEventsQueue submits a new logical operation whose sub-events are
// already ordered, admitting the head into future_events.
func (s *Scheduler) ScheduleEventsQueue(queue []*Event) (OpID, error) {
	if len(queue) == 0 {
		return 0, ErrInvariantViolation("schedule called with empty queue")
	}
	queue = expandReads(queue, s)
	head, opID, err := s.registerChain(queue)
	if err != nil {
		return 0, err
	}
	s.queues.pushFuture(head)
	return opID, nil
}

// admitToCurrent is the LBA lock table's admission guard (section 4.2): it
// invokes the redundancy resolver when necessary and places e into
// current_events, as a genuine owner, a dependent, or a noop.
func (s *Scheduler) admitToCurrent(e *Event) error {
	if e.Noop {
		s.queues.pushCurrent(e)
		return nil
	}
	if e.Type == EventGarbageCollection || e.Type == EventErase || e.IsFlexibleRead {
		s.queues.pushCurrent(e)
		return nil
	}

	lba := e.LogicalAddress
	existing, held := s.locks.ownerOf(lba)
	if !held {
		s.locks.acquire(lba, e)
		if err := s.resolveReadAddress(e); err != nil {
			return err
		}
		s.queues.pushCurrent(e)
		return nil
	}
	if existing.OpID == e.OpID {
		s.queues.pushCurrent(e)
		return nil
	}

	outcome := resolveRedundancy(e, existing)
	switch outcome.action {
	case resolveFatal:
		return ErrInvariantViolation(outcome.fatalReason)

	case resolveAdmit:
		s.locks.acquire(lba, e)
		if err := s.resolveReadAddress(e); err != nil {
			return err
		}
		s.queues.pushCurrent(e)

	case resolveDependent:
		s.deps.makeDependent(e, existing.OpID)

	case resolveCancelExisting:
		if outcome.promoteNew {
			s.deps.promoteToGC(e)
		}
		existing.Noop = true
		s.locks.acquire(lba, e)
		if err := s.resolveReadAddress(e); err != nil {
			return err
		}
		s.queues.pushCurrent(e)

	case resolveCancelNew:
		if outcome.promoteOld {
			s.deps.promoteToGC(existing)
		}
		e.Noop = true
		s.queues.pushCurrent(e)
	}

	if outcome.countCancellation {
		s.Stats.NumWriteCancellations++
	}
	if outcome.note != "" {
		s.Stats.NumTrimRedundantGC++
		s.logf("[resolver] %s", outcome.note)
		if trim := trimSideOf(e, existing); trim != nil {
			s.bm.RegisterTrimMakingGCRedundant(trim)
		}
	}
	return nil
}

// resolveReadAddress fills in a freshly-owning READ_COMMAND's physical
// address via the FTL, once, at the moment it wins its LBA.
func (s *Scheduler) resolveReadAddress(e *Event) error {
	if e.Type != EventReadCommand || e.IsFlexibleRead {
		return nil
	}
	return s.ftl.SetReadAddress(e)
}

func trimSideOf(a, b *Event) *Event {
	if a.Type == EventTrim {
		return a
	}
	if b.Type == EventTrim {
		return b
	}
	return nil
}

// updateCurrentEvents shuffles every future event due by clock+1 and admits
// it, breaking timestamp ties deterministically for the configured seed.
func (s *Scheduler) updateCurrentEvents() error {
	clock := FloorTime(s.queues.currentTime())
	due := s.queues.drainDueFuture(clock)
	s.rand.shuffle(due)
	for _, e := range due {
		if err := s.admitToCurrent(e); err != nil {
			return err
		}
	}
	return nil
}

// classify partitions a tick's bucket into policy-ready classes. TRIM
// events execute immediately and are returned separately; noop events are
// likewise separated to run last.
func (s *Scheduler) classify(bucket []*Event) (classes eventClasses, trims, noops, readCmdFlex []*Event) {
	for _, e := range bucket {
		switch {
		case e.Noop:
			noops = append(noops, e)
		case e.Type == EventTrim:
			trims = append(trims, e)
		case e.Type == EventGarbageCollection:
			// handled specially by the caller before classification proper
		case e.Type == EventReadCommand:
			if e.IsFlexibleRead {
				readCmdFlex = append(readCmdFlex, e)
			} else if s.deps.typeOf[e.OpID] == EventCopyBack {
				classes.readCmdCopybackSource = append(classes.readCmdCopybackSource, e)
			} else {
				classes.readCmd = append(classes.readCmd, e)
			}
		case e.Type == EventReadTransfer:
			classes.readXfer = append(classes.readXfer, e)
		case e.Type == EventWrite || e.Type == EventCopyBack:
			if e.IsGarbageCollection {
				classes.gcWrites = append(classes.gcWrites, e)
			} else {
				classes.writes = append(classes.writes, e)
			}
		case e.Type == EventErase:
			classes.erases = append(classes.erases, e)
		}
	}

	switch s.cfg.SchedulingScheme {
	case SchemeApplicationPriority, SchemeGCPriority:
		classes.readCmd = append(classes.readCmd, readCmdFlex...)
		readCmdFlex = nil
	case SchemeFlexReadWritePriority:
		classes.writes = append(classes.writes, readCmdFlex...)
		readCmdFlex = nil
	case SchemeInterleavedEqual:
		classes.readCmd = append(classes.readCmd, readCmdFlex...)
		readCmdFlex = nil
	}
	return classes, trims, noops, readCmdFlex
}

// ExecuteSoonestEvents advances the scheduler by one tick: it admits due
// future events, executes every TRIM in-partition, dispatches the
// remaining classified events in policy order, then drains noops.
func (s *Scheduler) ExecuteSoonestEvents() error {
	if err := s.updateCurrentEvents(); err != nil {
		return err
	}

	bucket := s.queues.collectSoonestEvents()
	if bucket == nil {
		return nil
	}

	var gcRequests []*Event
	rest := bucket[:0]
	for _, e := range bucket {
		if e.Type == EventGarbageCollection && !e.Noop {
			gcRequests = append(gcRequests, e)
		} else {
			rest = append(rest, e)
		}
	}
	for _, gc := range gcRequests {
		if err := s.handleGCInjection(gc); err != nil {
			return err
		}
	}

	now := s.queues.currentTime()
	for _, e := range rest {
		if created, ok := s.deps.creationTime(e.OpID); ok {
			e.OverallWaitTime = now - created
		}
	}

	classes, trims, noops, _ := s.classify(rest)

	for _, t := range trims {
		if err := s.executeNext(t); err != nil {
			return err
		}
	}

	ordered := s.pol.order(&classes)
	for _, e := range ordered {
		var err error
		switch {
		case e.IsFlexibleRead && e.Type == EventReadCommand:
			err = s.handleFlexibleRead(e)
		case e.Type == EventReadCommand, e.Type == EventReadTransfer, e.Type == EventErase:
			err = s.handleEvent(e)
		case e.Type == EventWrite, e.Type == EventCopyBack:
			err = s.handleWrite(e)
		}
		if err != nil {
			return err
		}
	}

	for _, n := range noops {
		if err := s.handleNoop(n); err != nil {
			return err
		}
	}

	s.Stats.Timestamp = s.queues.currentTime()
	return nil
}

// FinishAllEventsUntilThisTime advances the simulation until the clock
// reaches t or no events remain.
func (s *Scheduler) FinishAllEventsUntilThisTime(t float64) error {
	for s.queues.currentTime() < t && !s.IsEmpty() {
		if err := s.ExecuteSoonestEvents(); err != nil {
			return err
		}
	}
	return nil
}

// SchedulerSnapshot is a read-only view of scheduler state for inspection.
type SchedulerSnapshot struct {
	Clock  float64       `json:"clock"`
	Queues queueSnapshot `json:"queues"`
	Stats  Stats         `json:"stats"`
}

// Snapshot returns a debug view of the scheduler's queues and counters.
func (s *Scheduler) Snapshot() SchedulerSnapshot {
	return SchedulerSnapshot{
		Clock:  s.queues.currentTime(),
		Queues: s.queues.snapshot(),
		Stats:  s.Stats,
	}
}
