package scheduler

import "fmt"

// handleEvent dispatches a READ_COMMAND, READ_TRANSFER, or ERASE event: if
// the block manager reports the die ready now, it is issued; otherwise it
// is re-pushed with an incremented bus-wait.
func (s *Scheduler) handleEvent(e *Event) error {
	wait := s.bm.InHowLongCanThisEventBeScheduled(e.PhysicalAddress, s.queues.currentTime())
	dieOK := s.bm.CanScheduleOnDie(e.PhysicalAddress, e.Type, e.OpID)
	if wait <= 0 && dieOK {
		return s.executeNext(e)
	}
	s.rePushWithWait(e, wait)
	return nil
}

func (s *Scheduler) rePushWithWait(e *Event, bmWait float64) {
	penalty := bmWait
	if s.cfg.WaitTime > penalty {
		penalty = s.cfg.WaitTime
	}
	e.BusWaitTime += penalty
	e.CurrentTime = s.queues.currentTime() + penalty
	s.queues.pushCurrent(e)
}

// handleWrite dispatches a WRITE or COPY_BACK: the block manager picks a
// destination address, then the same readiness test as handleEvent applies.
// A COPY_BACK whose chosen address turns out invalid is rewritten in place
// by transformCopyback.
func (s *Scheduler) handleWrite(e *Event) error {
	addr, err := s.bm.ChooseWriteAddress(e)
	if err != nil {
		if e.Type == EventCopyBack {
			return s.transformCopyback(e)
		}
		return err
	}
	e.PhysicalAddress = addr

	wait := s.bm.InHowLongCanThisEventBeScheduled(addr, s.queues.currentTime())
	dieOK := s.bm.CanScheduleOnDie(addr, e.Type, e.OpID)
	if wait > 0 || !dieOK {
		s.rePushWithWait(e, wait)
		return nil
	}

	if err := s.ftl.SetReplaceAddress(e); err != nil {
		return err
	}
	return s.executeNext(e)
}

// transformCopyback rewrites a COPY_BACK whose destination could not be
// allocated into a READ_TRANSFER at the copy-back's original source
// address, followed by a fresh GC-flagged WRITE appended to the same op's
// queue, per the recorded (not reverse-engineered) intent behind the
// original's back-of-queue enqueue.
func (s *Scheduler) transformCopyback(e *Event) error {
	source := e.PhysicalAddress
	e.Type = EventReadTransfer
	e.PhysicalAddress = source

	follow := &Event{
		OpID:                e.OpID,
		EventID:             s.NextEventID(),
		LogicalAddress:      e.LogicalAddress,
		Type:                EventWrite,
		IsGarbageCollection: true,
		CurrentTime:         e.CurrentTime,
	}
	s.deps.appendTail(e.OpID, follow)
	s.deps.typeOf[e.OpID] = EventWrite

	s.queues.pushCurrent(e)
	return nil
}

// handleFlexibleRead asks the block manager for a candidate physical
// address among a flexible read's replicas. If the candidate's LBA is held
// by another operation, a fresh candidate is requested and the event is
// re-pushed; otherwise the read commences against the chosen candidate.
func (s *Scheduler) handleFlexibleRead(e *Event) error {
	candidates, err := s.bm.ChooseFlexibleReadAddress(e)
	if err != nil {
		return err
	}
	if len(candidates) > 0 {
		e.FlexCandidates = candidates
		e.FlexCandidate = 0
	}

	addr, ok := e.currentCandidate()
	if !ok {
		s.rePushWithWait(e, s.cfg.WaitTime)
		return nil
	}

	if owner, held := s.locks.ownerOf(addr.LBA); held && owner.OpID != e.OpID {
		if alt, found := s.bm.FindAlternativeCandidate(e); found {
			e.FlexCandidates = append(e.FlexCandidates, alt)
			e.FlexCandidate = len(e.FlexCandidates) - 1
		}
		s.Stats.NumFlexReadRetries++
		s.rePushWithWait(e, s.cfg.WaitTime)
		return nil
	}

	e.PhysicalAddress = addr.Address
	e.LogicalAddress = addr.LBA
	s.locks.acquire(addr.LBA, e)

	wait := s.bm.InHowLongCanThisEventBeScheduled(addr.Address, s.queues.currentTime())
	dieOK := s.bm.CanScheduleOnDie(addr.Address, e.Type, e.OpID)
	if wait > 0 || !dieOK {
		s.rePushWithWait(e, wait)
		return nil
	}
	return s.executeNext(e)
}

// executeNext issues e to the device. On success it notifies the block
// manager/FTL of the matching completion, then advances the dependency
// chain: either the next sub-event is admitted, or the operation completes.
func (s *Scheduler) executeNext(e *Event) error {
	if e.PhysicalAddress.Page < 0 || e.PhysicalAddress.Page >= s.cfg.BlockSize {
		return ErrInvariantViolation(fmt.Sprintf("physical address %s out of bounds: page must be < block_size (%d)", e.PhysicalAddress, s.cfg.BlockSize))
	}

	status, err := s.device.Issue(e)
	if err != nil {
		return err
	}
	if status == DeviceFailure {
		s.deps.complete(e.OpID, e)
		s.locks.releaseIfOwnedBy(e.LogicalAddress, e.OpID)
		s.device.RegisterEventCompletion(e)
		return &DeviceFailureError{OpID: e.OpID, Event: e}
	}

	s.Stats.NumIssued++
	s.notifyCompletion(e)

	next, hasMore := s.deps.advance(e.OpID, e)
	if hasMore {
		s.locks.releaseIfOwnedBy(e.LogicalAddress, e.OpID)
		if err := s.admitToCurrent(next); err != nil {
			return err
		}
		return nil
	}

	s.locks.releaseIfOwnedBy(e.LogicalAddress, e.OpID)
	dependentHeads := s.deps.complete(e.OpID, e)
	s.Stats.NumOpsCompleted++
	for _, head := range dependentHeads {
		if err := s.admitToCurrent(head); err != nil {
			return err
		}
	}
	s.device.RegisterEventCompletion(e)
	return nil
}

// notifyCompletion routes a successfully issued event to the appropriate
// block-manager/FTL completion callbacks per its type.
func (s *Scheduler) notifyCompletion(e *Event) {
	switch e.Type {
	case EventWrite, EventCopyBack:
		s.bm.RegisterWriteOutcome(e)
		s.ftl.RegisterWriteCompletion(e)
	case EventReadCommand:
		s.bm.RegisterReadCommandOutcome(e)
	case EventReadTransfer:
		s.bm.RegisterReadTransferOutcome(e)
		s.ftl.RegisterReadCompletion(e)
		s.bm.RegisterRegisterCleared(e)
	case EventErase:
		s.bm.RegisterEraseOutcome(e)
	case EventTrim:
		s.bm.Trim(e)
		s.ftl.RegisterTrimCompletion(e)
	}
}

// handleNoop drains every remaining sub-event of a cancelled operation,
// registering each as completed without touching the device, then runs
// dependent admission exactly as a normal completion would.
func (s *Scheduler) handleNoop(e *Event) error {
	s.Stats.NumNoopCompletions++
	s.locks.releaseIfOwnedBy(e.LogicalAddress, e.OpID)

	last := e
	for s.deps.hasPending(e.OpID) {
		next, ok := s.deps.advance(e.OpID, e)
		if !ok {
			break
		}
		next.Noop = true
		s.locks.releaseIfOwnedBy(next.LogicalAddress, e.OpID)
		last = next
	}

	dependentHeads := s.deps.complete(e.OpID, last)
	s.Stats.NumOpsCompleted++
	for _, head := range dependentHeads {
		if err := s.admitToCurrent(head); err != nil {
			return err
		}
	}
	return nil
}

// PromoteToGC flips e's GC flag and that of every remaining queued
// sub-event of its operation. Exposed for the block manager to assemble
// migration chains.
func (s *Scheduler) PromoteToGC(e *Event) {
	s.deps.promoteToGC(e)
}

// MakeDependent registers e's operation as blocked on independentOpID.
// Exposed for the block manager to assemble migration chains.
func (s *Scheduler) MakeDependent(e *Event, independentOpID OpID) {
	s.deps.makeDependent(e, independentOpID)
}

// handleGCInjection expands a GARBAGE_COLLECTION request into the
// migrations the block manager reports, registering each under a fresh op
// id and admitting its head immediately, then releases the request's own op.
func (s *Scheduler) handleGCInjection(e *Event) error {
	migrations, err := s.bm.Migrate(e)
	if err != nil {
		return err
	}
	for _, chain := range migrations {
		if len(chain) == 0 {
			continue
		}
		chain = expandReads(chain, s)
		for _, ev := range chain {
			ev.IsGarbageCollection = true
		}
		head, opID, err := s.registerChain(chain)
		if err != nil {
			return err
		}
		terminal := chain[len(chain)-1]
		s.deps.typeOf[opID] = terminal.Type
		s.deps.lbaOf[opID] = terminal.LogicalAddress
		s.Stats.NumGCMigrations++
		if err := s.admitToCurrent(head); err != nil {
			return err
		}
	}
	for _, head := range s.deps.complete(e.OpID, e) {
		if err := s.admitToCurrent(head); err != nil {
			return err
		}
	}
	return nil
}
