package scheduler

// lockTable maps a logical address to the event currently representing the
// operation permitted to run non-noop activity against it. At most one
// operation owns an LBA at a time; the stored Event is whichever live
// sub-event currently stands for that operation, so the redundancy
// resolver can inspect and, when cancelling, mutate it directly.
type lockTable struct {
	owner map[LBA]*Event
}

func newLockTable() *lockTable {
	return &lockTable{owner: make(map[LBA]*Event)}
}

func (lt *lockTable) ownerOf(lba LBA) (*Event, bool) {
	e, ok := lt.owner[lba]
	return e, ok
}

func (lt *lockTable) acquire(lba LBA, owner *Event) {
	lt.owner[lba] = owner
}

func (lt *lockTable) release(lba LBA) {
	delete(lt.owner, lba)
}

// releaseIfOwnedBy releases lba's lock only if it is currently held by
// opID, matching the completion-path invariant that a lock is dropped
// exactly once, by whichever operation still owns it.
func (lt *lockTable) releaseIfOwnedBy(lba LBA, opID OpID) {
	if e, ok := lt.owner[lba]; ok && e.OpID == opID {
		delete(lt.owner, lba)
	}
}
