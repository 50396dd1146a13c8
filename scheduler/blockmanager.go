package scheduler

// BlockManager owns physical-address allocation and per-die busy-time
// accounting. The scheduler never inspects device state directly; it only
// calls through this contract.
type BlockManager interface {
	// ChooseWriteAddress picks a destination for a WRITE or COPY_BACK.
	ChooseWriteAddress(event *Event) (Address, error)

	// ChooseFlexibleReadAddress returns the current best candidate list for
	// a flexible read, most-preferred first.
	ChooseFlexibleReadAddress(event *Event) ([]FlexCandidate, error)

	// InHowLongCanThisEventBeScheduled returns the nonnegative wait, in
	// simulated time units, before addr's die can accept event's type.
	// Zero means "ready now".
	InHowLongCanThisEventBeScheduled(addr Address, now float64) float64

	// CanScheduleOnDie reports whether addr's die can currently accept an
	// event of the given type for opID (e.g. register conflicts).
	CanScheduleOnDie(addr Address, t EventType, opID OpID) bool

	// Migrate returns the migration chains a GARBAGE_COLLECTION request
	// should expand into: each chain begins with a READ and ends with a
	// WRITE or COPY_BACK.
	Migrate(event *Event) ([][]*Event, error)

	// FindAlternativeCandidate is consulted when a flexible read's current
	// candidate LBA is locked by another operation; it returns the next
	// candidate to try, or false if none remain.
	FindAlternativeCandidate(event *Event) (FlexCandidate, bool)

	RegisterWriteArrival(event *Event)
	RegisterWriteOutcome(event *Event)
	RegisterEraseOutcome(event *Event)
	RegisterReadCommandOutcome(event *Event)
	RegisterReadTransferOutcome(event *Event)
	RegisterRegisterCleared(event *Event)
	RegisterTrimMakingGCRedundant(event *Event)
	Trim(event *Event)
}
