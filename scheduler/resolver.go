package scheduler

// resolution names the outcome the redundancy resolver reaches for a
// candidate event contending for an LBA another operation already owns.
type resolution int

const (
	resolveAdmit resolution = iota
	resolveDependent
	resolveCancelExisting
	resolveCancelNew
	resolveFatal
)

// resolverOutcome carries the resolver's verdict plus any bookkeeping side
// effects the caller must apply (a GC promotion, a note for tracing).
type resolverOutcome struct {
	action            resolution
	promoteNew        bool
	promoteOld        bool
	countCancellation bool
	note              string
	fatalReason       string
}

func isReadType(t EventType) bool {
	return t == EventRead || t == EventReadCommand || t == EventReadTransfer
}

// resolveRedundancy implements the first-match-wins decision table applied
// when newEvent targets an LBA already owned by existing's operation.
// It does not mutate either event; callers apply promoteNew/promoteOld via
// dependencyStore.promoteToGC and perform the admit/dependent/cancel action.
func resolveRedundancy(newEvent, existing *Event) resolverOutcome {
	tn, to := newEvent.Type, existing.Type
	gn, go_ := newEvent.IsGarbageCollection, existing.IsGarbageCollection

	switch {
	case gn && to == EventWrite:
		return resolverOutcome{action: resolveCancelNew, promoteOld: true, countCancellation: true}

	case gn && to == EventTrim:
		return resolverOutcome{action: resolveCancelNew, note: "trim made GC redundant"}

	case go_ && (tn == EventWrite || tn == EventTrim):
		note := ""
		if tn == EventTrim {
			note = "trim made GC redundant"
		}
		return resolverOutcome{action: resolveCancelExisting, promoteNew: true, note: note}

	case tn == EventWrite && to == EventWrite:
		return resolverOutcome{action: resolveCancelExisting, countCancellation: true}

	case tn == EventWrite && to == EventRead && existing.IsMappingOp:
		return resolverOutcome{action: resolveCancelExisting}

	case tn == EventCopyBack && to == EventRead:
		return resolverOutcome{action: resolveCancelExisting}

	case tn == EventWrite && (to == EventRead || to == EventReadCommand || to == EventReadTransfer):
		return resolverOutcome{action: resolveDependent}

	case isReadType(tn) && (to == EventWrite || to == EventCopyBack):
		return resolverOutcome{action: resolveDependent}

	case isReadType(tn) && isReadType(to):
		if !gn {
			return resolverOutcome{action: resolveCancelNew}
		}
		return resolverOutcome{action: resolveDependent}

	case tn == EventTrim && to == EventWrite:
		note := ""
		if go_ {
			note = "trim made GC redundant"
		}
		return resolverOutcome{action: resolveCancelExisting, countCancellation: true, note: note}

	case tn == EventWrite && to == EventTrim:
		return resolverOutcome{action: resolveDependent}

	case tn == EventTrim && isReadType(to):
		return resolverOutcome{action: resolveDependent}

	case isReadType(tn) && to == EventTrim:
		if gn {
			return resolverOutcome{action: resolveCancelNew, note: "trim made GC redundant"}
		}
		return resolverOutcome{action: resolveDependent}

	default:
		return resolverOutcome{action: resolveFatal, fatalReason: "resolver saw an uncategorized (new, existing) type pairing"}
	}
}
