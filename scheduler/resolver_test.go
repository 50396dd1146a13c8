package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveRedundancy_WriteWriteCancelsExisting(t *testing.T) {
	existing := &Event{OpID: 1, Type: EventWrite}
	incoming := &Event{OpID: 2, Type: EventWrite}

	outcome := resolveRedundancy(incoming, existing)
	require.Equal(t, resolveCancelExisting, outcome.action)
	require.True(t, outcome.countCancellation)
}

func TestResolveRedundancy_GCReadCancelsAgainstExistingWrite(t *testing.T) {
	existing := &Event{OpID: 1, Type: EventWrite}
	incoming := &Event{OpID: 2, Type: EventReadCommand, IsGarbageCollection: true}

	outcome := resolveRedundancy(incoming, existing)
	require.Equal(t, resolveCancelNew, outcome.action)
	require.True(t, outcome.promoteOld)
	require.True(t, outcome.countCancellation)
}

func TestResolveRedundancy_ExistingGCYieldsToApplicationWrite(t *testing.T) {
	existing := &Event{OpID: 1, Type: EventWrite, IsGarbageCollection: true}
	incoming := &Event{OpID: 2, Type: EventWrite}

	outcome := resolveRedundancy(incoming, existing)
	require.Equal(t, resolveCancelExisting, outcome.action)
	require.True(t, outcome.promoteNew)
	require.Empty(t, outcome.note)
}

func TestResolveRedundancy_TrimCancelsExistingWrite(t *testing.T) {
	existing := &Event{OpID: 1, Type: EventWrite}
	incoming := &Event{OpID: 2, Type: EventTrim}

	outcome := resolveRedundancy(incoming, existing)
	require.Equal(t, resolveCancelExisting, outcome.action)
	require.True(t, outcome.countCancellation)
	require.Empty(t, outcome.note)
}

func TestResolveRedundancy_TrimCancelsExistingGCWriteNotesRedundancy(t *testing.T) {
	existing := &Event{OpID: 1, Type: EventWrite, IsGarbageCollection: true}
	incoming := &Event{OpID: 2, Type: EventTrim}

	outcome := resolveRedundancy(incoming, existing)
	require.Equal(t, resolveCancelExisting, outcome.action)
	require.Equal(t, "trim made GC redundant", outcome.note)
}

func TestResolveRedundancy_WriteDependsOnOutstandingRead(t *testing.T) {
	existing := &Event{OpID: 1, Type: EventReadCommand}
	incoming := &Event{OpID: 2, Type: EventWrite}

	outcome := resolveRedundancy(incoming, existing)
	require.Equal(t, resolveDependent, outcome.action)
}

func TestResolveRedundancy_TwoApplicationReadsCancelNew(t *testing.T) {
	existing := &Event{OpID: 1, Type: EventReadCommand}
	incoming := &Event{OpID: 2, Type: EventReadCommand}

	outcome := resolveRedundancy(incoming, existing)
	require.Equal(t, resolveCancelNew, outcome.action)
}

func TestResolveRedundancy_GCReadBehindAnotherReadIsDependent(t *testing.T) {
	existing := &Event{OpID: 1, Type: EventReadCommand}
	incoming := &Event{OpID: 2, Type: EventReadCommand, IsGarbageCollection: true}

	outcome := resolveRedundancy(incoming, existing)
	require.Equal(t, resolveDependent, outcome.action)
}

func TestResolveRedundancy_UncategorizedPairingIsFatal(t *testing.T) {
	existing := &Event{OpID: 1, Type: EventErase}
	incoming := &Event{OpID: 2, Type: EventErase}

	outcome := resolveRedundancy(incoming, existing)
	require.Equal(t, resolveFatal, outcome.action)
	require.NotEmpty(t, outcome.fatalReason)
}
