package devicesim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miretskiy/mqsched/scheduler"
)

func TestSimpleFTL_WriteThenReadRoundTrips(t *testing.T) {
	ftl := NewSimpleFTL()
	addr := scheduler.Address{Package: 1, Die: 2, Plane: 0, Block: 3, Page: 4}

	write := &scheduler.Event{LogicalAddress: 9, PhysicalAddress: addr}
	require.NoError(t, ftl.SetReplaceAddress(write))

	read := &scheduler.Event{LogicalAddress: 9}
	require.NoError(t, ftl.SetReadAddress(read))
	require.Equal(t, addr, read.PhysicalAddress)
}

func TestSimpleFTL_ReadOfUnmappedLBAFails(t *testing.T) {
	ftl := NewSimpleFTL()
	err := ftl.SetReadAddress(&scheduler.Event{LogicalAddress: 100})
	require.Error(t, err)
}

func TestSimpleFTL_TrimRemovesMapping(t *testing.T) {
	ftl := NewSimpleFTL()
	ftl.mapping[9] = scheduler.Address{Block: 1}

	ftl.RegisterTrimCompletion(&scheduler.Event{LogicalAddress: 9})

	_, ok := ftl.Lookup(9)
	require.False(t, ok)
}

func TestSimpleFTL_WriteToSameLBATwiceRemaps(t *testing.T) {
	ftl := NewSimpleFTL()
	first := scheduler.Address{Block: 1}
	second := scheduler.Address{Block: 2}

	require.NoError(t, ftl.SetReplaceAddress(&scheduler.Event{LogicalAddress: 9, PhysicalAddress: first}))
	require.NoError(t, ftl.SetReplaceAddress(&scheduler.Event{LogicalAddress: 9, PhysicalAddress: second}))

	addr, ok := ftl.Lookup(9)
	require.True(t, ok)
	require.Equal(t, second, addr)
}
