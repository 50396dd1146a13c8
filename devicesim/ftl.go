package devicesim

import (
	"fmt"

	"github.com/miretskiy/mqsched/scheduler"
)

// SimpleFTL is a flat logical-to-physical map, the reference FTL
// implementation exercising scheduler.FTL.
type SimpleFTL struct {
	mapping map[scheduler.LBA]scheduler.Address
}

// NewSimpleFTL constructs an empty mapping table.
func NewSimpleFTL() *SimpleFTL {
	return &SimpleFTL{mapping: make(map[scheduler.LBA]scheduler.Address)}
}

// Lookup returns the physical address currently mapped for lba, if any.
func (f *SimpleFTL) Lookup(lba scheduler.LBA) (scheduler.Address, bool) {
	addr, ok := f.mapping[lba]
	return addr, ok
}

// Unmap removes lba's mapping, as TRIM does.
func (f *SimpleFTL) Unmap(lba scheduler.LBA) {
	delete(f.mapping, lba)
}

// SetReadAddress resolves event's physical address from the current
// mapping. An unmapped LBA is an invariant violation: nothing schedules a
// read against data that was never written.
func (f *SimpleFTL) SetReadAddress(event *scheduler.Event) error {
	addr, ok := f.mapping[event.LogicalAddress]
	if !ok {
		return fmt.Errorf("devicesim: read of unmapped lba %d", event.LogicalAddress)
	}
	event.PhysicalAddress = addr
	return nil
}

// SetReplaceAddress records event's chosen physical address as the new
// mapping for its logical address, ahead of the write actually completing
// (matching the original's reserve-before-write ordering).
func (f *SimpleFTL) SetReplaceAddress(event *scheduler.Event) error {
	f.mapping[event.LogicalAddress] = event.PhysicalAddress
	return nil
}

func (f *SimpleFTL) RegisterWriteCompletion(event *scheduler.Event) {}

func (f *SimpleFTL) RegisterReadCompletion(event *scheduler.Event) {}

func (f *SimpleFTL) RegisterTrimCompletion(event *scheduler.Event) {
	f.Unmap(event.LogicalAddress)
}
