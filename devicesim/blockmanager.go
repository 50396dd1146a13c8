// Package devicesim provides a reference block manager, FTL, and device
// timing model sufficient to drive scheduler.Scheduler end to end. Only the
// "parallel" block-manager strategy is implemented; the others named in the
// scheduling core's configuration are concrete strategies outside its
// scope.
package devicesim

import (
	"fmt"
	"sort"

	"github.com/miretskiy/mqsched/scheduler"
)

// Geometry describes the physical shape of a simulated array.
type Geometry struct {
	Packages int
	Dies     int
	Planes   int
	Blocks   int
	Pages    int
}

// DefaultGeometry returns a small but non-trivial parallel array.
func DefaultGeometry() Geometry {
	return Geometry{Packages: 2, Dies: 4, Planes: 2, Blocks: 8, Pages: 256}
}

type dieState struct {
	busyUntil    float64
	registerBusy map[scheduler.OpID]bool
}

// ParallelBlockManager is the reference BLOCK_MANAGER_ID=0 strategy: it
// tracks per-die busy-until times across a package/die/plane/block/page
// grid and allocates write destinations round-robin within the
// least-recently-used die.
type ParallelBlockManager struct {
	geo  Geometry
	dies map[[2]int]*dieState

	nextPageInBlock map[[4]int]int // (pkg,die,plane,block) -> next free page
	nextDie         int

	ftl *SimpleFTL

	commandLatency  float64
	transferLatency float64
	writeLatency    float64
	eraseLatency    float64
}

// NewParallelBlockManager constructs a reference block manager over geo,
// backed by ftl for GC migration source lookups.
func NewParallelBlockManager(geo Geometry, ftl *SimpleFTL) *ParallelBlockManager {
	bm := &ParallelBlockManager{
		geo:             geo,
		dies:            make(map[[2]int]*dieState),
		nextPageInBlock: make(map[[4]int]int),
		ftl:             ftl,
		commandLatency:  0.1,
		transferLatency: 0.5,
		writeLatency:    0.8,
		eraseLatency:    2.0,
	}
	for p := 0; p < geo.Packages; p++ {
		for d := 0; d < geo.Dies; d++ {
			bm.dies[[2]int{p, d}] = &dieState{registerBusy: make(map[scheduler.OpID]bool)}
		}
	}
	return bm
}

func (bm *ParallelBlockManager) die(addr scheduler.Address) *dieState {
	return bm.dies[[2]int{addr.Package, addr.Die}]
}

// ChooseWriteAddress picks the next die in round-robin order and allocates
// its next free page, moving on to the next block once a block fills. Pages
// are counted per die; once every block of the chosen die has been used it
// returns an error. There is no per-block erase-then-reuse accounting.
func (bm *ParallelBlockManager) ChooseWriteAddress(event *scheduler.Event) (scheduler.Address, error) {
	pkg := bm.nextDie / bm.geo.Dies % bm.geo.Packages
	die := bm.nextDie % bm.geo.Dies
	bm.nextDie++

	key := [4]int{pkg, die, 0, 0}
	page := bm.nextPageInBlock[key]
	block := 0
	if page >= bm.geo.Pages {
		block = page / bm.geo.Pages
		page = page % bm.geo.Pages
	}
	bm.nextPageInBlock[key]++

	if block >= bm.geo.Blocks {
		return scheduler.Address{}, fmt.Errorf("devicesim: no free block on package %d die %d", pkg, die)
	}

	return scheduler.Address{Package: pkg, Die: die, Plane: 0, Block: block, Page: page}, nil
}

// ChooseFlexibleReadAddress reports the mapped location of event's logical
// address as the sole (non-redundant) candidate. A real replicated array
// would offer several; this reference model has one copy per LBA.
func (bm *ParallelBlockManager) ChooseFlexibleReadAddress(event *scheduler.Event) ([]scheduler.FlexCandidate, error) {
	addr, ok := bm.ftl.Lookup(event.LogicalAddress)
	if !ok {
		return nil, fmt.Errorf("devicesim: no mapping for lba %d", event.LogicalAddress)
	}
	return []scheduler.FlexCandidate{{Address: addr, LBA: event.LogicalAddress}}, nil
}

// FindAlternativeCandidate has no second replica to offer in this reference
// model; flexible-read contention resolves by waiting out the current
// owner instead.
func (bm *ParallelBlockManager) FindAlternativeCandidate(event *scheduler.Event) (scheduler.FlexCandidate, bool) {
	return scheduler.FlexCandidate{}, false
}

// InHowLongCanThisEventBeScheduled returns how long addr's die remains busy.
func (bm *ParallelBlockManager) InHowLongCanThisEventBeScheduled(addr scheduler.Address, now float64) float64 {
	d := bm.die(addr)
	if d == nil || d.busyUntil <= now {
		return 0
	}
	return d.busyUntil - now
}

// CanScheduleOnDie reports whether addr's die's transfer register is free
// for a competing read transfer of a different op.
func (bm *ParallelBlockManager) CanScheduleOnDie(addr scheduler.Address, t scheduler.EventType, opID scheduler.OpID) bool {
	d := bm.die(addr)
	if d == nil {
		return false
	}
	if t != scheduler.EventReadTransfer {
		return true
	}
	for owner, busy := range d.registerBusy {
		if busy && owner != opID {
			return false
		}
	}
	return true
}

func (bm *ParallelBlockManager) markBusy(addr scheduler.Address, now, latency float64) {
	d := bm.die(addr)
	if d == nil {
		return
	}
	d.busyUntil = now + latency
}

func (bm *ParallelBlockManager) RegisterWriteArrival(event *scheduler.Event) {}

func (bm *ParallelBlockManager) RegisterWriteOutcome(event *scheduler.Event) {
	bm.markBusy(event.PhysicalAddress, event.CurrentTime, bm.writeLatency)
}

func (bm *ParallelBlockManager) RegisterEraseOutcome(event *scheduler.Event) {
	bm.markBusy(event.PhysicalAddress, event.CurrentTime, bm.eraseLatency)
	key := [4]int{event.PhysicalAddress.Package, event.PhysicalAddress.Die, event.PhysicalAddress.Plane, event.PhysicalAddress.Block}
	bm.nextPageInBlock[key] = 0
}

func (bm *ParallelBlockManager) RegisterReadCommandOutcome(event *scheduler.Event) {
	bm.markBusy(event.PhysicalAddress, event.CurrentTime, bm.commandLatency)
	if d := bm.die(event.PhysicalAddress); d != nil {
		d.registerBusy[event.OpID] = true
	}
}

func (bm *ParallelBlockManager) RegisterReadTransferOutcome(event *scheduler.Event) {
	bm.markBusy(event.PhysicalAddress, event.CurrentTime, bm.transferLatency)
}

func (bm *ParallelBlockManager) RegisterRegisterCleared(event *scheduler.Event) {
	if d := bm.die(event.PhysicalAddress); d != nil {
		delete(d.registerBusy, event.OpID)
	}
}

func (bm *ParallelBlockManager) RegisterTrimMakingGCRedundant(event *scheduler.Event) {}

func (bm *ParallelBlockManager) Trim(event *scheduler.Event) {
	bm.ftl.Unmap(event.LogicalAddress)
}

// Migrate builds one migration chain for every LBA the FTL currently maps,
// in ascending LBA order: a READ followed by a WRITE, both flagged GC. It
// does not pick a victim block; every mapped LBA is migrated.
func (bm *ParallelBlockManager) Migrate(event *scheduler.Event) ([][]*scheduler.Event, error) {
	lbas := make([]scheduler.LBA, 0, len(bm.ftl.mapping))
	for lba := range bm.ftl.mapping {
		lbas = append(lbas, lba)
	}
	sort.Slice(lbas, func(i, j int) bool { return lbas[i] < lbas[j] })

	chains := make([][]*scheduler.Event, 0, len(lbas))
	for _, lba := range lbas {
		chains = append(chains, []*scheduler.Event{
			{LogicalAddress: lba, Type: scheduler.EventRead, IsGarbageCollection: true, CurrentTime: event.CurrentTime},
			{LogicalAddress: lba, Type: scheduler.EventWrite, IsGarbageCollection: true, CurrentTime: event.CurrentTime},
		})
	}
	return chains, nil
}

// NewBlockManager dispatches on id, returning the one implemented strategy
// or a descriptive error for the others named in the configuration.
func NewBlockManager(id scheduler.BlockManagerID, geo Geometry, ftl *SimpleFTL) (scheduler.BlockManager, error) {
	switch id {
	case scheduler.BlockManagerParallel:
		return NewParallelBlockManager(geo, ftl), nil
	default:
		return nil, fmt.Errorf("devicesim: block manager %q is a concrete strategy outside this core's scope", id)
	}
}
