package scheduler

import (
	"encoding/json"
	"fmt"
)

// BlockManagerID selects the block-manager strategy the scheduler is
// configured against. Only Parallel is implemented in this repository;
// the rest name real strategies out of scope for the scheduling core
// (see devicesim.NewBlockManager).
type BlockManagerID int

const (
	BlockManagerParallel BlockManagerID = iota
	BlockManagerShortestQueueHotCold
	BlockManagerWearwolf
	BlockManagerWearwolfLocality
	BlockManagerRoundRobin
)

func (b BlockManagerID) String() string {
	switch b {
	case BlockManagerParallel:
		return "parallel"
	case BlockManagerShortestQueueHotCold:
		return "shortest_queue_hot_cold"
	case BlockManagerWearwolf:
		return "wearwolf"
	case BlockManagerWearwolfLocality:
		return "wearwolf_locality"
	case BlockManagerRoundRobin:
		return "round_robin"
	default:
		return "unknown"
	}
}

// ParseBlockManagerID parses a string into a BlockManagerID.
func ParseBlockManagerID(s string) (BlockManagerID, error) {
	switch s {
	case "parallel":
		return BlockManagerParallel, nil
	case "shortest_queue_hot_cold":
		return BlockManagerShortestQueueHotCold, nil
	case "wearwolf":
		return BlockManagerWearwolf, nil
	case "wearwolf_locality":
		return BlockManagerWearwolfLocality, nil
	case "round_robin":
		return BlockManagerRoundRobin, nil
	default:
		return BlockManagerParallel, fmt.Errorf("invalid block manager id: %s", s)
	}
}

func (b BlockManagerID) MarshalJSON() ([]byte, error) { return json.Marshal(b.String()) }

func (b *BlockManagerID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseBlockManagerID(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// SchedulingScheme selects the dispatch-order policy applied to each tick's
// soonest bucket. See policy and its four implementations.
type SchedulingScheme int

const (
	SchemeApplicationPriority SchedulingScheme = iota
	SchemeGCPriority
	SchemeInterleavedEqual
	SchemeFlexReadWritePriority
)

func (s SchedulingScheme) String() string {
	switch s {
	case SchemeApplicationPriority:
		return "application_priority"
	case SchemeGCPriority:
		return "gc_priority"
	case SchemeInterleavedEqual:
		return "interleaved_equal"
	case SchemeFlexReadWritePriority:
		return "flex_read_write_priority"
	default:
		return "unknown"
	}
}

// ParseSchedulingScheme parses a string into a SchedulingScheme.
func ParseSchedulingScheme(s string) (SchedulingScheme, error) {
	switch s {
	case "application_priority":
		return SchemeApplicationPriority, nil
	case "gc_priority":
		return SchemeGCPriority, nil
	case "interleaved_equal":
		return SchemeInterleavedEqual, nil
	case "flex_read_write_priority":
		return SchemeFlexReadWritePriority, nil
	default:
		return SchemeApplicationPriority, fmt.Errorf("invalid scheduling scheme: %s", s)
	}
}

func (s SchedulingScheme) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *SchedulingScheme) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSchedulingScheme(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Config holds the scheduler's tunable parameters.
type Config struct {
	BlockManagerID   BlockManagerID   `json:"blockManagerId"`
	SchedulingScheme SchedulingScheme `json:"schedulingScheme"`
	WaitTime         float64          `json:"waitTime"`   // minimum bus-wait penalty when a die is busy
	BlockSize        int              `json:"blockSize"`  // asserted upper bound on chosen page indices
	PrintLevel       int              `json:"printLevel"` // tracing verbosity, 0 = silent
	RandomSeed       int64            `json:"randomSeed"` // seed for the shuffle in updateCurrentEvents
	DeadlineTicks    int64            `json:"deadlineTicks"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BlockManagerID:   BlockManagerParallel,
		SchedulingScheme: SchemeApplicationPriority,
		WaitTime:         3,
		BlockSize:        256,
		PrintLevel:       0,
		RandomSeed:       1,
		DeadlineTicks:    1_000_000,
	}
}

// Validate checks configuration values are usable.
func (c *Config) Validate() error {
	if c.WaitTime < 0 {
		return ErrInvalidConfig("waitTime must be >= 0")
	}
	if c.BlockSize <= 0 {
		return ErrInvalidConfig("blockSize must be > 0")
	}
	if c.DeadlineTicks <= 0 {
		return ErrInvalidConfig("deadlineTicks must be > 0")
	}
	if c.BlockManagerID != BlockManagerParallel {
		return ErrInvalidConfig(fmt.Sprintf("block manager %q is not implemented by this scheduling core", c.BlockManagerID))
	}
	return nil
}
