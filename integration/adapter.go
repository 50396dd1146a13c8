package integration

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/miretskiy/mqsched/devicesim"
	"github.com/miretskiy/mqsched/scheduler"
)

// SSDSchedulerConfig configures the SSD scheduler component model.
type SSDSchedulerConfig struct {
	BlockManager   string  `yaml:"block_manager" json:"block_manager"`
	Scheme         string  `yaml:"scheduling_scheme" json:"scheduling_scheme"`
	WaitTimeTicks  float64 `yaml:"wait_time_ticks" json:"wait_time_ticks"`
	DeadlineTicks  int64   `yaml:"deadline_ticks" json:"deadline_ticks"`
	RandomSeed     int64   `yaml:"random_seed" json:"random_seed"`
	StepDeadline   float64 `yaml:"step_deadline" json:"step_deadline"`
	ErrorRate      *float64 `yaml:"error_rate,omitempty" json:"error_rate,omitempty"`
}

// SSDRequestContext describes an incoming logical I/O arriving at the
// component, mirroring the request context shape other component models
// in this harness use.
type SSDRequestContext struct {
	Component   string
	CurrentTime float64
	LBA         uint64
	Op          string // "read", "write", "trim"
}

// SSDLogEntry and SSDMetricSample mirror the plain log/metric shapes
// the harness expects back from a component model.
type SSDLogEntry struct {
	OffsetMs float64
	Status   string
	Message  string
}

type SSDMetricSample struct {
	Name  string
	Type  string
	Value float64
	Tags  map[string]string
}

// SSDResult is the outcome of handling one logical request.
type SSDResult struct {
	DurationMs float64
	WaitTimeMs float64
	Status     string
	ErrorType  *string
	ErrorMsg   *string
	Logs       []SSDLogEntry
	Metrics    []SSDMetricSample
}

// SSDSchedulerModel wraps scheduler.Scheduler behind the component-model
// interface the harness drives: Health/HandleRequest/MutableParameters/
// UpdateParameters, exactly the shape RocksDBModel exposes for the LSM
// simulator.
type SSDSchedulerModel struct {
	component string
	cfg       *SSDSchedulerConfig
	mu        sync.Mutex
	sched     *scheduler.Scheduler
	rng       *rand.Rand

	totalRequests   int64
	totalIssued     int64
	lastHealth      string
	lastFailure     *scheduler.DeviceFailureError
}

// NewSSDSchedulerModel constructs a component model around a freshly built
// Scheduler, wiring the reference devicesim collaborators the way
// cmd/scheduler_runner and cmd/scheduler_server both do.
func NewSSDSchedulerModel(component string, cfg *SSDSchedulerConfig) (*SSDSchedulerModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ssd scheduler config is required")
	}

	bmID, err := scheduler.ParseBlockManagerID(cfg.BlockManager)
	if err != nil {
		return nil, err
	}
	scheme, err := scheduler.ParseSchedulingScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.BlockManagerID = bmID
	schedCfg.SchedulingScheme = scheme
	if cfg.WaitTimeTicks > 0 {
		schedCfg.WaitTime = cfg.WaitTimeTicks
	}
	if cfg.DeadlineTicks > 0 {
		schedCfg.DeadlineTicks = cfg.DeadlineTicks
	}
	if cfg.RandomSeed != 0 {
		schedCfg.RandomSeed = cfg.RandomSeed
	}
	if err := schedCfg.Validate(); err != nil {
		return nil, err
	}

	geo := devicesim.DefaultGeometry()
	ftl := devicesim.NewSimpleFTL()
	bm, err := devicesim.NewBlockManager(schedCfg.BlockManagerID, geo, ftl)
	if err != nil {
		return nil, err
	}
	device := devicesim.NewChannelDevice()

	sched, err := scheduler.NewScheduler(schedCfg, bm, ftl, device)
	if err != nil {
		return nil, err
	}

	return &SSDSchedulerModel{
		component:  component,
		cfg:        cfg,
		sched:      sched,
		rng:        rand.New(rand.NewSource(cfg.RandomSeed + 1)),
		lastHealth: "ok",
	}, nil
}

// Name returns the component name.
func (m *SSDSchedulerModel) Name() string {
	return m.component
}

// Health reports "error" once a device failure has aborted the run,
// "warn" while events wait in the future queue and more than four
// current-time buckets are populated, and "ok" otherwise.
func (m *SSDSchedulerModel) Health() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthLocked()
}

func (m *SSDSchedulerModel) healthLocked() string {
	if m.lastFailure != nil {
		return "error"
	}
	snap := m.sched.Snapshot()
	if snap.Queues.FutureCount > 0 && len(snap.Queues.CurrentTicks) > 4 {
		return "warn"
	}
	return "ok"
}

func parseFloatParam(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

func parseOp(op string) (scheduler.EventType, error) {
	switch op {
	case "read":
		return scheduler.EventRead, nil
	case "write":
		return scheduler.EventWrite, nil
	case "trim":
		return scheduler.EventTrim, nil
	default:
		return 0, fmt.Errorf("unsupported ssd scheduler op %q", op)
	}
}

// HandleRequest schedules one logical I/O and advances the scheduler until
// that operation (and anything it depends on) completes or the clock passes
// the request's CurrentTime plus the step deadline, reporting the
// wall of virtual time it cost the way RocksDBModel reports write latency
// against the LSM simulator's virtual clock.
func (m *SSDSchedulerModel) HandleRequest(ctx *SSDRequestContext) (*SSDResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastFailure != nil {
		errType := "device_failure"
		errMsg := fmt.Sprintf("%s aborted after a device failure on op %d", m.component, m.lastFailure.OpID)
		return &SSDResult{Status: "error", ErrorType: &errType, ErrorMsg: &errMsg}, nil
	}

	opType, err := parseOp(ctx.Op)
	if err != nil {
		return nil, err
	}

	beforeTime := m.sched.VirtualTime()
	beforeIssued := m.sched.Stats.NumIssued

	event := &scheduler.Event{
		LogicalAddress:  scheduler.LBA(ctx.LBA),
		Type:            opType,
		CurrentTime:     ctx.CurrentTime,
		IsOriginalAppIO: true,
	}
	opID, err := m.sched.ScheduleEvent(event)
	if err != nil {
		return nil, fmt.Errorf("scheduling request: %w", err)
	}

	deadline := ctx.CurrentTime + m.stepDeadline()
	for !m.opDone(opID) {
		if err := m.sched.ExecuteSoonestEvents(); err != nil {
			if failure, ok := err.(*scheduler.DeviceFailureError); ok {
				m.lastFailure = failure
				m.lastHealth = "error"
				errType := "device_failure"
				errMsg := failure.Error()
				return &SSDResult{Status: "error", ErrorType: &errType, ErrorMsg: &errMsg}, nil
			}
			return nil, err
		}
		if m.sched.VirtualTime() > deadline {
			break
		}
	}

	afterTime := m.sched.VirtualTime()
	waitMs := math.Max(0, (afterTime-beforeTime)*1000)
	durationMs := waitMs

	m.totalRequests++
	m.totalIssued += int64(m.sched.Stats.NumIssued - beforeIssued)

	result := &SSDResult{
		DurationMs: durationMs,
		WaitTimeMs: waitMs,
		Status:     "ok",
	}

	if m.cfg.ErrorRate != nil && *m.cfg.ErrorRate > 0 && m.rng.Float64() < *m.cfg.ErrorRate {
		result.Status = "error"
		errType := "injected_error"
		result.ErrorType = &errType
		msg := fmt.Sprintf("%s injected request failure", m.component)
		result.ErrorMsg = &msg
	}

	result.Metrics = m.buildMetricsLocked()
	return result, nil
}

func (m *SSDSchedulerModel) stepDeadline() float64 {
	if m.cfg.StepDeadline > 0 {
		return m.cfg.StepDeadline
	}
	return float64(m.cfg.DeadlineTicks)
}

func (m *SSDSchedulerModel) opDone(opID scheduler.OpID) bool {
	return !m.sched.HasPendingOp(opID)
}

func (m *SSDSchedulerModel) buildMetricsLocked() []SSDMetricSample {
	tags := map[string]string{"component_model": "ssd_scheduler"}
	snap := m.sched.Snapshot()
	return []SSDMetricSample{
		{Name: "ssd.future_queue_depth", Type: "gauge", Value: float64(snap.Queues.FutureCount), Tags: tags},
		{Name: "ssd.current_buckets", Type: "gauge", Value: float64(len(snap.Queues.CurrentTicks)), Tags: tags},
		{Name: "ssd.requests_total", Type: "counter", Value: float64(m.totalRequests), Tags: tags},
		{Name: "ssd.issued_total", Type: "counter", Value: float64(m.totalIssued), Tags: tags},
		{Name: "ssd.write_cancellations", Type: "counter", Value: float64(snap.Stats.NumWriteCancellations), Tags: tags},
		{Name: "ssd.trim_redundant_gc", Type: "counter", Value: float64(snap.Stats.NumTrimRedundantGC), Tags: tags},
		{Name: "ssd.gc_migrations", Type: "counter", Value: float64(snap.Stats.NumGCMigrations), Tags: tags},
		{Name: "ssd.flex_read_retries", Type: "counter", Value: float64(snap.Stats.NumFlexReadRetries), Tags: tags},
	}
}

// Config returns the current model configuration.
func (m *SSDSchedulerModel) Config() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]interface{}{
		"block_manager":     m.cfg.BlockManager,
		"scheduling_scheme": m.cfg.Scheme,
		"wait_time_ticks":   m.cfg.WaitTimeTicks,
		"deadline_ticks":    m.cfg.DeadlineTicks,
	}
}

// MutableParameters returns descriptors for runtime-adjustable parameters.
func (m *SSDSchedulerModel) MutableParameters() []SSDParameterDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	minWait, maxWait := 0.0, 100.0
	return []SSDParameterDescriptor{
		{
			Name:         "wait_time_ticks",
			Type:         "float",
			CurrentValue: m.cfg.WaitTimeTicks,
			Min:          &minWait,
			Max:          &maxWait,
			Description:  "Minimum penalty, in virtual ticks, applied when an event is re-pushed because its die is not yet ready; a longer wait reported by the block manager is used instead.",
		},
	}
}

// SSDParameterDescriptor mirrors GensimParameterDescriptor for this model.
type SSDParameterDescriptor struct {
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	CurrentValue interface{} `json:"current_value"`
	Min          *float64    `json:"min,omitempty"`
	Max          *float64    `json:"max,omitempty"`
	Description  string      `json:"description,omitempty"`
}

// UpdateParameters applies runtime configuration changes. wait_time_ticks
// is the only field with meaning after the Scheduler has already been
// constructed; the rest (block manager, scheme) are fixed at construction.
func (m *SSDSchedulerModel) UpdateParameters(params map[string]interface{}) error {
	if len(params) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if raw, ok := params["wait_time_ticks"]; ok {
		val, err := parseFloatParam(raw)
		if err != nil {
			return fmt.Errorf("wait_time_ticks: %w", err)
		}
		if val < 0 {
			return fmt.Errorf("wait_time_ticks must be >= 0")
		}
		m.cfg.WaitTimeTicks = val
		m.sched.SetWaitTime(val)
	}
	return nil
}
