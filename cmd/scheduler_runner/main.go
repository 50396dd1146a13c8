package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miretskiy/mqsched/devicesim"
	"github.com/miretskiy/mqsched/scheduler"
)

// workloadEntry is one line of a YAML workload trace: a logical operation
// arriving at a given simulated time.
type workloadEntry struct {
	Time  float64 `yaml:"time"`
	Type  string  `yaml:"type"`
	LBA   uint64  `yaml:"lba"`
	GC    bool    `yaml:"gc,omitempty"`
	Flags string  `yaml:"flags,omitempty"`
}

func parseType(s string) (scheduler.EventType, error) {
	switch s {
	case "read":
		return scheduler.EventRead, nil
	case "write":
		return scheduler.EventWrite, nil
	case "trim":
		return scheduler.EventTrim, nil
	case "gc":
		return scheduler.EventGarbageCollection, nil
	default:
		return 0, fmt.Errorf("unknown workload event type %q", s)
	}
}

func loadWorkload(path string) ([]workloadEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []workloadEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing workload YAML: %w", err)
	}
	return entries, nil
}

func main() {
	configFile := flag.String("config", "", "Path to JSON scheduler configuration file")
	workloadFile := flag.String("workload", "", "Path to YAML workload trace file")
	deadline := flag.Float64("deadline", 10000, "Stop once the clock reaches this simulated time")
	outputFile := flag.String("output", "", "Path to output JSON file (stdout if unset)")
	verbose := flag.Bool("verbose", false, "Enable verbose scheduler tracing")
	flag.Parse()

	if *workloadFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -workload <trace.yaml> [-config <config.json>] [-deadline <t>] [-output <out.json>] [-verbose]\n", os.Args[0])
		os.Exit(1)
	}

	cfg := scheduler.DefaultConfig()
	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing config JSON: %v\n", err)
			os.Exit(1)
		}
	}
	if *verbose && cfg.PrintLevel < 1 {
		cfg.PrintLevel = 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	entries, err := loadWorkload(*workloadFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading workload: %v\n", err)
		os.Exit(1)
	}

	geo := devicesim.DefaultGeometry()
	ftl := devicesim.NewSimpleFTL()
	bm, err := devicesim.NewBlockManager(cfg.BlockManagerID, geo, ftl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating block manager: %v\n", err)
		os.Exit(1)
	}
	device := devicesim.NewChannelDevice()

	sched, err := scheduler.NewScheduler(cfg, bm, ftl, device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating scheduler: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		sched.LogEvent = func(msg string) {
			fmt.Fprintf(os.Stderr, "[SCHED] %s\n", msg)
		}
	}

	for _, entry := range entries {
		t, err := parseType(entry.Type)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing workload entry: %v\n", err)
			os.Exit(1)
		}
		event := &scheduler.Event{
			LogicalAddress:      scheduler.LBA(entry.LBA),
			Type:                t,
			CurrentTime:         entry.Time,
			IsGarbageCollection: entry.GC,
			IsOriginalAppIO:     true,
		}
		if _, err := sched.ScheduleEvent(event); err != nil {
			fmt.Fprintf(os.Stderr, "Error scheduling workload entry: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Fprintf(os.Stderr, "Running scheduler until t=%.1f...\n", *deadline)
	start := time.Now()
	if err := sched.FinishAllEventsUntilThisTime(*deadline); err != nil {
		fmt.Fprintf(os.Stderr, "Scheduler stopped early: %v\n", err)
	}
	elapsed := time.Since(start)

	results := map[string]interface{}{
		"config":      cfg,
		"virtualTime": sched.VirtualTime(),
		"realTime":    elapsed.Seconds(),
		"stats":       sched.Stats,
	}
	output, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling results: %v\n", err)
		os.Exit(1)
	}
	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Results written to %s\n", *outputFile)
	} else {
		fmt.Println(string(output))
	}
}
