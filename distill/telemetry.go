package distill

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Stage names for timing telemetry.
const (
	StageSegmentation = "segmentation"
	StageInpainting   = "inpainting"
	StageCompositing  = "compositing"
	StagePipeline     = "pipeline"
)

// StageTiming is a snapshot of one stage's wall-clock accounting.
type StageTiming struct {
	Last    time.Duration
	Total   time.Duration
	Count   int
	Average time.Duration
}

// telemetry records wall-clock durations per pipeline stage. Purely
// observational; nothing reads it back into behavior.
type telemetry struct {
	mu     sync.Mutex
	clock  clock.Clock
	stages map[string]*StageTiming
}

func newTelemetry(clk clock.Clock) *telemetry {
	if clk == nil {
		clk = clock.New()
	}
	return &telemetry{clock: clk, stages: make(map[string]*StageTiming)}
}

// time runs fn and charges its duration to the stage.
func (t *telemetry) time(stage string, fn func() error) error {
	start := t.clock.Now()
	err := fn()
	t.record(stage, t.clock.Since(start))
	return err
}

func (t *telemetry) record(stage string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stages[stage]
	if !ok {
		s = &StageTiming{}
		t.stages[stage] = s
	}
	s.Last = d
	s.Total += d
	s.Count++
	s.Average = s.Total / time.Duration(s.Count)
}

// snapshot returns a copy of all stage timings.
func (t *telemetry) snapshot() map[string]StageTiming {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]StageTiming, len(t.stages))
	for name, s := range t.stages {
		out[name] = *s
	}
	return out
}

func (t *telemetry) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = make(map[string]*StageTiming)
}
