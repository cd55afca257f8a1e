package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Outcome classifies the result of a store operation.
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeMiss  Outcome = "miss"
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

type operation struct {
	sketch   *ddsketch.DDSketch
	outcomes map[Outcome]int64
}

// LatencyTracker tracks latency quantiles and outcome counts per store
// operation using DDSketch.
type LatencyTracker struct {
	mu               sync.Mutex
	ops              map[string]*operation
	relativeAccuracy float64
}

// NewLatencyTracker creates a new latency tracker with DDSketch.
// relativeAccuracy determines the accuracy of quantile estimates (e.g., 0.01 = 1% accuracy)
func NewLatencyTracker(relativeAccuracy float64) *LatencyTracker {
	return &LatencyTracker{
		ops:              make(map[string]*operation),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record records a duration and outcome for the given operation.
func (lt *LatencyTracker) Record(op string, duration time.Duration, outcome Outcome) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	o, exists := lt.ops[op]
	if !exists {
		sketch, err := ddsketch.LogUnboundedDenseDDSketch(lt.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(lt.relativeAccuracy)
		}
		o = &operation{sketch: sketch, outcomes: make(map[Outcome]int64)}
		lt.ops[op] = o
	}

	// Milliseconds.
	o.sketch.Add(float64(duration.Microseconds()) / 1000.0)
	o.outcomes[outcome]++
}

// Time runs fn and records its duration under op. classify maps fn's error
// to an outcome; a nil classify records OutcomeOK or OutcomeError.
func (lt *LatencyTracker) Time(op string, fn func() error, classify func(error) Outcome) error {
	start := time.Now()
	err := fn()
	outcome := OutcomeOK
	switch {
	case classify != nil:
		outcome = classify(err)
	case err != nil:
		outcome = OutcomeError
	}
	lt.Record(op, time.Since(start), outcome)
	return err
}

// Stats summarizes one operation.
type Stats struct {
	Operation string
	Count     int64
	Outcomes  map[Outcome]int64
	Min       float64
	P50       float64
	P99       float64
	Max       float64
}

// GetStats returns statistics for the given operation.
func (lt *LatencyTracker) GetStats(op string) (Stats, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.statsLocked(op)
}

func (lt *LatencyTracker) statsLocked(op string) (Stats, error) {
	o, exists := lt.ops[op]
	if !exists {
		return Stats{}, fmt.Errorf("no data for operation: %s", op)
	}

	outcomes := make(map[Outcome]int64, len(o.outcomes))
	for k, v := range o.outcomes {
		outcomes[k] = v
	}

	count := o.sketch.GetCount()
	if count == 0 {
		return Stats{Operation: op, Outcomes: outcomes}, nil
	}

	min, _ := o.sketch.GetMinValue()
	p50, _ := o.sketch.GetValueAtQuantile(0.50)
	p99, _ := o.sketch.GetValueAtQuantile(0.99)
	max, _ := o.sketch.GetMaxValue()

	return Stats{
		Operation: op,
		Count:     int64(count),
		Outcomes:  outcomes,
		Min:       min,
		P50:       p50,
		P99:       p99,
		Max:       max,
	}, nil
}

// GetAllStats returns statistics for all tracked operations, sorted by name.
func (lt *LatencyTracker) GetAllStats() []Stats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	names := make([]string, 0, len(lt.ops))
	for op := range lt.ops {
		names = append(names, op)
	}
	sort.Strings(names)

	stats := make([]Stats, 0, len(names))
	for _, op := range names {
		if stat, err := lt.statsLocked(op); err == nil {
			stats = append(stats, stat)
		}
	}
	return stats
}

func (s Stats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no data", s.Operation)
	}
	return fmt.Sprintf("%s (n=%d hit=%d miss=%d error=%d): min=%.2fms p50=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Outcomes[OutcomeHit], s.Outcomes[OutcomeMiss], s.Outcomes[OutcomeError],
		s.Min, s.P50, s.P99, s.Max)
}
