// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics accumulates per-run resolution statistics. The
// registry is in-memory and safe for concurrent recording from the
// batch worker pool.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/scoresummit/exam-engine/pkg/types"
)

// Registry accumulates resolution outcomes.
type Registry struct {
	mu        sync.Mutex
	latencies []time.Duration
	count     int
	escalated int
	graded    int
	correct   int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Record adds one resolution without a known correct answer.
func (r *Registry) Record(res types.ResolvedAnswer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(res)
}

// RecordGraded adds one resolution along with whether its answer was
// correct, which feeds the accuracy figure.
func (r *Registry) RecordGraded(res types.ResolvedAnswer, correct bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(res)
	r.graded++
	if correct {
		r.correct++
	}
}

func (r *Registry) record(res types.ResolvedAnswer) {
	r.count++
	r.latencies = append(r.latencies, res.Elapsed)
	if res.Escalated {
		r.escalated++
	}
}

// Snapshot is a point-in-time copy of the registry's statistics.
type Snapshot struct {
	Count int `json:"count" yaml:"count"`

	// Graded and Accuracy cover only resolutions recorded with a known
	// correct answer.
	Graded   int     `json:"graded" yaml:"graded"`
	Accuracy float64 `json:"accuracy" yaml:"accuracy"`

	AvgLatency time.Duration `json:"avg_latency" yaml:"avg_latency"`
	P95Latency time.Duration `json:"p95_latency" yaml:"p95_latency"`

	EscalationRate float64 `json:"escalation_rate" yaml:"escalation_rate"`
}

// Snapshot returns the current statistics. The registry keeps
// accumulating afterwards.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{Count: r.count, Graded: r.graded}
	if r.count == 0 {
		return s
	}

	var total time.Duration
	for _, l := range r.latencies {
		total += l
	}
	s.AvgLatency = total / time.Duration(r.count)

	sorted := make([]time.Duration, len(r.latencies))
	copy(sorted, r.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (len(sorted)*95 + 99) / 100
	if idx > 0 {
		idx--
	}
	s.P95Latency = sorted[idx]

	s.EscalationRate = float64(r.escalated) / float64(r.count)
	if r.graded > 0 {
		s.Accuracy = float64(r.correct) / float64(r.graded)
	}
	return s
}
