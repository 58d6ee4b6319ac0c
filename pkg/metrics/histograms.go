package metrics

import (
	"sort"
	"sync"
	"time"
)

// latencyBounds are the cumulative bucket upper bounds, in seconds.
// Decision evaluation sits well under the first bound; the tail exists
// for store round-trips under load.
var latencyBounds = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

// Histogram accumulates latency observations into cumulative buckets.
type Histogram struct {
	mu     sync.Mutex
	name   string
	counts []int64
	sum    float64
	count  int64
}

func NewHistogram(name string) *Histogram {
	return &Histogram{name: name, counts: make([]int64, len(latencyBounds))}
}

func (h *Histogram) Observe(d time.Duration) {
	sec := d.Seconds()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += sec
	h.count++
	for i, le := range latencyBounds {
		if sec <= le {
			h.counts[i]++
		}
	}
}

// HistogramBucket is one cumulative bucket as exposed on /metrics.
type HistogramBucket struct {
	Le    float64 // upper bound in seconds
	Count int64
}

// HistogramSnapshot is a point-in-time copy with bucket-resolution
// percentiles: each quantile reports the upper bound of the first
// bucket covering it.
type HistogramSnapshot struct {
	Name    string
	Buckets []HistogramBucket
	Sum     float64
	Count   int64
	P50     float64
	P95     float64
	P99     float64
}

func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := HistogramSnapshot{
		Name:    h.name,
		Buckets: make([]HistogramBucket, len(latencyBounds)),
		Sum:     h.sum,
		Count:   h.count,
	}
	for i, le := range latencyBounds {
		snap.Buckets[i] = HistogramBucket{Le: le, Count: h.counts[i]}
	}
	snap.P50 = h.quantileLocked(0.50)
	snap.P95 = h.quantileLocked(0.95)
	snap.P99 = h.quantileLocked(0.99)
	return snap
}

func (h *Histogram) quantileLocked(q float64) float64 {
	if h.count == 0 {
		return 0
	}
	need := int64(q * float64(h.count))
	for i, c := range h.counts {
		if c >= need {
			return latencyBounds[i]
		}
	}
	return 0
}

// HistogramRegistry keys histograms by endpoint name.
type HistogramRegistry struct {
	mu         sync.RWMutex
	histograms map[string]*Histogram
}

func NewHistogramRegistry() *HistogramRegistry {
	return &HistogramRegistry{histograms: map[string]*Histogram{}}
}

func (r *HistogramRegistry) Get(name string) *Histogram {
	r.mu.RLock()
	h, ok := r.histograms[name]
	r.mu.RUnlock()
	if ok {
		return h
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok = r.histograms[name]; ok {
		return h
	}
	h = NewHistogram(name)
	r.histograms[name] = h
	return h
}

func (r *HistogramRegistry) ObserveDuration(name string, d time.Duration) {
	r.Get(name).Observe(d)
}

// Snapshots returns all histograms in name order, for stable exposition.
func (r *HistogramRegistry) Snapshots() []HistogramSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HistogramSnapshot, 0, len(r.histograms))
	for _, h := range r.histograms {
		out = append(out, h.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
