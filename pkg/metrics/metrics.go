// Package metrics is the in-process registry behind /metrics. It
// exposes a JSON snapshot for the dashboard and a Prometheus text
// rendering for scrapers.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type Registry struct {
	mu              sync.RWMutex
	endpoint        map[string]*EndpointStat
	result          map[string]int64
	band            map[string]int64
	gateOutcome     map[string]int64
	approvalState   map[string]int64
	gauges          map[string]float64
	suppressedTotal int64
	ingestTotal     int64
	Histograms      *HistogramRegistry
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type Snapshot struct {
	GeneratedAt     string                  `json:"generated_at"`
	Endpoints       map[string]EndpointStat `json:"endpoints"`
	Results         map[string]int64        `json:"results"`
	Bands           map[string]int64        `json:"bands"`
	GateOutcomes    map[string]int64        `json:"gate_outcomes"`
	ApprovalStates  map[string]int64        `json:"approval_states"`
	Gauges          map[string]float64      `json:"gauges"`
	SuppressedTotal int64                   `json:"suppressed_total"`
	IngestTotal     int64                   `json:"ingest_total"`
	Histograms      []HistogramSnapshot     `json:"histograms,omitempty"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint:      map[string]*EndpointStat{},
		result:        map[string]int64{},
		band:          map[string]int64{},
		gateOutcome:   map[string]int64{},
		approvalState: map[string]int64{},
		gauges:        map[string]float64{},
		Histograms:    NewHistogramRegistry(),
	}
}

func (r *Registry) ObserveLatency(endpoint string, d time.Duration) {
	r.Histograms.ObserveDuration(endpoint, d)
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

// IncDecision counts one terminal evaluation result and its trust band.
func (r *Registry) IncDecision(result, band string) {
	if result == "" {
		return
	}
	r.mu.Lock()
	r.result[result]++
	if band != "" {
		r.band[band]++
	}
	r.mu.Unlock()
}

func (r *Registry) IncGateOutcome(outcome string) {
	if outcome == "" {
		return
	}
	r.mu.Lock()
	r.gateOutcome[outcome]++
	r.mu.Unlock()
}

func (r *Registry) IncApprovalState(state string) {
	state = strings.TrimSpace(strings.ToUpper(state))
	if state == "" {
		return
	}
	r.mu.Lock()
	r.approvalState[state]++
	r.mu.Unlock()
}

func (r *Registry) IncSuppressed() {
	r.mu.Lock()
	r.suppressedTotal++
	r.mu.Unlock()
}

func (r *Registry) IncIngested() {
	r.mu.Lock()
	r.ingestTotal++
	r.mu.Unlock()
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		Endpoints:       make(map[string]EndpointStat, len(r.endpoint)),
		Results:         make(map[string]int64, len(r.result)),
		Bands:           make(map[string]int64, len(r.band)),
		GateOutcomes:    make(map[string]int64, len(r.gateOutcome)),
		ApprovalStates:  make(map[string]int64, len(r.approvalState)),
		Gauges:          make(map[string]float64, len(r.gauges)),
		SuppressedTotal: r.suppressedTotal,
		IngestTotal:     r.ingestTotal,
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.result {
		out.Results[k] = v
	}
	for k, v := range r.band {
		out.Bands[k] = v
	}
	for k, v := range r.gateOutcome {
		out.GateOutcomes[k] = v
	}
	for k, v := range r.approvalState {
		out.ApprovalStates[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	out.Histograms = r.Histograms.Snapshots()
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}
		b.WriteString("# HELP triage_endpoint_count total requests by endpoint\n")
		b.WriteString("# TYPE triage_endpoint_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "triage_endpoint_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].Count)
		}
		b.WriteString("# HELP triage_endpoint_error_count total endpoint errors\n")
		b.WriteString("# TYPE triage_endpoint_error_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "triage_endpoint_error_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].ErrorCount)
		}
		b.WriteString("# HELP triage_endpoint_avg_millis endpoint average latency in milliseconds\n")
		b.WriteString("# TYPE triage_endpoint_avg_millis gauge\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "triage_endpoint_avg_millis{endpoint=%q} %.3f\n", ep, snap.Endpoints[ep].AverageMillis)
		}
		b.WriteString("# HELP triage_decision_total terminal evaluation results\n")
		b.WriteString("# TYPE triage_decision_total counter\n")
		for _, res := range SortedKeys(snap.Results) {
			fmt.Fprintf(b, "triage_decision_total{result=%q} %d\n", res, snap.Results[res])
		}
		b.WriteString("# HELP triage_band_total trust band occupancy\n")
		b.WriteString("# TYPE triage_band_total counter\n")
		for _, band := range SortedKeys(snap.Bands) {
			fmt.Fprintf(b, "triage_band_total{band=%q} %d\n", band, snap.Bands[band])
		}
		b.WriteString("# HELP triage_gate_total gating outcomes\n")
		b.WriteString("# TYPE triage_gate_total counter\n")
		for _, o := range SortedKeys(snap.GateOutcomes) {
			fmt.Fprintf(b, "triage_gate_total{outcome=%q} %d\n", o, snap.GateOutcomes[o])
		}
		b.WriteString("# HELP triage_approval_total approval ledger resolutions by state\n")
		b.WriteString("# TYPE triage_approval_total counter\n")
		for _, s := range SortedKeys(snap.ApprovalStates) {
			fmt.Fprintf(b, "triage_approval_total{state=%q} %d\n", s, snap.ApprovalStates[s])
		}
		b.WriteString("# HELP triage_suppressed_total alerts dropped by suppression rules\n")
		b.WriteString("# TYPE triage_suppressed_total counter\n")
		fmt.Fprintf(b, "triage_suppressed_total %d\n", snap.SuppressedTotal)
		b.WriteString("# HELP triage_ingest_total alerts consumed from the intake topic\n")
		b.WriteString("# TYPE triage_ingest_total counter\n")
		fmt.Fprintf(b, "triage_ingest_total %d\n", snap.IngestTotal)
		b.WriteString("# HELP triage_gauge operational gauge metrics\n")
		b.WriteString("# TYPE triage_gauge gauge\n")
		for _, name := range SortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "triage_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}
		for _, h := range snap.Histograms {
			b.WriteString("# HELP triage_latency_seconds latency histogram\n")
			b.WriteString("# TYPE triage_latency_seconds histogram\n")
			for _, bucket := range h.Buckets {
				fmt.Fprintf(b, "triage_latency_seconds_bucket{endpoint=%q,le=\"%.3f\"} %d\n", h.Name, bucket.Le, bucket.Count)
			}
			fmt.Fprintf(b, "triage_latency_seconds_bucket{endpoint=%q,le=\"+Inf\"} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "triage_latency_seconds_sum{endpoint=%q} %.6f\n", h.Name, h.Sum)
			fmt.Fprintf(b, "triage_latency_seconds_count{endpoint=%q} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "triage_latency_p50_seconds{endpoint=%q} %.6f\n", h.Name, h.P50)
			fmt.Fprintf(b, "triage_latency_p95_seconds{endpoint=%q} %.6f\n", h.Name, h.P95)
			fmt.Fprintf(b, "triage_latency_p99_seconds{endpoint=%q} %.6f\n", h.Name, h.P99)
		}
		_, _ = w.Write([]byte(b.String()))
	}
}

// SortedKeys returns the map's keys in sorted order for stable output.
func SortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
