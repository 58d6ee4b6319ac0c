package main

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Workload describes the synthetic alert stream: how many alerts per
// day, from which sources, with which severity mix and trust-factor
// distributions. The zero value is not usable; start from
// DefaultWorkload and override via a YAML file.
type Workload struct {
	Seed            int64     `yaml:"seed" json:"random_seed"`
	DurationDays    int       `yaml:"duration_days" json:"duration_days"`
	AlertsPerDayMin int       `yaml:"alerts_per_day_min" json:"alerts_per_day_min"`
	AlertsPerDayMax int       `yaml:"alerts_per_day_max" json:"alerts_per_day_max"`
	StartDate       string    `yaml:"start_date" json:"start_date"`
	Sources         []Source  `yaml:"sources" json:"sources"`
	Severities      []SevBand `yaml:"severities" json:"severity_distribution"`

	// Trust-factor sampling parameters.
	ConfidenceMean   float64 `yaml:"confidence_mean" json:"confidence_mean"`
	ConfidenceStddev float64 `yaml:"confidence_stddev" json:"confidence_stddev"`
	BehaviorMean     float64 `yaml:"behavior_mean" json:"behavior_mean"`
	BehaviorStddev   float64 `yaml:"behavior_stddev" json:"behavior_stddev"`
	HistoryMean      float64 `yaml:"history_mean" json:"history_mean"`
	HistoryStddev    float64 `yaml:"history_stddev" json:"history_stddev"`

	// Environment-factor event probabilities.
	MaintenanceChance float64 `yaml:"maintenance_chance" json:"maintenance_chance"`
	MassFailureChance float64 `yaml:"mass_failure_chance" json:"mass_failure_chance"`
}

type Source struct {
	Name   string   `yaml:"name" json:"name"`
	Weight float64  `yaml:"weight" json:"weight"`
	Titles []string `yaml:"titles" json:"titles"`
}

// SevBand maps a synthetic severity tier to the classifier label and
// priority the engine sees, with its share of the workload.
type SevBand struct {
	Tier     string  `yaml:"tier" json:"tier"`
	Label    string  `yaml:"label" json:"label"`
	Priority string  `yaml:"priority" json:"priority"`
	Weight   float64 `yaml:"weight" json:"weight"`
}

func LoadWorkload(path string) (Workload, error) {
	w := DefaultWorkload()
	if path == "" {
		return w, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Workload{}, fmt.Errorf("read workload: %w", err)
	}
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return Workload{}, fmt.Errorf("parse workload: %w", err)
	}
	if w.DurationDays <= 0 || w.AlertsPerDayMin <= 0 || w.AlertsPerDayMax < w.AlertsPerDayMin {
		return Workload{}, fmt.Errorf("workload: invalid day/volume bounds")
	}
	if len(w.Sources) == 0 || len(w.Severities) == 0 {
		return Workload{}, fmt.Errorf("workload: sources and severities required")
	}
	return w, nil
}

func DefaultWorkload() Workload {
	return Workload{
		Seed:            42,
		DurationDays:    30,
		AlertsPerDayMin: 480,
		AlertsPerDayMax: 520,
		StartDate:       "2026-01-15T00:00:00Z",
		Sources: []Source{
			{Name: "aws-cloudwatch", Weight: 0.25, Titles: []string{
				"EC2 CPU utilization exceeds 95% on prod-web-{n}",
				"RDS connection count spike on primary-db",
				"Lambda function error rate above threshold",
				"ELB 5xx error rate elevated",
				"S3 bucket access denied anomaly",
				"CloudFront origin timeout",
				"DynamoDB throttled reads on user-sessions",
				"SQS dead-letter queue depth increasing",
				"ECS task stopped unexpectedly",
				"Route53 health check failing",
			}},
			{Name: "datadog", Weight: 0.25, Titles: []string{
				"High latency detected on api-gateway service",
				"Anomaly detected: request rate drop on checkout-service",
				"Memory usage critical on k8s node prod-worker-{n}",
				"Database query latency p99 exceeds SLA",
				"Container restart loop detected",
				"Network packet loss on prod-vpc",
				"Disk IOPS saturated on data-warehouse",
				"APM trace error spike on payment-processor",
				"Log volume anomaly on auth-service",
				"Custom metric threshold: cart-abandonment-rate",
			}},
			{Name: "newrelic", Weight: 0.25, Titles: []string{
				"Apdex score below threshold on web-frontend",
				"Transaction error rate elevated on /api/orders",
				"Infrastructure host not reporting",
				"Browser JS error rate spike",
				"Synthetic monitor failure: checkout-flow",
				"NRQL alert: slow database queries",
				"Mobile crash rate increase on iOS app",
				"Distributed trace anomaly detected",
				"Key transaction SLA violation",
				"Workload health degraded: payments-stack",
			}},
			{Name: "splunk", Weight: 0.25, Titles: []string{
				"Security: failed login attempts exceed threshold",
				"Correlation search: suspicious API activity",
				"Notable event: data exfiltration pattern",
				"Log ingestion delay exceeding 5 minutes",
				"Search head cluster replication lag",
				"Forwarder connectivity loss on prod-app-{n}",
				"Scheduled search failure",
				"Index volume spike detected",
				"Alert: unauthorized access attempt",
				"Correlation: multi-source outage pattern",
			}},
		},
		Severities: []SevBand{
			{Tier: "P1", Label: "sev1", Priority: "critical", Weight: 0.03},
			{Tier: "P2", Label: "high", Priority: "high", Weight: 0.12},
			{Tier: "P3", Label: "medium", Priority: "medium", Weight: 0.35},
			{Tier: "P4", Label: "low", Priority: "low", Weight: 0.30},
			{Tier: "noise", Label: "noise", Priority: "low", Weight: 0.20},
		},
		ConfidenceMean:    0.82,
		ConfidenceStddev:  0.12,
		BehaviorMean:      0.75,
		BehaviorStddev:    0.15,
		HistoryMean:       0.85,
		HistoryStddev:     0.10,
		MaintenanceChance: 0.1,
		MassFailureChance: 0.02,
	}
}

// rng is the reproducible linear congruential generator the evaluation
// runs were recorded with. Not crypto, deliberately.
type rng struct {
	state int64
}

func newRNG(seed int64) *rng {
	return &rng{state: seed}
}

func (r *rng) next() float64 {
	r.state = (r.state*1103515245 + 12345) & 0x7fffffff
	return float64(r.state) / float64(0x7fffffff)
}

// intBetween returns an integer in [min, max] inclusive.
func (r *rng) intBetween(min, max int) int {
	return int(r.next()*float64(max-min+1)) + min
}

func (r *rng) choice(items []string) string {
	return items[int(r.next()*float64(len(items)))]
}

// gaussian samples a normal via Box-Muller, clamped to [0,1].
func (r *rng) gaussian(mean, stddev float64) float64 {
	var u, v float64
	for u == 0 {
		u = r.next()
	}
	for v == 0 {
		v = r.next()
	}
	z := math.Sqrt(-2.0*math.Log(u)) * math.Cos(2.0*math.Pi*v)
	return math.Max(0, math.Min(1, mean+z*stddev))
}

func (r *rng) pickSeverity(bands []SevBand) SevBand {
	roll := r.next()
	cumulative := 0.0
	for _, b := range bands {
		cumulative += b.Weight
		if roll < cumulative {
			return b
		}
	}
	return bands[len(bands)-1]
}
