package service

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"voting-workflow/events"
	"voting-workflow/models"
)

const metricsNamespace = "election"

// MetricsCollector exports election activity to Prometheus and keeps the
// timing of every workflow phase.
type MetricsCollector struct {
	operations *prometheus.CounterVec
	phase      prometheus.Gauge
	voters     prometheus.Gauge
	proposals  prometheus.Gauge
	votes      prometheus.Gauge

	mu         sync.RWMutex
	phaseStart map[models.Phase]time.Time
	phaseEnd   map[models.Phase]time.Time
	phaseOps   map[models.Phase]int
	current    models.Phase
	now        func() time.Time
}

// PhaseMetrics contains timing information for one phase.
type PhaseMetrics struct {
	Phase      string    `json:"phase"`
	StartTime  time.Time `json:"start_time,omitempty"`
	EndTime    time.Time `json:"end_time,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Operations int       `json:"operations"`
	Active     bool      `json:"active"`
}

// MetricsResponse provides the metrics of every phase reached so far.
type MetricsResponse struct {
	CurrentPhase string         `json:"current_phase"`
	Phases       []PhaseMetrics `json:"phases"`
}

// NewMetricsCollector registers the election collectors with reg. A nil reg
// uses a private registry, which keeps tests and replays independent.
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	mc := &MetricsCollector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Election operations by name and outcome.",
		}, []string{"op", "outcome"}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "phase",
			Help:      "Current workflow phase (0-5).",
		}),
		voters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "registered_voters",
			Help:      "Number of registered voters.",
		}),
		proposals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "proposals",
			Help:      "Number of proposals, GENESIS included.",
		}),
		votes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "votes_cast",
			Help:      "Number of ballots cast.",
		}),
		phaseStart: make(map[models.Phase]time.Time),
		phaseEnd:   make(map[models.Phase]time.Time),
		phaseOps:   make(map[models.Phase]int),
		now:        time.Now,
	}
	reg.MustRegister(mc.operations, mc.phase, mc.voters, mc.proposals, mc.votes)

	mc.phaseStart[models.RegisteringVoters] = mc.now()
	return mc
}

// RecordOperation counts one operation. Failed operations are labelled with
// the code of their failure kind.
func (mc *MetricsCollector) RecordOperation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var ee *ElectionError
		if errors.As(err, &ee) {
			outcome = ee.Code()
		}
	}
	mc.operations.WithLabelValues(op, outcome).Inc()

	if err == nil {
		mc.mu.Lock()
		mc.phaseOps[mc.current]++
		mc.mu.Unlock()
	}
}

// RecordPhaseChange closes the timing of old and opens next.
func (mc *MetricsCollector) RecordPhaseChange(old, next models.Phase) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	mc.phaseEnd[old] = now
	mc.phaseStart[next] = now
	mc.current = next
	mc.phase.Set(float64(next))
}

// restoreHistory rebuilds phase timing from journal entries without counting
// their operations again.
func (mc *MetricsCollector) restoreHistory(entries []events.Entry) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	current := models.RegisteringVoters
	if len(entries) > 0 {
		mc.phaseStart[current] = time.UnixMilli(entries[0].Timestamp)
	}
	for _, entry := range entries {
		mc.phaseOps[current]++
		if entry.Event.Kind != models.EventWorkflowStatusChange {
			continue
		}
		at := time.UnixMilli(entry.Timestamp)
		mc.phaseEnd[entry.Event.OldPhase] = at
		mc.phaseStart[entry.Event.NewPhase] = at
		current = entry.Event.NewPhase
	}
	mc.current = current
	mc.phase.Set(float64(current))
}

// RecordSizes updates the registry gauges.
func (mc *MetricsCollector) RecordSizes(voters, proposals, votes int) {
	mc.voters.Set(float64(voters))
	mc.proposals.Set(float64(proposals))
	mc.votes.Set(float64(votes))
}

// GetPhaseMetrics returns the timing of every phase reached so far.
func (mc *MetricsCollector) GetPhaseMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	resp := MetricsResponse{CurrentPhase: mc.current.String()}
	now := mc.now()
	for p := models.RegisteringVoters; p <= mc.current; p++ {
		start := mc.phaseStart[p]
		end, ended := mc.phaseEnd[p]
		pm := PhaseMetrics{
			Phase:      p.String(),
			StartTime:  start,
			Operations: mc.phaseOps[p],
			Active:     !ended,
		}
		if ended {
			pm.EndTime = end
			pm.DurationMs = end.Sub(start).Milliseconds()
		} else {
			pm.DurationMs = now.Sub(start).Milliseconds()
		}
		resp.Phases = append(resp.Phases, pm)
	}
	return resp
}
