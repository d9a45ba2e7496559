package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dray-io/droplife/internal/lifecycle"
)

var _ lifecycle.MetricsRecorder = (*LifecycleMetrics)(nil)

func TestNewLifecycleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLifecycleMetricsWithRegistry(reg)

	m.RecordSweep(10*time.Millisecond, 3)
	m.RecordTransition("expired")
	m.RecordReplication(time.Millisecond, true)
	m.RecordCheckError("existence")
	m.RecordDrops(map[string]int{"completed": 1}, map[string]int{"gas": 1})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	expected := map[string]bool{
		"droplife_lifecycle_drops":                       false,
		"droplife_lifecycle_drops_by_phase":              false,
		"droplife_lifecycle_transitions_total":           false,
		"droplife_lifecycle_replications_total":          false,
		"droplife_lifecycle_replication_latency_seconds": false,
		"droplife_lifecycle_check_errors_total":          false,
		"droplife_lifecycle_sweep_duration_seconds":      false,
		"droplife_lifecycle_sweep_drops":                 false,
	}
	for _, family := range families {
		if _, ok := expected[family.GetName()]; ok {
			expected[family.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("expected metric %s to be registered", name)
		}
	}
}

func TestLifecycleMetrics_RecordSweep(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLifecycleMetricsWithRegistry(reg)

	m.RecordSweep(20*time.Millisecond, 7)
	m.RecordSweep(40*time.Millisecond, 5)

	mfs, _ := reg.Gather()
	if v := getGaugeValue(findMetricFamily(mfs, "droplife_lifecycle_sweep_drops"), map[string]string{}); v != 5 {
		t.Errorf("sweep drops = %v, want 5 (last sweep)", v)
	}
	hist := findMetricFamily(mfs, "droplife_lifecycle_sweep_duration_seconds").Metric[0].GetHistogram()
	if hist.GetSampleCount() != 2 {
		t.Errorf("sweep count = %d, want 2", hist.GetSampleCount())
	}
	if sum := hist.GetSampleSum(); sum < 0.059 || sum > 0.061 {
		t.Errorf("sweep duration sum = %v, want 0.06", sum)
	}
}

func TestLifecycleMetrics_Transitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLifecycleMetricsWithRegistry(reg)

	m.RecordTransition("solid")
	m.RecordTransition("solid")
	m.RecordTransition("lost")

	mfs, _ := reg.Gather()
	mf := findMetricFamily(mfs, "droplife_lifecycle_transitions_total")
	if v := getCounterValue(mf, map[string]string{"transition": "solid"}); v != 2 {
		t.Errorf("solid = %v, want 2", v)
	}
	if v := getCounterValue(mf, map[string]string{"transition": "lost"}); v != 1 {
		t.Errorf("lost = %v, want 1", v)
	}
}

func TestLifecycleMetrics_Replication(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLifecycleMetricsWithRegistry(reg)

	m.RecordReplication(100*time.Millisecond, true)
	m.RecordReplication(time.Second, false)
	m.RecordCheckError("replication")

	mfs, _ := reg.Gather()
	mf := findMetricFamily(mfs, "droplife_lifecycle_replications_total")
	if v := getCounterValue(mf, map[string]string{"status": StatusSuccess}); v != 1 {
		t.Errorf("success = %v, want 1", v)
	}
	if v := getCounterValue(mf, map[string]string{"status": StatusFailure}); v != 1 {
		t.Errorf("failure = %v, want 1", v)
	}
	hist := findMetricFamily(mfs, "droplife_lifecycle_replication_latency_seconds").Metric[0].GetHistogram()
	if hist.GetSampleCount() != 1 {
		t.Errorf("latency samples = %d, want 1 (failures are not timed)", hist.GetSampleCount())
	}
	errs := findMetricFamily(mfs, "droplife_lifecycle_check_errors_total")
	if v := getCounterValue(errs, map[string]string{"check": "replication"}); v != 1 {
		t.Errorf("replication check errors = %v, want 1", v)
	}
}

func TestLifecycleMetrics_RecordDrops(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLifecycleMetricsWithRegistry(reg)

	m.RecordDrops(map[string]int{"completed": 4, "expired": 1}, map[string]int{"gas": 3, "solid": 2})
	m.RecordDrops(map[string]int{"completed": 2, "expired": 0}, map[string]int{"gas": 1, "solid": 1})

	mfs, _ := reg.Gather()
	drops := findMetricFamily(mfs, "droplife_lifecycle_drops")
	if v := getGaugeValue(drops, map[string]string{"status": "completed"}); v != 2 {
		t.Errorf("completed = %v, want 2", v)
	}
	if v := getGaugeValue(drops, map[string]string{"status": "expired"}); v != 0 {
		t.Errorf("expired = %v, want 0", v)
	}
	phases := findMetricFamily(mfs, "droplife_lifecycle_drops_by_phase")
	if v := getGaugeValue(phases, map[string]string{"phase": "solid"}); v != 1 {
		t.Errorf("solid = %v, want 1", v)
	}
}
