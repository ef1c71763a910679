package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/expenseflow/internal/jobs"
)

func TestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	for i := 0; i < 40; i++ {
		tracker := metrics.Track("sheet_export")
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending export tracker: %v", err)
		}
		metrics.AddExportedRows(2)
	}

	for i := 0; i < 5; i++ {
		tracker := metrics.Track("idempotency_cleanup")
		time.Sleep(5 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending cleanup tracker: %v", err)
		}
	}

	// A flaky sheets endpoint.
	for i := 0; i < 2; i++ {
		tracker := metrics.Track("sheet_export")
		if err := tracker.End(errors.New("sheets: 503")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}
	metrics.AddSkipped("sheet_export")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "expenseflow_jobs_total", map[string]string{"job": "sheet_export", "status": "success"})
	failure := metricValue(t, families, "expenseflow_jobs_total", map[string]string{"job": "sheet_export", "status": "failure"})
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("export success ratio too low: %f", ratio)
	}
	if failures := metricValue(t, families, "expenseflow_jobs_failures_total", map[string]string{"job": "sheet_export"}); failures != 2 {
		t.Fatalf("expected 2 failures, got %f", failures)
	}
	if skipped := metricValue(t, families, "expenseflow_jobs_skipped_total", map[string]string{"job": "sheet_export"}); skipped != 1 {
		t.Fatalf("expected 1 skipped run, got %f", skipped)
	}
	if rows := metricValue(t, families, "expenseflow_sheet_rows_exported_total", nil); rows != 80 {
		t.Fatalf("expected 80 exported rows, got %f", rows)
	}

	if mean := histogramMean(t, families, "expenseflow_job_duration_seconds", map[string]string{"job": "idempotency_cleanup"}); mean > 2.0 {
		t.Fatalf("cleanup duration above budget: %f", mean)
	}
	if mean := histogramMean(t, families, "expenseflow_job_duration_seconds", map[string]string{"job": "sheet_export"}); mean > 0.5 {
		t.Fatalf("export duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
