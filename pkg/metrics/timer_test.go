package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewTimerStartsImmediately(t *testing.T) {
	timer := NewTimer()
	if timer.start.IsZero() {
		t.Error("start time should not be zero")
	}
	if time.Since(timer.start) > time.Second {
		t.Error("start time should be recent")
	}
}

func TestTimerDurationIncreasesMonotonically(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	d1 := timer.Duration()
	time.Sleep(10 * time.Millisecond)
	d2 := timer.Duration()

	if d2 <= d1 {
		t.Errorf("expected increasing duration, got d1=%v d2=%v", d1, d2)
	}
}

func TestTimerObserveDurationDoesNotPanic(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_relic_duration_seconds",
		Help:    "test",
		Buckets: prometheus.DefBuckets,
	})
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(h)
}

func TestTimerObserveDurationVecDoesNotPanic(t *testing.T) {
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_relic_duration_vec_seconds",
		Help:    "test",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDurationVec(hv, "/artifacts/sample_artifact")
}
