package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_FrameAccounting(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordFrameSent("first", 12800)
	m.RecordFrameSent("continue", 12800)
	m.RecordFrameSent("last", 100)
	m.RecordFrameDropped()

	if got := testutil.ToFloat64(m.AudioBytesSent); got != 25700 {
		t.Errorf("Expected 25700 bytes sent, got %v", got)
	}
	if got := testutil.ToFloat64(m.FramesSent.WithLabelValues("last")); got != 1 {
		t.Errorf("Expected 1 last frame, got %v", got)
	}
	if got := testutil.ToFloat64(m.FramesDropped); got != 1 {
		t.Errorf("Expected 1 dropped frame, got %v", got)
	}
}

func TestMetrics_SessionLifecycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSessionStarted()
	if got := testutil.ToFloat64(m.Recording); got != 1 {
		t.Errorf("Expected recording gauge 1, got %v", got)
	}

	m.RecordSessionClosed("completed", 2.5)
	if got := testutil.ToFloat64(m.Recording); got != 0 {
		t.Errorf("Expected recording gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsClosed.WithLabelValues("completed")); got != 1 {
		t.Errorf("Expected 1 completed session, got %v", got)
	}
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on fresh registries must not panic.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
