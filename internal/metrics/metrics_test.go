package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second Register failed: %v", err)
	}
}

func TestFramesDroppedByReason(t *testing.T) {
	before := testutil.ToFloat64(FramesDropped.WithLabelValues("malformed"))
	FramesDropped.WithLabelValues("malformed").Inc()
	after := testutil.ToFloat64(FramesDropped.WithLabelValues("malformed"))
	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, got %v", after-before)
	}
}
