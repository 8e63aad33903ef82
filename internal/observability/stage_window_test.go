package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshotQuantiles(t *testing.T) {
	w := NewStageWindow(8)
	for _, ms := range []float64{100, 200, 300, 400} {
		w.Observe(StageFirstToken, ms)
	}

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("stages = %d, want 1", len(snap.Stages))
	}
	st := snap.Stages[0]
	if st.Stage != StageFirstToken {
		t.Fatalf("stage = %q", st.Stage)
	}
	if st.Samples != 4 {
		t.Fatalf("samples = %d, want 4", st.Samples)
	}
	if st.LastMS != 400 {
		t.Fatalf("last = %v, want 400", st.LastMS)
	}
	if st.AvgMS != 250 {
		t.Fatalf("avg = %v, want 250", st.AvgMS)
	}
	if st.P50MS != 250 {
		t.Fatalf("p50 = %v, want 250", st.P50MS)
	}
	if st.TargetP95MS == 0 {
		t.Fatal("expected a p95 target for the first token stage")
	}
}

func TestStageWindowWrapsAtCapacity(t *testing.T) {
	w := NewStageWindow(3)
	for i := 1; i <= 5; i++ {
		w.Observe(StageTurnTotal, float64(i*100))
	}

	st := w.Snapshot().Stages[0]
	if st.Samples != 3 {
		t.Fatalf("samples = %d, want window capacity 3", st.Samples)
	}
	if st.LastMS != 500 {
		t.Fatalf("last = %v, want 500", st.LastMS)
	}
}

func TestStageWindowIgnoresInvalidInput(t *testing.T) {
	w := NewStageWindow(4)
	w.Observe("", 100)
	w.Observe(StageFinalized, -5)

	snap := w.Snapshot()
	if len(snap.Stages) != 0 {
		t.Fatalf("stages = %d, want 0", len(snap.Stages))
	}
}

func TestStageWindowIndicatorsAndReset(t *testing.T) {
	w := NewStageWindow(4)
	w.ObserveIndicator("client_disconnect")
	w.ObserveIndicator("client_disconnect")
	w.ObserveIndicator("  ")
	w.ObserveDuration(StageFinalized, 120*time.Millisecond)

	snap := w.Snapshot()
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("indicators = %+v, want client_disconnect x2", snap.Indicators)
	}

	w.Reset()
	snap = w.Snapshot()
	if len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("snapshot not empty after reset: %+v", snap)
	}
}
