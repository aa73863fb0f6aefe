package runstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/clipeval/internal/logging"
	"github.com/danielpatrickdp/clipeval/internal/metrics"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func logBatches(t *testing.T, s *Store, runID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := logging.LogBatch(s.DB(), logging.BatchEntry{
			RunID:      runID,
			BatchIndex: i,
			Clips:      8,
			Samples:    2,
			Top1Hits:   1,
			TopKHits:   2,
			Loss:       float64(i) + 0.5,
			LossSource: "model",
			K:          5,

			MeanConfidence: 0.75,
			SampleNLL:      1.1,
		})
		if err != nil {
			t.Fatalf("LogBatch: %v", err)
		}
	}
}

func TestBeginAndCompleteRun(t *testing.T) {
	s := tempDB(t)

	rec, err := s.BeginRun(`{"per_sample":4}`)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if rec.RunID == "" || rec.Status != StatusRunning {
		t.Fatalf("unexpected record %+v", rec)
	}
	logBatches(t, s, rec.RunID, 3)

	report := metrics.Report{MeanLoss: 1.5, Top1: 0.5, Top5: 1, Batches: 3, Samples: 6}
	if err := s.CompleteRun(rec.RunID, report); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	got, err := s.GetRun(rec.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.Report == nil || *got.Report != report {
		t.Fatalf("expected report %+v, got %+v", report, got.Report)
	}
	if got.ConfigJSON != `{"per_sample":4}` {
		t.Errorf("unexpected config %q", got.ConfigJSON)
	}
	if got.FinishedAt.IsZero() {
		t.Error("expected finished_at to be set")
	}

	batches, err := s.BatchLog(rec.RunID)
	if err != nil {
		t.Fatalf("BatchLog: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batch rows, got %d", len(batches))
	}
	if batches[2].Loss != 2.5 || batches[2].LossSource != "model" || batches[2].K != 5 {
		t.Errorf("unexpected batch row %+v", batches[2])
	}
}

func TestFailRunDiscardsBatches(t *testing.T) {
	s := tempDB(t)
	rec, err := s.BeginRun(`{}`)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	logBatches(t, s, rec.RunID, 2)

	if err := s.FailRun(rec.RunID, "batch 2: shape mismatch"); err != nil {
		t.Fatalf("FailRun: %v", err)
	}

	got, err := s.GetRun(rec.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusFailed || got.Report != nil {
		t.Fatalf("expected failed run without report, got %+v", got)
	}
	if got.Reason != "batch 2: shape mismatch" {
		t.Errorf("unexpected reason %q", got.Reason)
	}

	batches, _ := s.BatchLog(rec.RunID)
	if len(batches) != 0 {
		t.Errorf("expected batches discarded, got %d", len(batches))
	}
}

func TestCompleteRunTwiceFails(t *testing.T) {
	s := tempDB(t)
	rec, _ := s.BeginRun(`{}`)
	r := metrics.Report{Batches: 1, Samples: 1}
	if err := s.CompleteRun(rec.RunID, r); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	if err := s.CompleteRun(rec.RunID, r); err == nil {
		t.Fatal("expected error completing a finished run")
	}
	if err := s.FailRun(rec.RunID, "late"); err == nil {
		t.Fatal("expected error failing a finished run")
	}
}

func TestCompleteUnknownRun(t *testing.T) {
	s := tempDB(t)
	if err := s.CompleteRun("nope", metrics.Report{}); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := tempDB(t)
	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := s.BeginRun(`{}`)
		if err != nil {
			t.Fatalf("BeginRun: %v", err)
		}
		ids = append(ids, rec.RunID)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != ids[2] || runs[1].RunID != ids[1] {
		t.Errorf("unexpected order: %s, %s", runs[0].RunID, runs[1].RunID)
	}
}
