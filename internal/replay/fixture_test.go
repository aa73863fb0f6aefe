package replay

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/clipeval/internal/dataset"
	"github.com/danielpatrickdp/clipeval/internal/eval"
	"github.com/danielpatrickdp/clipeval/internal/metrics"
	"github.com/danielpatrickdp/clipeval/internal/ranking"
)

func runFixture(t *testing.T, f *Fixture) (metrics.Report, error) {
	t.Helper()
	cfg, err := f.Config.ToEvalConfig()
	if err != nil {
		t.Fatalf("ToEvalConfig: %v", err)
	}
	h, err := eval.NewEvalHarness(cfg)
	if err != nil {
		t.Fatalf("NewEvalHarness: %v", err)
	}
	return h.Run(context.Background(), NewSource(f), NewScorer(f))
}

func TestReplay_TwoBatches(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "two_batches.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	report, runErr := runFixture(t, f)
	if err := Check(f, report, runErr, 1e-9); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Batches != 2 {
		t.Errorf("expected 2 batches, got %d", report.Batches)
	}
}

func TestReplay_UnevenBatchFails(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "uneven_batch.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	report, runErr := runFixture(t, f)
	if err := Check(f, report, runErr, 1e-9); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestReplay_CrossEntropyWhenNoLoss(t *testing.T) {
	f := &Fixture{
		Config: FixtureConfig{PerSample: 1},
		Batches: []FixtureBatch{{
			Clips:  []FixtureClip{{SampleID: "a", Label: 0}, {SampleID: "b", Label: 1}},
			Logits: [][]float32{{0, 0}, {0, 0}},
		}},
		Expected: FixtureExpect{MeanLoss: math.Ln2, Top1: 0.5, Top5: 1},
	}
	report, runErr := runFixture(t, f)
	if err := Check(f, report, runErr, 1e-9); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestReplay_EmptyFixtureDivisionByZero(t *testing.T) {
	f := &Fixture{Expected: FixtureExpect{Error: "division_by_zero"}}
	report, runErr := runFixture(t, f)
	if err := Check(f, report, runErr, 0); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheck_ReportsMismatch(t *testing.T) {
	f := &Fixture{Expected: FixtureExpect{MeanLoss: 1, Top1: 0.5, Top5: 0.5}}
	if err := Check(f, metrics.Report{MeanLoss: 1, Top1: 0.25, Top5: 0.5}, nil, 1e-9); err == nil {
		t.Fatal("expected mismatch")
	}
	f.Expected.Error = "shape_mismatch"
	if err := Check(f, metrics.Report{}, nil, 0); err == nil {
		t.Fatal("expected failure when the run unexpectedly succeeds")
	}
	f.Expected.Error = "gremlins"
	if err := Check(f, metrics.Report{}, nil, 0); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestScorer_ClipCountMismatch(t *testing.T) {
	f := &Fixture{Batches: []FixtureBatch{{
		Clips:  []FixtureClip{{SampleID: "a"}},
		Logits: [][]float32{{1}},
	}}}
	s := NewScorer(f)
	if _, err := s.Score(context.Background(), make([]dataset.Clip, 2)); err == nil {
		t.Fatal("expected clip count mismatch")
	}
	if _, err := s.Score(context.Background(), nil); err == nil {
		t.Fatal("expected exhausted scorer error")
	}
}

func TestFixtureConfig_Defaults(t *testing.T) {
	var fc FixtureConfig
	cfg, err := fc.ToEvalConfig()
	if err != nil {
		t.Fatalf("ToEvalConfig: %v", err)
	}
	if cfg.PerSample != 4 || cfg.TopK != ranking.DefaultK || cfg.Policy != ranking.PolicyClamp || cfg.Grouping != eval.GroupAuto {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	fc.TopKPolicy = "lenient"
	if _, err := fc.ToEvalConfig(); err == nil {
		t.Error("expected policy error")
	}
}
