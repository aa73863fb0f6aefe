package metrics

import (
	"errors"
	"testing"
)

func TestAccumulator_LossIsBatchAveraged(t *testing.T) {
	a := NewAccumulator()
	if err := a.Accumulate(2.0, 5, 8, 10); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if err := a.Accumulate(3.0, 4, 9, 10); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}

	r, err := a.Finalize(2)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if r.MeanLoss != 2.5 {
		t.Errorf("expected mean loss 2.5, got %v", r.MeanLoss)
	}
	if r.Top1 != 0.45 {
		t.Errorf("expected top1 0.45, got %v", r.Top1)
	}
	if r.Top5 != 0.85 {
		t.Errorf("expected top5 0.85, got %v", r.Top5)
	}
	if r.Samples != 20 || r.Batches != 2 {
		t.Errorf("unexpected counts: %+v", r)
	}
}

func TestAccumulator_UnevenBatchesKeepBatchWeighting(t *testing.T) {
	a := NewAccumulator()
	a.Accumulate(1.0, 0, 0, 30)
	a.Accumulate(4.0, 0, 0, 2)

	r, err := a.Finalize(2)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if r.MeanLoss != 2.5 {
		t.Errorf("expected batch-weighted 2.5, got %v", r.MeanLoss)
	}
}

func TestAccumulator_EmptyFinalize(t *testing.T) {
	a := NewAccumulator()
	_, err := a.Finalize(0)
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
	if a.state != Accumulating {
		t.Errorf("failed finalize must not freeze, state=%s", a.state)
	}
}

func TestAccumulator_ZeroSamples(t *testing.T) {
	a := NewAccumulator()
	a.Accumulate(1.0, 0, 0, 0)
	if _, err := a.Finalize(1); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestAccumulator_FinalizeIdempotent(t *testing.T) {
	a := NewAccumulator()
	a.Accumulate(0.7, 1, 2, 3)

	r1, err := a.Finalize(1)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	r2, err := a.Finalize(1)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("expected identical reports, got %+v and %+v", r1, r2)
	}
}

func TestAccumulator_FinalizedRejectsAccumulate(t *testing.T) {
	a := NewAccumulator()
	a.Accumulate(0.7, 1, 1, 1)
	a.Finalize(1)

	if err := a.Accumulate(1, 0, 0, 1); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}

	a.Reset()
	if a.state != Accumulating || a.sampleCount != 0 {
		t.Fatalf("reset did not zero the accumulator")
	}
	if err := a.Accumulate(1, 0, 0, 1); err != nil {
		t.Fatalf("Accumulate after reset: %v", err)
	}
}

func TestAccumulator_InvalidCounts(t *testing.T) {
	a := NewAccumulator()
	cases := []struct{ h1, h5, n int }{
		{-1, 0, 1},
		{0, 2, 1},
		{2, 1, 3},
		{0, 0, -1},
	}
	for _, c := range cases {
		if err := a.Accumulate(0, c.h1, c.h5, c.n); !errors.Is(err, ErrInvalidCounts) {
			t.Errorf("%+v: expected ErrInvalidCounts, got %v", c, err)
		}
	}
	if a.sampleCount != 0 {
		t.Errorf("rejected batches must not be counted, samples=%d", a.sampleCount)
	}
}

func TestAccumulator_RatiosBounded(t *testing.T) {
	a := NewAccumulator()
	a.Accumulate(1, 3, 4, 4)
	a.Accumulate(1, 0, 1, 4)
	r, err := a.Finalize(2)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if r.Top1 < 0 || r.Top5 > 1 || r.Top1 > r.Top5 {
		t.Fatalf("ratios out of bounds: %+v", r)
	}
}

func TestReport_String(t *testing.T) {
	r := Report{MeanLoss: 2.5, Top1: 0.5, Top5: 0.75}
	want := "Loss: 2.5, Top 1: 0.5, Top 5: 0.75"
	if r.String() != want {
		t.Errorf("expected %q, got %q", want, r.String())
	}
}
