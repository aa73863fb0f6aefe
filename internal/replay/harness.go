package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/danielpatrickdp/clipeval/internal/dataset"
	"github.com/danielpatrickdp/clipeval/internal/metrics"
	"github.com/danielpatrickdp/clipeval/internal/ranking"
	"github.com/danielpatrickdp/clipeval/internal/scorer"
	"github.com/danielpatrickdp/clipeval/internal/views"
)

// #region source
// Source serves the fixture's recorded batches in order.
type Source struct {
	f    *Fixture
	next int
}

// NewSource returns a dataset.Source over the fixture batches.
func NewSource(f *Fixture) *Source {
	return &Source{f: f}
}

func (s *Source) Next(ctx context.Context) (dataset.Batch, error) {
	if err := ctx.Err(); err != nil {
		return dataset.Batch{}, err
	}
	if s.next >= len(s.f.Batches) {
		return dataset.Batch{}, io.EOF
	}
	fb := s.f.Batches[s.next]
	clips := make([]dataset.Clip, len(fb.Clips))
	for i, c := range fb.Clips {
		clips[i] = dataset.Clip{SampleID: c.SampleID, Label: c.Label}
	}
	b := dataset.Batch{Index: s.next, Clips: clips}
	s.next++
	return b, nil
}

// #endregion source

// #region scorer
// Scorer answers each call with the next recorded batch output.
type Scorer struct {
	f    *Fixture
	next int
}

// NewScorer returns a scorer replaying the fixture's logits.
func NewScorer(f *Fixture) *Scorer {
	return &Scorer{f: f}
}

func (s *Scorer) Score(_ context.Context, clips []dataset.Clip) (scorer.Result, error) {
	if s.next >= len(s.f.Batches) {
		return scorer.Result{}, fmt.Errorf("replay: no recorded output for call %d", s.next)
	}
	fb := s.f.Batches[s.next]
	s.next++
	if len(fb.Clips) != len(clips) {
		return scorer.Result{}, fmt.Errorf("replay: call %d has %d clips, recorded %d", s.next-1, len(clips), len(fb.Clips))
	}
	return scorer.Result{Logits: fb.Logits, Loss: fb.Loss}, nil
}

// #endregion scorer

// #region check
var errorKinds = map[string]error{
	"shape_mismatch":           views.ErrShapeMismatch,
	"inconsistent_group_label": views.ErrInconsistentGroupLabel,
	"division_by_zero":         metrics.ErrDivisionByZero,
	"degenerate_top_k":         ranking.ErrDegenerateTopK,
	"label_out_of_range":       ranking.ErrLabelOutOfRange,
}

// Check compares the outcome of a replayed run with the fixture's
// expectation. Metrics are compared within tol.
func Check(f *Fixture, report metrics.Report, runErr error, tol float64) error {
	if f.Expected.Error != "" {
		want, ok := errorKinds[f.Expected.Error]
		if !ok {
			return fmt.Errorf("unknown expected error kind %q", f.Expected.Error)
		}
		if runErr == nil {
			return fmt.Errorf("expected %s error, run succeeded with %s", f.Expected.Error, report)
		}
		if !errors.Is(runErr, want) {
			return fmt.Errorf("expected %s error, got: %w", f.Expected.Error, runErr)
		}
		return nil
	}
	if runErr != nil {
		return fmt.Errorf("unexpected run error: %w", runErr)
	}

	var diffs []string
	cmp := func(name string, got, want float64) {
		if math.Abs(got-want) > tol {
			diffs = append(diffs, fmt.Sprintf("%s=%v want %v", name, got, want))
		}
	}
	cmp("mean_loss", report.MeanLoss, f.Expected.MeanLoss)
	cmp("top1", report.Top1, f.Expected.Top1)
	cmp("top5", report.Top5, f.Expected.Top5)
	if f.Expected.Samples != 0 && report.Samples != f.Expected.Samples {
		diffs = append(diffs, fmt.Sprintf("samples=%d want %d", report.Samples, f.Expected.Samples))
	}
	if len(diffs) > 0 {
		return fmt.Errorf("report mismatch: %v", diffs)
	}
	return nil
}

// #endregion check
