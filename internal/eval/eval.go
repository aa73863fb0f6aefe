package eval

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/danielpatrickdp/clipeval/internal/dataset"
	"github.com/danielpatrickdp/clipeval/internal/metrics"
	"github.com/danielpatrickdp/clipeval/internal/ranking"
	"github.com/danielpatrickdp/clipeval/internal/views"
)

// #region eval-harness
// EvalHarness runs one sequential evaluation pass:
// source → scorer → view aggregation → ranking → accumulation.
type EvalHarness struct {
	config    EvalConfig
	ranker    *ranking.Evaluator
	acc       *metrics.Accumulator
	observers []BatchObserver

	// classes is C, fixed by the first group of a run.
	classes int
}

// NewEvalHarness creates a harness with the given configuration.
func NewEvalHarness(config EvalConfig) (*EvalHarness, error) {
	if config.PerSample < 1 {
		return nil, fmt.Errorf("%w: clips per sample must be >= 1, got %d", views.ErrShapeMismatch, config.PerSample)
	}
	grouping, err := ParseGrouping(string(config.Grouping))
	if err != nil {
		return nil, err
	}
	config.Grouping = grouping
	ranker, err := ranking.NewEvaluator(config.TopK, config.Policy)
	if err != nil {
		return nil, err
	}
	return &EvalHarness{
		config: config,
		ranker: ranker,
		acc:    metrics.NewAccumulator(),
	}, nil
}

// OnBatch registers an observer called after every accumulated batch.
func (h *EvalHarness) OnBatch(fn BatchObserver) {
	h.observers = append(h.observers, fn)
}

// Run consumes src until io.EOF and returns the final report. Any failure
// aborts the pass and no report is returned.
func (h *EvalHarness) Run(ctx context.Context, src dataset.Source, sc Scorer) (metrics.Report, error) {
	h.acc.Reset()
	h.classes = 0
	batches := 0

	for {
		if err := ctx.Err(); err != nil {
			return metrics.Report{}, err
		}
		b, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return metrics.Report{}, fmt.Errorf("read batch %d: %w", batches, err)
		}

		stats, err := h.runBatch(ctx, batches, b, sc)
		if err != nil {
			return metrics.Report{}, err
		}
		batches++

		for _, fn := range h.observers {
			if err := fn(stats); err != nil {
				return metrics.Report{}, &BatchError{Batch: stats.Index, Sample: -1, Err: err}
			}
		}
	}

	report, err := h.acc.Finalize(batches)
	if err != nil {
		return metrics.Report{}, fmt.Errorf("finalize: %w", err)
	}
	return report, nil
}

// #endregion eval-harness

// #region batch
func (h *EvalHarness) runBatch(ctx context.Context, index int, b dataset.Batch, sc Scorer) (BatchStats, error) {
	fail := func(sample int, err error) (BatchStats, error) {
		return BatchStats{}, &BatchError{Batch: index, Sample: sample, Err: err}
	}

	p := h.config.PerSample
	if err := views.CheckBatch(len(b.Clips), p); err != nil {
		return fail(-1, err)
	}

	res, err := sc.Score(ctx, b.Clips)
	if err != nil {
		return fail(-1, fmt.Errorf("score: %w", err))
	}
	if len(res.Logits) != len(b.Clips) {
		return fail(-1, fmt.Errorf("%w: scorer returned %d rows for %d clips",
			views.ErrShapeMismatch, len(res.Logits), len(b.Clips)))
	}

	labels := b.Labels()
	groups, err := h.group(b, res.Logits, labels)
	if err != nil {
		return fail(-1, err)
	}
	for i, g := range groups {
		if h.classes == 0 {
			h.classes = len(g.Scores)
		}
		if len(g.Scores) != h.classes {
			return fail(i, fmt.Errorf("%w: %d classes, run has %d", views.ErrShapeMismatch, len(g.Scores), h.classes))
		}
	}

	stats := BatchStats{Index: index, Clips: len(b.Clips), LossSource: "model"}
	if res.Loss != nil {
		stats.Loss = *res.Loss
	} else {
		stats.LossSource = "cross_entropy"
		if stats.Loss, err = ranking.CrossEntropy(res.Logits, labels); err != nil {
			return fail(-1, fmt.Errorf("loss: %w", err))
		}
	}

	var confSum, nllSum float64
	for i, g := range groups {
		out, err := h.ranker.Evaluate(g.Scores, g.Label)
		if err != nil {
			return fail(i, err)
		}
		if out.Top1 {
			stats.Top1Hits++
		}
		if out.TopK {
			stats.TopKHits++
		}
		stats.K = out.K
		confSum += out.Confidence
		nllSum += out.Loss
	}
	stats.Samples = len(groups)
	if n := float64(len(groups)); n > 0 {
		stats.MeanConfidence = confSum / n
		stats.SampleNLL = nllSum / n
	}

	if err := h.acc.Accumulate(stats.Loss, stats.Top1Hits, stats.TopKHits, stats.Samples); err != nil {
		return fail(-1, err)
	}
	return stats, nil
}

func (h *EvalHarness) group(b dataset.Batch, logits [][]float32, labels []int) ([]views.Group, error) {
	keyed := h.config.Grouping == GroupKey || (h.config.Grouping == GroupAuto && b.Keyed())
	if !keyed {
		return views.GroupByPosition(logits, labels, h.config.PerSample)
	}
	clips := make([]views.ClipScore, len(b.Clips))
	for i, c := range b.Clips {
		clips[i] = views.ClipScore{SampleID: c.SampleID, Label: c.Label, Logits: logits[i]}
	}
	return views.GroupByKey(clips, h.config.PerSample)
}

// #endregion batch
