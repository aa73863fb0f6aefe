package eval

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/clipeval/internal/dataset"
	"github.com/danielpatrickdp/clipeval/internal/ranking"
	"github.com/danielpatrickdp/clipeval/internal/scorer"
)

// #region eval-config
// Grouping selects how clips are assigned to sample groups.
type Grouping string

const (
	GroupAuto     Grouping = "auto"     // by sample id when every clip has one
	GroupKey      Grouping = "key"      // by sample id, required
	GroupPosition Grouping = "position" // P contiguous clips per sample
)

// EvalConfig holds the parameters the core needs explicitly.
type EvalConfig struct {
	PerSample int
	TopK      int
	Policy    ranking.Policy
	Grouping  Grouping
}

// DefaultEvalConfig is the standard validation setup: 4 clips per
// sample, Top-5.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		PerSample: 4,
		TopK:      ranking.DefaultK,
		Policy:    ranking.PolicyClamp,
		Grouping:  GroupAuto,
	}
}

// ParseGrouping validates a grouping mode name.
func ParseGrouping(s string) (Grouping, error) {
	switch Grouping(s) {
	case GroupAuto, GroupKey, GroupPosition:
		return Grouping(s), nil
	case "":
		return GroupAuto, nil
	}
	return "", fmt.Errorf("unknown grouping %q (want auto, key or position)", s)
}

// #endregion eval-config

// #region scorer
// Scorer maps a batch of clips to per-clip logits. The call is synchronous.
type Scorer interface {
	Score(ctx context.Context, clips []dataset.Clip) (scorer.Result, error)
}

// #endregion scorer

// #region batch-stats
// BatchStats describes one consumed batch.
type BatchStats struct {
	Index    int
	Clips    int
	Samples  int
	Top1Hits int
	TopKHits int
	Loss     float64
	// K is the effective Top-K after the degenerate-K policy.
	K int
	// MeanConfidence is the mean softmax probability of the predicted
	// class over the batch's samples.
	MeanConfidence float64
	// SampleNLL is the mean negative log-likelihood of the true label
	// under the summed scores of each sample.
	SampleNLL float64
	// LossSource is "model" when the scorer reported the loss and
	// "cross_entropy" when it was computed from the logits.
	LossSource string
}

// BatchObserver is called after each batch has been accumulated. A
// non-nil error aborts the run.
type BatchObserver func(BatchStats) error

// #endregion batch-stats

// #region batch-error
// BatchError identifies the batch (and sample, when known) that made a
// run fail.
type BatchError struct {
	Batch  int
	Sample int // index within the batch, -1 when not sample specific
	Err    error
}

func (e *BatchError) Error() string {
	if e.Sample >= 0 {
		return fmt.Sprintf("batch %d sample %d: %v", e.Batch, e.Sample, e.Err)
	}
	return fmt.Sprintf("batch %d: %v", e.Batch, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// #endregion batch-error
