package dataset

import "context"

// #region clip
// Clip is one short temporal segment of a video plus its ground truth.
// Data holds the decoded clip tensor in row-major order with the given Shape.
type Clip struct {
	SampleID string
	Label    int
	Shape    []int
	Data     []float32
}

// #endregion clip

// #region batch
// Batch is a run of consecutive clips as produced by a Source.
type Batch struct {
	Index int
	Clips []Clip
}

// Labels returns the per-clip labels in batch order.
func (b Batch) Labels() []int {
	labels := make([]int, len(b.Clips))
	for i, c := range b.Clips {
		labels[i] = c.Label
	}
	return labels
}

// Keyed reports whether every clip carries a sample id.
func (b Batch) Keyed() bool {
	for _, c := range b.Clips {
		if c.SampleID == "" {
			return false
		}
	}
	return len(b.Clips) > 0
}

// #endregion batch

// #region source
// Source yields batches in dataset order and returns io.EOF when drained.
type Source interface {
	Next(ctx context.Context) (Batch, error)
}

// #endregion source
