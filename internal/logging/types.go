package logging

import "time"

// #region batch-entry
// BatchEntry is a single row in the batch_log table.
type BatchEntry struct {
	RunID      string
	BatchIndex int
	Clips      int
	Samples    int
	Top1Hits   int
	TopKHits   int
	Loss       float64
	LossSource string // "model" | "cross_entropy"
	K          int
	// MeanConfidence and SampleNLL summarize the batch's aggregated
	// samples: mean predicted-class probability and mean label NLL.
	MeanConfidence float64
	SampleNLL      float64
	CreatedAt      time.Time
}

// #endregion batch-entry
