package runstore

import (
	"time"

	"github.com/danielpatrickdp/clipeval/internal/metrics"
)

// #region status
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// #endregion status

// #region run-record
// RunRecord is one evaluation run. Report is nil unless the run completed.
type RunRecord struct {
	RunID      string          `json:"run_id"`
	Status     string          `json:"status"`
	ConfigJSON string          `json:"config"`
	Report     *metrics.Report `json:"report,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// #endregion run-record

// #region batch-row
// BatchRow is a persisted batch_log row.
type BatchRow struct {
	BatchIndex int     `json:"batch_index"`
	Clips      int     `json:"clips"`
	Samples    int     `json:"samples"`
	Top1Hits   int     `json:"top1_hits"`
	TopKHits   int     `json:"topk_hits"`
	Loss       float64 `json:"loss"`
	LossSource string  `json:"loss_source"`
	K          int     `json:"k"`

	MeanConfidence float64 `json:"mean_confidence"`
	SampleNLL      float64 `json:"sample_nll"`
}

// #endregion batch-row
