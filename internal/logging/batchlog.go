package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-batch
// LogBatch writes one consumed batch to the batch_log table.
func LogBatch(db *sql.DB, entry BatchEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO batch_log (run_id, batch_index, clips, samples, top1_hits, topk_hits, k, loss, loss_source, mean_confidence, sample_nll, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.BatchIndex,
		entry.Clips,
		entry.Samples,
		entry.Top1Hits,
		entry.TopKHits,
		entry.K,
		entry.Loss,
		nullIfEmpty(entry.LossSource),
		entry.MeanConfidence,
		entry.SampleNLL,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log batch: %w", err)
	}
	return nil
}

// #endregion log-batch

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
