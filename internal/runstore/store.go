package runstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/danielpatrickdp/clipeval/internal/metrics"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS eval_runs (
	run_id       TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	config_json  TEXT NOT NULL,
	mean_loss    REAL,
	top1         REAL,
	top5         REAL,
	batches      INTEGER,
	samples      INTEGER,
	reason       TEXT,
	created_at   TEXT NOT NULL,
	finished_at  TEXT
);

CREATE TABLE IF NOT EXISTS batch_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	batch_index  INTEGER NOT NULL,
	clips        INTEGER NOT NULL,
	samples      INTEGER NOT NULL,
	top1_hits    INTEGER NOT NULL,
	topk_hits    INTEGER NOT NULL,
	k            INTEGER NOT NULL,
	loss         REAL NOT NULL,
	loss_source  TEXT,
	mean_confidence REAL NOT NULL,
	sample_nll   REAL NOT NULL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES eval_runs(run_id)
);

CREATE INDEX IF NOT EXISTS batch_log_run ON batch_log(run_id, batch_index);
`

// #endregion schema

// timeLayout is fixed width so that created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region store-struct
// Store persists evaluation runs in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region begin-run
// BeginRun records a new running evaluation with its effective config.
func (s *Store) BeginRun(configJSON string) (RunRecord, error) {
	rec := RunRecord{
		RunID:      uuid.New().String(),
		Status:     StatusRunning,
		ConfigJSON: configJSON,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO eval_runs (run_id, status, config_json, created_at) VALUES (?, ?, ?, ?)`,
		rec.RunID, rec.Status, rec.ConfigJSON, rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}

// #endregion begin-run

// #region finish-run
// CompleteRun stores the final report of a running evaluation.
func (s *Store) CompleteRun(runID string, r metrics.Report) error {
	res, err := s.db.Exec(
		`UPDATE eval_runs
		 SET status = ?, mean_loss = ?, top1 = ?, top5 = ?, batches = ?, samples = ?, finished_at = ?
		 WHERE run_id = ? AND status = ?`,
		StatusCompleted, r.MeanLoss, r.Top1, r.Top5, r.Batches, r.Samples,
		time.Now().UTC().Format(timeLayout), runID, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return expectOne(res, runID)
}

// FailRun marks a running evaluation as failed. Its batch rows are
// discarded in the same transaction: a failed run keeps no partial metrics.
func (s *Store) FailRun(runID, reason string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM batch_log WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("discard batches: %w", err)
	}
	res, err := tx.Exec(
		`UPDATE eval_runs SET status = ?, reason = ?, finished_at = ? WHERE run_id = ? AND status = ?`,
		StatusFailed, reason, time.Now().UTC().Format(timeLayout), runID, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	if err := expectOne(res, runID); err != nil {
		return err
	}
	return tx.Commit()
}

func expectOne(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("run %s not found or not running", runID)
	}
	return nil
}

// #endregion finish-run

// #region get-run
const runColumns = `run_id, status, config_json, mean_loss, top1, top5, batches, samples, reason, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var loss, top1, top5 sql.NullFloat64
	var batches, samples sql.NullInt64
	var reason, finished sql.NullString
	var created string

	err := row.Scan(&rec.RunID, &rec.Status, &rec.ConfigJSON, &loss, &top1, &top5,
		&batches, &samples, &reason, &created, &finished)
	if err != nil {
		return RunRecord{}, err
	}
	if rec.Status == StatusCompleted {
		rec.Report = &metrics.Report{
			MeanLoss: loss.Float64,
			Top1:     top1.Float64,
			Top5:     top5.Float64,
			Batches:  int(batches.Int64),
			Samples:  int(samples.Int64),
		}
	}
	if reason.Valid {
		rec.Reason = reason.String
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if finished.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	return rec, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM eval_runs WHERE run_id = ?`, runID))
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// #endregion get-run

// #region list-runs
// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM eval_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list-runs

// #region batch-log
// BatchLog returns the batch rows of a run in batch order.
func (s *Store) BatchLog(runID string) ([]BatchRow, error) {
	rows, err := s.db.Query(
		`SELECT batch_index, clips, samples, top1_hits, topk_hits, k, loss, loss_source, mean_confidence, sample_nll
		 FROM batch_log WHERE run_id = ? ORDER BY batch_index`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("batch log: %w", err)
	}
	defer rows.Close()

	var out []BatchRow
	for rows.Next() {
		var b BatchRow
		var src sql.NullString
		if err := rows.Scan(&b.BatchIndex, &b.Clips, &b.Samples, &b.Top1Hits, &b.TopKHits, &b.K, &b.Loss, &src,
			&b.MeanConfidence, &b.SampleNLL); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		b.LossSource = src.String
		out = append(out, b)
	}
	return out, rows.Err()
}

// #endregion batch-log
