package metrics

import (
	"errors"
	"fmt"
)

// #region errors
var (
	// ErrDivisionByZero is returned by Finalize when no batches or no
	// samples were accumulated.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrFinalized is returned when accumulating into a finalized accumulator.
	ErrFinalized = errors.New("accumulator is finalized")
	// ErrInvalidCounts is returned for negative or impossible hit counts.
	ErrInvalidCounts = errors.New("invalid counts")
)

// #endregion errors

// #region state
// State is the accumulator lifecycle state.
type State int

const (
	Accumulating State = iota
	Finalized
)

func (s State) String() string {
	if s == Finalized {
		return "finalized"
	}
	return "accumulating"
}

// #endregion state

// #region report
// Report is the final, normalized result of an evaluation pass.
type Report struct {
	MeanLoss float64 `json:"mean_loss"`
	Top1     float64 `json:"top1_accuracy"`
	Top5     float64 `json:"top5_accuracy"`
	Batches  int     `json:"batches"`
	Samples  int     `json:"samples"`
}

// String renders the one-line summary.
func (r Report) String() string {
	return fmt.Sprintf("Loss: %v, Top 1: %v, Top 5: %v", r.MeanLoss, r.Top1, r.Top5)
}

// #endregion report
