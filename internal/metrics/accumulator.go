package metrics

import "fmt"

// #region accumulator
// Accumulator keeps running loss and hit counts across batches. It is not
// safe for concurrent use; the evaluation driver owns it.
type Accumulator struct {
	state State

	lossSum     float64
	top1Count   int
	top5Count   int
	sampleCount int

	report Report
}

// NewAccumulator returns a zeroed accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Reset zeroes all counters and returns to the accumulating state.
func (a *Accumulator) Reset() {
	*a = Accumulator{}
}

// Accumulate adds one batch. batchLoss is the batch's mean loss and is
// summed as-is: the final loss is averaged over batches, not samples.
func (a *Accumulator) Accumulate(batchLoss float64, hits1, hits5, nSamples int) error {
	if a.state == Finalized {
		return ErrFinalized
	}
	if nSamples < 0 || hits1 < 0 || hits5 < 0 {
		return fmt.Errorf("%w: negative count (hits1=%d hits5=%d samples=%d)", ErrInvalidCounts, hits1, hits5, nSamples)
	}
	if hits5 > nSamples || hits1 > hits5 {
		return fmt.Errorf("%w: need hits1 <= hits5 <= samples, got %d, %d, %d", ErrInvalidCounts, hits1, hits5, nSamples)
	}

	a.lossSum += batchLoss
	a.top1Count += hits1
	a.top5Count += hits5
	a.sampleCount += nSamples
	return nil
}

// Finalize computes the final ratios and freezes the accumulator. Calling
// it again without Reset returns the same report.
func (a *Accumulator) Finalize(nBatches int) (Report, error) {
	if a.state == Finalized {
		return a.report, nil
	}
	if nBatches <= 0 {
		return Report{}, fmt.Errorf("%w: %d batches", ErrDivisionByZero, nBatches)
	}
	if a.sampleCount == 0 {
		return Report{}, fmt.Errorf("%w: no samples accumulated", ErrDivisionByZero)
	}

	n := float64(a.sampleCount)
	a.report = Report{
		MeanLoss: a.lossSum / float64(nBatches),
		Top1:     float64(a.top1Count) / n,
		Top5:     float64(a.top5Count) / n,
		Batches:  nBatches,
		Samples:  a.sampleCount,
	}
	a.state = Finalized
	return a.report, nil
}

// #endregion accumulator
