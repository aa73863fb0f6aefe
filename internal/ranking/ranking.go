package ranking

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// #region evaluator
// Evaluator ranks aggregated score vectors against their true label.
type Evaluator struct {
	k      int
	policy Policy
}

// NewEvaluator creates an evaluator for Top-1 and Top-k.
func NewEvaluator(k int, policy Policy) (*Evaluator, error) {
	if k < 1 {
		return nil, fmt.Errorf("top-k must be >= 1, got %d", k)
	}
	policy, err := ParsePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	return &Evaluator{k: k, policy: policy}, nil
}

// Evaluate derives Top-1 and Top-K correctness for one sample. Ranking is
// done on the raw scores; the log-softmax only feeds Confidence and Loss,
// so it can never change which classes are hits.
func (e *Evaluator) Evaluate(scores []float64, label int) (Outcome, error) {
	c := len(scores)
	if c == 0 {
		return Outcome{}, ErrEmptyScores
	}
	if label < 0 || label >= c {
		return Outcome{}, fmt.Errorf("%w: label %d, %d classes", ErrLabelOutOfRange, label, c)
	}

	k := e.k
	if c < k {
		if e.policy == PolicyStrict {
			return Outcome{}, fmt.Errorf("%w: %d classes, k=%d", ErrDegenerateTopK, c, k)
		}
		k = c
	}

	top := TopK(scores, k)
	logp := LogSoftmax(scores)

	return Outcome{
		Predicted:  top[0],
		Top1:       top[0] == label,
		TopK:       slices.Contains(top, label),
		K:          k,
		Confidence: math.Exp(logp[top[0]]),
		Loss:       -logp[label],
	}, nil
}

// #endregion evaluator

// #region policy-parse
// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyClamp, PolicyStrict:
		return Policy(s), nil
	case "":
		return PolicyClamp, nil
	}
	return "", fmt.Errorf("unknown top-k policy %q (want %q or %q)", s, PolicyClamp, PolicyStrict)
}

// #endregion policy-parse

// #region math
// LogSoftmax returns log(softmax(v)) using the max-shifted log-sum-exp.
func LogSoftmax(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	m := slices.Max(v)
	var sum float64
	for _, x := range v {
		sum += math.Exp(x - m)
	}
	lse := m + math.Log(sum)
	for i, x := range v {
		out[i] = x - lse
	}
	return out
}

// TopK returns the indices of the k largest values, best first. Equal
// values keep ascending index order.
func TopK(v []float64, k int) []int {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(v[b], v[a])
	})
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}

// CrossEntropy is the mean per-clip cross-entropy of raw logits against
// labels. Used when the scorer does not report a loss itself.
func CrossEntropy(logits [][]float32, labels []int) (float64, error) {
	if len(logits) == 0 {
		return 0, ErrEmptyScores
	}
	if len(logits) != len(labels) {
		return 0, fmt.Errorf("cross entropy: %d rows but %d labels", len(logits), len(labels))
	}
	row := make([]float64, 0, len(logits[0]))
	var total float64
	for i, l := range logits {
		row = row[:0]
		for _, x := range l {
			row = append(row, float64(x))
		}
		if labels[i] < 0 || labels[i] >= len(row) {
			return 0, fmt.Errorf("%w: row %d label %d, %d classes", ErrLabelOutOfRange, i, labels[i], len(row))
		}
		total -= LogSoftmax(row)[labels[i]]
	}
	return total / float64(len(logits)), nil
}

// #endregion math
