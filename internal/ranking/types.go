package ranking

import "errors"

// DefaultK is the K of the Top-K metric reported next to Top-1.
const DefaultK = 5

// #region errors
var (
	// ErrDegenerateTopK is returned under PolicyStrict when there are fewer
	// classes than K.
	ErrDegenerateTopK = errors.New("fewer classes than top-k")
	// ErrLabelOutOfRange is returned when the true label does not index a class.
	ErrLabelOutOfRange = errors.New("label out of range")
	// ErrEmptyScores is returned for a zero-length score vector.
	ErrEmptyScores = errors.New("empty score vector")
)

// #endregion errors

// #region policy
// Policy decides what Top-K means when there are fewer than K classes.
type Policy string

const (
	// PolicyClamp evaluates Top-min(K, C). With C < K every sample is a hit.
	PolicyClamp Policy = "clamp"
	// PolicyStrict refuses to evaluate Top-K when C < K.
	PolicyStrict Policy = "strict"
)

// #endregion policy

// #region outcome
// Outcome is the verdict for one aggregated sample.
type Outcome struct {
	Predicted  int     // arg-max class
	Top1       bool    // label == Predicted
	TopK       bool    // label among the K best classes
	K          int     // effective K after policy
	Confidence float64 // softmax probability of Predicted
	Loss       float64 // negative log-likelihood of the label
}

// #endregion outcome
