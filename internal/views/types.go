package views

import "errors"

// #region errors
var (
	// ErrShapeMismatch is returned when clips cannot be cut into groups of
	// exactly P equal-length score vectors.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInconsistentGroupLabel is returned when clips of one sample group
	// carry different labels.
	ErrInconsistentGroupLabel = errors.New("inconsistent group label")
)

// #endregion errors

// #region clip-score
// ClipScore is the scorer output for one clip, tagged with the sample it
// was cut from.
type ClipScore struct {
	SampleID string
	Label    int
	Logits   []float32
}

// #endregion clip-score

// #region group
// Group is one aggregated sample: the element-wise sum of its P clip
// score vectors.
type Group struct {
	SampleID string
	Label    int
	Scores   []float64
}

// #endregion group
