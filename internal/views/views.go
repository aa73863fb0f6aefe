package views

import "fmt"

// #region group-by-position
// GroupByPosition cuts a batch of B·P clip score vectors into B groups of P
// contiguous rows and sums each group. The group label is the label of its
// first clip; every other clip in the group must agree.
func GroupByPosition(scores [][]float32, labels []int, p int) ([]Group, error) {
	if err := CheckBatch(len(scores), p); err != nil {
		return nil, err
	}
	if len(labels) != len(scores) {
		return nil, fmt.Errorf("%w: %d score vectors but %d labels", ErrShapeMismatch, len(scores), len(labels))
	}

	groups := make([]Group, 0, len(scores)/p)
	for start := 0; start < len(scores); start += p {
		g := Group{Label: labels[start]}
		for j := start; j < start+p; j++ {
			if labels[j] != g.Label {
				return nil, fmt.Errorf("%w: sample %d: clip %d has label %d, group label is %d",
					ErrInconsistentGroupLabel, len(groups), j, labels[j], g.Label)
			}
			if err := accumulate(&g, scores[j], len(groups)); err != nil {
				return nil, err
			}
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// #endregion group-by-position

// #region group-by-key
// GroupByKey groups clips by their SampleID instead of by position. Groups
// come out in order of first appearance and each must hold exactly p clips.
func GroupByKey(clips []ClipScore, p int) ([]Group, error) {
	if err := CheckBatch(len(clips), p); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(clips)/p)
	counts := make([]int, 0, len(clips)/p)
	groups := make([]Group, 0, len(clips)/p)

	for i, c := range clips {
		if c.SampleID == "" {
			return nil, fmt.Errorf("%w: clip %d has no sample id", ErrShapeMismatch, i)
		}
		gi, ok := index[c.SampleID]
		if !ok {
			gi = len(groups)
			index[c.SampleID] = gi
			groups = append(groups, Group{SampleID: c.SampleID, Label: c.Label})
			counts = append(counts, 0)
		}
		g := &groups[gi]
		if c.Label != g.Label {
			return nil, fmt.Errorf("%w: sample %q: clip %d has label %d, group label is %d",
				ErrInconsistentGroupLabel, c.SampleID, i, c.Label, g.Label)
		}
		if err := accumulate(g, c.Logits, gi); err != nil {
			return nil, err
		}
		counts[gi]++
	}

	for gi, n := range counts {
		if n != p {
			return nil, fmt.Errorf("%w: sample %q has %d clips, want %d",
				ErrShapeMismatch, groups[gi].SampleID, n, p)
		}
	}
	return groups, nil
}

// #endregion group-by-key

// #region helpers
// CheckBatch verifies that n clips split evenly into groups of p.
func CheckBatch(n, p int) error {
	if p < 1 {
		return fmt.Errorf("%w: clips per sample must be >= 1, got %d", ErrShapeMismatch, p)
	}
	if n%p != 0 {
		return fmt.Errorf("%w: batch of %d clips is not a multiple of %d clips per sample", ErrShapeMismatch, n, p)
	}
	return nil
}

// accumulate adds one clip vector into the group sum in float64.
func accumulate(g *Group, v []float32, sample int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: sample %d: empty score vector", ErrShapeMismatch, sample)
	}
	if g.Scores == nil {
		g.Scores = make([]float64, len(v))
	}
	if len(v) != len(g.Scores) {
		return fmt.Errorf("%w: sample %d: score vector has %d classes, want %d",
			ErrShapeMismatch, sample, len(v), len(g.Scores))
	}
	for i, x := range v {
		g.Scores[i] += float64(x)
	}
	return nil
}

// #endregion helpers
