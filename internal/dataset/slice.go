package dataset

import (
	"context"
	"io"
)

// SliceSource serves clips already held in memory.
type SliceSource struct {
	clips     []Clip
	batchSize int
	pos       int
	index     int
}

// NewSliceSource cuts clips into batches of batchSize; the last batch may
// be shorter.
func NewSliceSource(clips []Clip, batchSize int) *SliceSource {
	if batchSize < 1 {
		batchSize = 1
	}
	return &SliceSource{clips: clips, batchSize: batchSize}
}

func (s *SliceSource) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.pos >= len(s.clips) {
		return Batch{}, io.EOF
	}
	end := min(s.pos+s.batchSize, len(s.clips))
	b := Batch{Index: s.index, Clips: s.clips[s.pos:end]}
	s.pos = end
	s.index++
	return b, nil
}
