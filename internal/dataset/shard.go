package dataset

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"
)

// #region record
// clipRecord is the on-disk form of a Clip inside a shard file. A shard is
// a plain stream of msgpack-encoded records.
type clipRecord struct {
	SampleID string    `msgpack:"sample_id"`
	Label    int32     `msgpack:"label"`
	Shape    []int32   `msgpack:"shape"`
	Data     []float32 `msgpack:"data"`
}

func toRecord(c Clip) (clipRecord, error) {
	label, err := safecast.Conv[int32](c.Label)
	if err != nil {
		return clipRecord{}, fmt.Errorf("label %d: %w", c.Label, err)
	}
	shape := make([]int32, len(c.Shape))
	for i, d := range c.Shape {
		if shape[i], err = safecast.Conv[int32](d); err != nil {
			return clipRecord{}, fmt.Errorf("shape dim %d: %w", i, err)
		}
	}
	return clipRecord{SampleID: c.SampleID, Label: label, Shape: shape, Data: c.Data}, nil
}

func (r clipRecord) toClip() Clip {
	shape := make([]int, len(r.Shape))
	for i, d := range r.Shape {
		shape[i] = int(d)
	}
	return Clip{SampleID: r.SampleID, Label: int(r.Label), Shape: shape, Data: r.Data}
}

// #endregion record

// #region writer
// ShardWriter appends clips to a shard file.
type ShardWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *msgpack.Encoder
}

// CreateShard creates (or truncates) a shard file at path.
func CreateShard(path string) (*ShardWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create shard dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create shard %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	return &ShardWriter{f: f, buf: buf, enc: msgpack.NewEncoder(buf)}, nil
}

// Write appends one clip.
func (w *ShardWriter) Write(c Clip) error {
	rec, err := toRecord(c)
	if err != nil {
		return fmt.Errorf("encode clip %q: %w", c.SampleID, err)
	}
	if err := w.enc.Encode(&rec); err != nil {
		return fmt.Errorf("encode clip %q: %w", c.SampleID, err)
	}
	return nil
}

// Close flushes and closes the shard.
func (w *ShardWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("flush shard: %w", err)
	}
	return w.f.Close()
}

// #endregion writer

// #region source
// ShardSource reads clips from shard files in order and cuts them into
// batches of batchSize clips. Batches may span shard boundaries.
type ShardSource struct {
	paths     []string
	batchSize int

	cur   *os.File
	dec   *msgpack.Decoder
	next  int
	index int
}

// OpenShards resolves glob patterns into a sorted list of shard files.
func OpenShards(patterns []string, batchSize int) (*ShardSource, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", batchSize)
	}
	var paths []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		slices.Sort(matches)
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no shard files match %v", patterns)
	}
	return &ShardSource{paths: paths, batchSize: batchSize}, nil
}

// Paths returns the resolved shard files.
func (s *ShardSource) Paths() []string {
	return s.paths
}

func (s *ShardSource) Next(ctx context.Context) (Batch, error) {
	clips := make([]Clip, 0, s.batchSize)
	for len(clips) < s.batchSize {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}
		c, err := s.readClip()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Batch{}, err
		}
		clips = append(clips, c)
	}
	if len(clips) == 0 {
		return Batch{}, io.EOF
	}
	b := Batch{Index: s.index, Clips: clips}
	s.index++
	return b, nil
}

// readClip decodes the next record, moving to the next shard at EOF.
func (s *ShardSource) readClip() (Clip, error) {
	for {
		if s.dec == nil {
			if s.next >= len(s.paths) {
				return Clip{}, io.EOF
			}
			f, err := os.Open(s.paths[s.next])
			if err != nil {
				return Clip{}, fmt.Errorf("open shard: %w", err)
			}
			s.cur = f
			s.dec = msgpack.NewDecoder(bufio.NewReader(f))
			s.next++
		}

		var rec clipRecord
		err := s.dec.Decode(&rec)
		if err == nil {
			return rec.toClip(), nil
		}
		path := s.cur.Name()
		s.closeCurrent()
		if !errors.Is(err, io.EOF) {
			return Clip{}, fmt.Errorf("decode shard %s: %w", path, err)
		}
	}
}

func (s *ShardSource) closeCurrent() {
	if s.cur != nil {
		s.cur.Close()
	}
	s.cur = nil
	s.dec = nil
}

// Close releases the open shard, if any.
func (s *ShardSource) Close() error {
	s.closeCurrent()
	return nil
}

// #endregion source
