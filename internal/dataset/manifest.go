package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// #region manifest
// ManifestEntry describes one clip to pack: its ground truth plus a raw
// tensor file of little-endian float32 values. Tensor paths are relative to
// the manifest file.
type ManifestEntry struct {
	SampleID string `json:"sample_id"`
	Label    int    `json:"label"`
	Shape    []int  `json:"shape"`
	Tensor   string `json:"tensor"`
}

// PackManifest reads a stream of JSON manifest entries and writes the clips
// they describe to a shard at outPath, in manifest order. It returns the
// number of clips written.
func PackManifest(manifestPath, outPath string) (int, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return 0, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	w, err := CreateShard(outPath)
	if err != nil {
		return 0, err
	}

	base := filepath.Dir(manifestPath)
	dec := json.NewDecoder(f)
	n := 0
	for {
		var e ManifestEntry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			w.Close()
			return n, fmt.Errorf("manifest entry %d: %w", n, err)
		}
		c, err := loadEntry(base, e)
		if err != nil {
			w.Close()
			return n, fmt.Errorf("manifest entry %d: %w", n, err)
		}
		if err := w.Write(c); err != nil {
			w.Close()
			return n, err
		}
		n++
	}
	if err := w.Close(); err != nil {
		return n, err
	}
	return n, nil
}

func loadEntry(base string, e ManifestEntry) (Clip, error) {
	path := e.Tensor
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("read tensor: %w", err)
	}
	data, err := DecodeTensor(raw)
	if err != nil {
		return Clip{}, fmt.Errorf("%s: %w", e.Tensor, err)
	}
	if len(e.Shape) > 0 {
		size := 1
		for _, d := range e.Shape {
			size *= d
		}
		if size != len(data) {
			return Clip{}, fmt.Errorf("%s: shape %v holds %d values, tensor has %d", e.Tensor, e.Shape, size, len(data))
		}
	}
	return Clip{SampleID: e.SampleID, Label: e.Label, Shape: e.Shape, Data: data}, nil
}

// #endregion manifest
