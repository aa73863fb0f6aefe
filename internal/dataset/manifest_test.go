package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTensor(t *testing.T, path string, v []float32) {
	t.Helper()
	if err := os.WriteFile(path, EncodeTensor(v), 0o644); err != nil {
		t.Fatalf("write tensor: %v", err)
	}
}

func TestPackManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeTensor(t, filepath.Join(dir, "a0.f32"), []float32{1, 2, 3, 4})
	writeTensor(t, filepath.Join(dir, "a1.f32"), []float32{5, 6, 7, 8})
	manifest := `{"sample_id":"a","label":7,"shape":[2,2],"tensor":"a0.f32"}
{"sample_id":"a","label":7,"shape":[2,2],"tensor":"a1.f32"}
`
	mpath := filepath.Join(dir, "clips.jsonl")
	if err := os.WriteFile(mpath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	out := filepath.Join(dir, "shards", "shard-000.msgpack")
	n, err := PackManifest(mpath, out)
	if err != nil {
		t.Fatalf("PackManifest: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 clips, got %d", n)
	}

	src, err := OpenShards([]string{out}, 2)
	if err != nil {
		t.Fatalf("OpenShards: %v", err)
	}
	defer src.Close()
	batches := drain(t, src)
	if len(batches) != 1 || len(batches[0].Clips) != 2 {
		t.Fatalf("unexpected batches %+v", batches)
	}
	c := batches[0].Clips[1]
	if c.SampleID != "a" || c.Label != 7 || c.Data[3] != 8 {
		t.Errorf("unexpected clip %+v", c)
	}
}

func TestPackManifest_ShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	writeTensor(t, filepath.Join(dir, "a0.f32"), []float32{1, 2, 3})
	mpath := filepath.Join(dir, "clips.jsonl")
	os.WriteFile(mpath, []byte(`{"sample_id":"a","label":0,"shape":[2,2],"tensor":"a0.f32"}`), 0o644)

	_, err := PackManifest(mpath, filepath.Join(dir, "out.msgpack"))
	if err == nil || !strings.Contains(err.Error(), "holds 4 values") {
		t.Fatalf("expected shape error, got %v", err)
	}
}

func TestPackManifest_MisalignedTensor(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "bad.f32"), []byte{1, 2, 3}, 0o644)
	mpath := filepath.Join(dir, "clips.jsonl")
	os.WriteFile(mpath, []byte(`{"sample_id":"a","label":0,"tensor":"bad.f32"}`), 0o644)

	if _, err := PackManifest(mpath, filepath.Join(dir, "out.msgpack")); err == nil {
		t.Fatal("expected alignment error")
	}
}
