package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/clipeval/internal/eval"
	"github.com/danielpatrickdp/clipeval/internal/ranking"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: recorded
// per-batch model outputs plus the report they must produce.
type Fixture struct {
	Description string         `json:"description"`
	Config      FixtureConfig  `json:"config"`
	Batches     []FixtureBatch `json:"batches"`
	Expected    FixtureExpect  `json:"expected"`
}

// FixtureConfig mirrors eval.EvalConfig with JSON tags.
type FixtureConfig struct {
	PerSample  int    `json:"per_sample"`
	TopK       int    `json:"top_k"`
	TopKPolicy string `json:"top_k_policy"`
	Grouping   string `json:"grouping"`
}

// FixtureClip identifies one clip; its tensor is not recorded.
type FixtureClip struct {
	SampleID string `json:"sample_id"`
	Label    int    `json:"label"`
}

// FixtureBatch is one recorded scorer call.
type FixtureBatch struct {
	Clips  []FixtureClip `json:"clips"`
	Logits [][]float32   `json:"logits"`
	Loss   *float64      `json:"loss,omitempty"`
}

// FixtureExpect is the expected outcome. When Error is set the run must
// fail with that error kind and the metrics are ignored.
type FixtureExpect struct {
	MeanLoss float64 `json:"mean_loss"`
	Top1     float64 `json:"top1_accuracy"`
	Top5     float64 `json:"top5_accuracy"`
	Samples  int     `json:"samples"`
	Error    string  `json:"error,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToEvalConfig converts the fixture config, filling unset fields from
// eval.DefaultEvalConfig.
func (fc *FixtureConfig) ToEvalConfig() (eval.EvalConfig, error) {
	cfg := eval.DefaultEvalConfig()
	if fc.PerSample != 0 {
		cfg.PerSample = fc.PerSample
	}
	if fc.TopK != 0 {
		cfg.TopK = fc.TopK
	}
	policy, err := ranking.ParsePolicy(fc.TopKPolicy)
	if err != nil {
		return eval.EvalConfig{}, err
	}
	cfg.Policy = policy
	grouping, err := eval.ParseGrouping(fc.Grouping)
	if err != nil {
		return eval.EvalConfig{}, err
	}
	cfg.Grouping = grouping
	return cfg, nil
}

// #endregion fixture-loader
