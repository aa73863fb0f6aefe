package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danielpatrickdp/clipeval/internal/eval"
	"github.com/danielpatrickdp/clipeval/internal/ranking"
	"github.com/danielpatrickdp/clipeval/internal/scorer"
	"github.com/danielpatrickdp/clipeval/internal/views"
)

// #region config-types
// Config is the full evaluation configuration as read from TOML.
type Config struct {
	Eval   EvalSection   `toml:"eval" json:"eval"`
	Data   DataSection   `toml:"data" json:"data"`
	Scorer ScorerSection `toml:"scorer" json:"scorer"`
	Store  StoreSection  `toml:"store" json:"store"`
}

// EvalSection holds the parameters of the metric engine.
type EvalSection struct {
	PerSample  int    `toml:"per_sample" json:"per_sample"`
	BatchSize  int    `toml:"batch_size" json:"batch_size"`
	TopK       int    `toml:"top_k" json:"top_k"`
	TopKPolicy string `toml:"top_k_policy" json:"top_k_policy"`
	Grouping   string `toml:"grouping" json:"grouping"`
}

// DataSection locates the clip shards.
type DataSection struct {
	Shards   []string `toml:"shards" json:"shards"`
	Prefetch int      `toml:"prefetch" json:"prefetch"`
}

// ScorerSection points at the inference service.
type ScorerSection struct {
	Addr       string   `toml:"addr" json:"addr"`
	Timeout    Duration `toml:"timeout" json:"timeout"`
	MaxRetries int      `toml:"max_retries" json:"max_retries"`
	Backoff    Duration `toml:"backoff" json:"backoff"`
}

// StoreSection is the SQLite run store.
type StoreSection struct {
	Path string `toml:"path" json:"path"`
}

// Duration is a time.Duration written as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// #endregion config-types

// #region defaults
// DefaultConfig is the Kinetics validation setup: 4 clips per
// sample, batches of 64 clips, Top-5.
func DefaultConfig() Config {
	ev := eval.DefaultEvalConfig()
	rp := scorer.DefaultRetryPolicy()
	return Config{
		Eval: EvalSection{
			PerSample:  ev.PerSample,
			BatchSize:  64,
			TopK:       ev.TopK,
			TopKPolicy: string(ev.Policy),
			Grouping:   string(ev.Grouping),
		},
		Data: DataSection{
			Prefetch: 4,
		},
		Scorer: ScorerSection{
			Addr:       envOr("SCORER_ADDR", "localhost:50051"),
			Timeout:    Duration{rp.Timeout},
			MaxRetries: rp.MaxRetries,
			Backoff:    Duration{rp.Backoff},
		},
		Store: StoreSection{
			Path: envOr("CLIPEVAL_DB", "clipeval.db"),
		},
	}
}

// #endregion defaults

// #region load
// Load reads a TOML file over DefaultConfig. Keys absent from the file keep
// their defaults; an empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown keys %v", path, undecoded)
	}
	if meta.IsDefined("data", "shards") && len(cfg.Data.Shards) == 0 {
		return Config{}, fmt.Errorf("%s: [data].shards is empty", path)
	}
	return cfg, nil
}

// #endregion load

// #region validate
// Validate checks the configuration before any batch is read. A batch size
// that P does not divide is a shape mismatch.
func (c Config) Validate() error {
	if c.Eval.PerSample < 1 {
		return fmt.Errorf("%w: per_sample must be >= 1, got %d", views.ErrShapeMismatch, c.Eval.PerSample)
	}
	if c.Eval.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", c.Eval.BatchSize)
	}
	if err := views.CheckBatch(c.Eval.BatchSize, c.Eval.PerSample); err != nil {
		return err
	}
	if c.Eval.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", c.Eval.TopK)
	}
	if _, err := ranking.ParsePolicy(c.Eval.TopKPolicy); err != nil {
		return err
	}
	if _, err := eval.ParseGrouping(c.Eval.Grouping); err != nil {
		return err
	}
	if c.Scorer.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.Scorer.MaxRetries)
	}
	return nil
}

// EvalConfig returns the engine configuration.
func (c Config) EvalConfig() eval.EvalConfig {
	policy, _ := ranking.ParsePolicy(c.Eval.TopKPolicy)
	grouping, _ := eval.ParseGrouping(c.Eval.Grouping)
	return eval.EvalConfig{
		PerSample: c.Eval.PerSample,
		TopK:      c.Eval.TopK,
		Policy:    policy,
		Grouping:  grouping,
	}
}

// RetryPolicy returns the scorer retry policy.
func (c Config) RetryPolicy() scorer.RetryPolicy {
	return scorer.RetryPolicy{
		MaxRetries: c.Scorer.MaxRetries,
		Backoff:    c.Scorer.Backoff.Duration,
		Timeout:    c.Scorer.Timeout.Duration,
	}
}

// #endregion validate

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
