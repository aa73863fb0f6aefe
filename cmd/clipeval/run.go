package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielpatrickdp/clipeval/internal/config"
	"github.com/danielpatrickdp/clipeval/internal/dataset"
	"github.com/danielpatrickdp/clipeval/internal/eval"
	"github.com/danielpatrickdp/clipeval/internal/logging"
	"github.com/danielpatrickdp/clipeval/internal/runstore"
	"github.com/danielpatrickdp/clipeval/internal/scorer"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate the remote model on clip shards",
	Long: `run reads clip shards, scores every batch on the inference service and
prints the final loss and Top-1/Top-5 accuracy. A failing batch aborts the
run without a report.`,
	Args: cobra.NoArgs,
	RunE: runEval,
}

func init() {
	f := runCmd.Flags()
	f.String("config", "", "TOML config file")
	f.Int("per-sample", 0, "clips per sample (overrides config)")
	f.Int("batch-size", 0, "clips per batch (overrides config)")
	f.Int("top-k", 0, "K of the Top-K metric (overrides config)")
	f.String("policy", "", "Top-K policy when there are fewer than K classes: clamp|strict")
	f.String("grouping", "", "sample grouping: auto|key|position")
	f.StringSlice("shards", nil, "shard glob patterns (overrides config)")
	f.String("scorer-addr", "", "inference service address (overrides config)")
	f.String("db", "", "run store path (overrides config)")
	f.Bool("no-store", false, "do not record the run")
	f.Duration("timeout", 0, "abort the whole pass after this long (0 = none)")
}

// #region run
func runEval(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.Data.Shards) == 0 {
		return fmt.Errorf("no shards configured: set [data].shards or --shards")
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	log.Printf("config: %s", cfgJSON)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	harness, err := eval.NewEvalHarness(cfg.EvalConfig())
	if err != nil {
		return err
	}

	var store *runstore.Store
	var run runstore.RunRecord
	if noStore, _ := cmd.Flags().GetBool("no-store"); !noStore {
		store, err = runstore.NewStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer store.Close()

		run, err = store.BeginRun(string(cfgJSON))
		if err != nil {
			return err
		}
		log.Printf("run %s recorded in %s", run.RunID, cfg.Store.Path)
		harness.OnBatch(func(s eval.BatchStats) error {
			return logging.LogBatch(store.DB(), logging.BatchEntry{
				RunID:      run.RunID,
				BatchIndex: s.Index,
				Clips:      s.Clips,
				Samples:    s.Samples,
				Top1Hits:   s.Top1Hits,
				TopKHits:   s.TopKHits,
				Loss:       s.Loss,
				LossSource: s.LossSource,
				K:          s.K,

				MeanConfidence: s.MeanConfidence,
				SampleNLL:      s.SampleNLL,
			})
		})
	}
	progress := newProgressReporter(0)
	harness.OnBatch(progress.observe)

	shards, err := dataset.OpenShards(cfg.Data.Shards, cfg.Eval.BatchSize)
	if err != nil {
		return failRun(store, run, err)
	}
	defer shards.Close()
	log.Printf("%d shard files", len(shards.Paths()))

	src := dataset.Prefetch(ctx, shards, cfg.Data.Prefetch)
	defer src.Close()

	client, err := scorer.NewClient(cfg.Scorer.Addr, cfg.RetryPolicy())
	if err != nil {
		return failRun(store, run, err)
	}
	defer client.Close()

	start := time.Now()
	report, err := harness.Run(ctx, src, client)
	progress.finish()
	if err != nil {
		return failRun(store, run, err)
	}

	if store != nil {
		if err := store.CompleteRun(run.RunID, report); err != nil {
			log.Printf("record run: %v", err)
		}
	}
	log.Printf("%s samples in %s batches, %s", formatCount(report.Samples), formatCount(report.Batches),
		time.Since(start).Round(time.Millisecond))
	fmt.Println(summaryLine(report))
	return nil
}

// failRun marks the recorded run failed and returns err. No metrics are
// printed for a failed run.
func failRun(store *runstore.Store, run runstore.RunRecord, err error) error {
	if store != nil {
		if ferr := store.FailRun(run.RunID, err.Error()); ferr != nil {
			log.Printf("record failure: %v", ferr)
		}
	}
	return err
}

// #endregion run

// #region config
// resolveConfig loads the TOML config and applies explicitly set flags.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()
	path, _ := f.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if f.Changed("per-sample") {
		cfg.Eval.PerSample, _ = f.GetInt("per-sample")
	}
	if f.Changed("batch-size") {
		cfg.Eval.BatchSize, _ = f.GetInt("batch-size")
	}
	if f.Changed("top-k") {
		cfg.Eval.TopK, _ = f.GetInt("top-k")
	}
	if f.Changed("policy") {
		cfg.Eval.TopKPolicy, _ = f.GetString("policy")
	}
	if f.Changed("grouping") {
		cfg.Eval.Grouping, _ = f.GetString("grouping")
	}
	if f.Changed("shards") {
		cfg.Data.Shards, _ = f.GetStringSlice("shards")
	}
	if f.Changed("scorer-addr") {
		cfg.Scorer.Addr, _ = f.GetString("scorer-addr")
	}
	if f.Changed("db") {
		cfg.Store.Path, _ = f.GetString("db")
	}
	return cfg, nil
}

// #endregion config
