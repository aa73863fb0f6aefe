package main

import (
	"fmt"

	"github.com/danielpatrickdp/clipeval/internal/eval"
	"github.com/danielpatrickdp/clipeval/internal/replay"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run the metric engine on recorded model outputs",
	Long: `replay feeds the logits recorded in a JSON fixture through grouping,
ranking and accumulation, and checks the result against the fixture's
expected report. Exits non-zero on mismatch.`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().String("fixture", "", "path to fixture JSON")
	replayCmd.Flags().Float64("tol", 1e-9, "absolute tolerance for metric comparison")
	replayCmd.MarkFlagRequired("fixture")
}

// #region replay
func runReplay(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("fixture")
	tol, _ := cmd.Flags().GetFloat64("tol")

	f, err := replay.LoadFixture(path)
	if err != nil {
		return err
	}
	cfg, err := f.Config.ToEvalConfig()
	if err != nil {
		return fmt.Errorf("fixture config: %w", err)
	}
	h, err := eval.NewEvalHarness(cfg)
	if err != nil {
		return err
	}
	progress := newProgressReporter(len(f.Batches))
	h.OnBatch(progress.observe)

	if f.Description != "" {
		fmt.Printf("fixture: %s\n", f.Description)
	}
	report, runErr := h.Run(cmd.Context(), replay.NewSource(f), replay.NewScorer(f))
	progress.finish()
	if runErr == nil {
		fmt.Println(summaryLine(report))
	} else {
		fmt.Printf("run failed: %v\n", runErr)
	}

	if err := replay.Check(f, report, runErr, tol); err != nil {
		return fmt.Errorf("fixture %s: %w", path, err)
	}
	fmt.Println(valueColor.Sprint("fixture OK"))
	return nil
}

// #endregion replay
