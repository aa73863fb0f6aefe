package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/danielpatrickdp/clipeval/internal/config"
	"github.com/danielpatrickdp/clipeval/internal/runstore"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded evaluation runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	f := runsCmd.Flags()
	f.String("db", "", "run store path (default from CLIPEVAL_DB or clipeval.db)")
	f.Int("last", 20, "show N most recent runs")
	f.String("run", "", "show one run with its batch log")
	f.Bool("json", false, "output as JSON instead of a table")
}

// #region runs
func runRuns(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	dbPath, _ := f.GetString("db")
	if dbPath == "" {
		dbPath = config.DefaultConfig().Store.Path
	}
	last, _ := f.GetInt("last")
	runID, _ := f.GetString("run")
	jsonOut, _ := f.GetBool("json")

	store, err := runstore.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer store.Close()

	if runID != "" {
		return showRun(store, runID, jsonOut)
	}

	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	t := newTable("RUN", "STATUS", "CREATED", "SAMPLES", "LOSS", "TOP 1", "TOP 5", "REASON")
	for _, r := range runs {
		samples, loss, top1, top5 := "-", "-", "-", "-"
		if r.Report != nil {
			samples = formatCount(r.Report.Samples)
			loss = strconv.FormatFloat(r.Report.MeanLoss, 'f', 4, 64)
			top1 = strconv.FormatFloat(r.Report.Top1, 'f', 4, 64)
			top5 = strconv.FormatFloat(r.Report.Top5, 'f', 4, 64)
		}
		t.Row(shortID(r.RunID), r.Status, r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			samples, loss, top1, top5, truncate(r.Reason, 48))
	}
	fmt.Println(t)
	return nil
}

func showRun(store *runstore.Store, runID string, jsonOut bool) error {
	rec, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	batches, err := store.BatchLog(runID)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(struct {
			Run     runstore.RunRecord  `json:"run"`
			Batches []runstore.BatchRow `json:"batches"`
		}{rec, batches})
	}

	fmt.Printf("run:     %s\n", rec.RunID)
	fmt.Printf("status:  %s\n", rec.Status)
	fmt.Printf("config:  %s\n", rec.ConfigJSON)
	if rec.Report != nil {
		fmt.Printf("result:  %s\n", summaryLine(*rec.Report))
	}
	if rec.Reason != "" {
		fmt.Printf("reason:  %s\n", failColor.Sprint(rec.Reason))
	}
	if len(batches) == 0 {
		return nil
	}

	t := newTable("BATCH", "CLIPS", "SAMPLES", "TOP1 HITS", "TOPK HITS", "K", "LOSS", "SOURCE", "CONFIDENCE", "SAMPLE NLL")
	for _, b := range batches {
		t.Row(strconv.Itoa(b.BatchIndex), strconv.Itoa(b.Clips), strconv.Itoa(b.Samples),
			strconv.Itoa(b.Top1Hits), strconv.Itoa(b.TopKHits), strconv.Itoa(b.K),
			strconv.FormatFloat(b.Loss, 'f', 4, 64), b.LossSource,
			strconv.FormatFloat(b.MeanConfidence, 'f', 4, 64),
			strconv.FormatFloat(b.SampleNLL, 'f', 4, 64))
	}
	fmt.Println(t)
	return nil
}

// #endregion runs

// #region helpers
var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return headerStyle
			}
			return cellStyle
		})
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// #endregion helpers
