package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/danielpatrickdp/clipeval/internal/eval"
	"github.com/danielpatrickdp/clipeval/internal/metrics"
	"github.com/fatih/color"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	labelColor = color.New(color.Bold)
	valueColor = color.New(color.FgGreen)
	failColor  = color.New(color.FgRed, color.Bold)

	numbers = message.NewPrinter(language.English)
)

// #region summary
// summaryLine renders "Loss: l, Top 1: a1, Top 5: a5", with
// colors when enabled.
func summaryLine(r metrics.Report) string {
	return fmt.Sprintf("%s %s, %s %s, %s %s",
		labelColor.Sprint("Loss:"), valueColor.Sprint(r.MeanLoss),
		labelColor.Sprint("Top 1:"), valueColor.Sprint(r.Top1),
		labelColor.Sprint("Top 5:"), valueColor.Sprint(r.Top5),
	)
}

func printFailure(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", failColor.Sprint("error:"), err)
}

// #endregion summary

// #region progress
// progressReporter draws a batch progress bar on stderr when it is a
// terminal and the number of batches is known, and an open-ended counter
// when it is not. Off a terminal it prints one line per batch.
type progressReporter struct {
	out     io.Writer
	bar     progress.Model
	spin    spinner.Spinner
	total   int
	tty     bool
	inline  bool
	samples int
	top1    int
}

func newProgressReporter(total int) *progressReporter {
	return &progressReporter{
		out:   os.Stderr,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spin:  spinner.Dot,
		total: total,
		tty:   isTerminal(os.Stderr),
	}
}

func (p *progressReporter) observe(s eval.BatchStats) error {
	p.samples += s.Samples
	p.top1 += s.Top1Hits
	running := float64(p.top1) / float64(max(p.samples, 1))

	if p.tty && p.total > 0 {
		done := float64(s.Index+1) / float64(p.total)
		fmt.Fprintf(p.out, "\rValidating %s %d/%d top1=%.4f", p.bar.ViewAs(done), s.Index+1, p.total, running)
		p.inline = s.Index+1 < p.total
		if !p.inline {
			fmt.Fprintln(p.out)
		}
		return nil
	}
	if p.tty {
		frame := p.spin.Frames[s.Index%len(p.spin.Frames)]
		fmt.Fprintf(p.out, "\r%s Validating batch %s, %s samples, top1=%.4f",
			frame, formatCount(s.Index+1), formatCount(p.samples), running)
		p.inline = true
		return nil
	}
	fmt.Fprintf(p.out, "batch %d: clips=%d samples=%d loss=%.4f (%s) running top1=%.4f\n",
		s.Index, s.Clips, s.Samples, s.Loss, s.LossSource, running)
	return nil
}

// finish ends an inline progress line so later output starts on a fresh line.
func (p *progressReporter) finish() {
	if p.inline {
		fmt.Fprintln(p.out)
		p.inline = false
	}
}

// #endregion progress

// #region helpers
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func formatCount(n int) string {
	return numbers.Sprintf("%d", n)
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// #endregion helpers
