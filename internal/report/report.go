// Package report renders crawl, combine and generation summaries for the
// terminal.
package report

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Jojodayolo/testforge/internal/crawler"
	"github.com/Jojodayolo/testforge/internal/engine"
	"github.com/Jojodayolo/testforge/internal/model"
)

// Crawl prints one row per visited URL and a count line.
func Crawl(w io.Writer, res *crawler.Result) {
	if res == nil {
		return
	}
	failed := make(map[string]error, len(res.Failures))
	for _, f := range res.Failures {
		failed[f.URL] = f.Err
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"URL", "Result", "Detail"})
	for _, u := range res.Visited {
		if err, ok := failed[u]; ok {
			t.AppendRow(table.Row{u, "failed", failureKind(err)})
			continue
		}
		t.AppendRow(table.Row{u, "stored", ""})
	}
	t.Render()

	statusLine(w, "pages", len(res.Pages), res.Skipped, len(res.Failures))
}

// Combine prints the matched artifacts and the unmatched requirements.
func Combine(w io.Writer, artifacts []model.CombinedArtifact, misses []*model.MatchNotFoundError) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Requirement", "Page", "Score", "Artifact"})
	for _, a := range artifacts {
		t.AppendRow(table.Row{a.RequirementName, a.PageName, strconv.FormatFloat(a.Score, 'f', 2, 64), a.Name})
	}
	for _, m := range misses {
		t.AppendRow(table.Row{m.Requirement, "-", strconv.FormatFloat(m.BestScore, 'f', 2, 64), "no match"})
	}
	t.Render()

	statusLine(w, "combined", len(artifacts), 0, len(misses))
}

// Generate prints one row per generated artifact and a count line.
func Generate(w io.Writer, sum *engine.BatchSummary) {
	if sum == nil {
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Artifact", "Status", "Turns", "Output"})
	for _, g := range sum.Generations {
		out := g.OutputPath
		if g.Status != model.GenerationSucceeded && g.ErrorInfo != nil {
			out = *g.ErrorInfo
		}
		t.AppendRow(table.Row{g.ArtifactName, g.Status, g.TurnCount, out})
	}
	t.Render()

	statusLine(w, "generated", sum.Succeeded, sum.Skipped, sum.Failed)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// statusLine prints the success, skip and failure counts in colour.
func statusLine(w io.Writer, label string, ok, skipped, failed int) {
	fmt.Fprintf(w, "%s  %s  %s\n",
		color.New(color.FgGreen).Sprintf("✓ %d %s", ok, label),
		color.New(color.FgYellow).Sprintf("↷ %d skipped", skipped),
		color.New(color.FgRed).Sprintf("✗ %d failed", failed),
	)
}

func failureKind(err error) string {
	var (
		fe *model.FetchError
		rl *model.RateLimitExhaustedError
		ve *model.ValidationError
	)
	switch {
	case errors.As(err, &rl):
		return fmt.Sprintf("rate limited after %d attempts", rl.Attempts)
	case errors.As(err, &fe) && fe.StatusCode != 0:
		return "HTTP " + strconv.Itoa(fe.StatusCode)
	case errors.As(err, &ve):
		return ve.Reason
	default:
		return err.Error()
	}
}
