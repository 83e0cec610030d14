package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Jojodayolo/testforge/internal/model"
)

// CrawlSummary is the stored outcome of a crawl job.
type CrawlSummary struct {
	Pages    int `json:"pages"`
	Failures int `json:"failures"`
	Skipped  int `json:"skipped"`
}

// GenerateSummary is the stored outcome of a generate job.
type GenerateSummary struct {
	Requirements int `json:"requirements"`
	Combined     int `json:"combined"`
	Unmatched    int `json:"unmatched"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
}

// Process runs one background job and returns its JSON summary.
func (r *Runner) Process(ctx context.Context, job *model.Job) (string, error) {
	switch job.Kind {
	case model.JobCrawl:
		res, err := r.Crawl(ctx, job.Target)
		if err != nil {
			return "", &StageError{Stage: "crawl", Err: err}
		}
		return toJSON(CrawlSummary{Pages: len(res.Pages), Failures: len(res.Failures), Skipped: res.Skipped}), nil

	case model.JobGenerate:
		comb, err := r.Combine(ctx)
		if err != nil {
			return "", &StageError{Stage: "combine", Err: err}
		}
		sum := GenerateSummary{
			Requirements: comb.Requirements,
			Combined:     len(comb.Artifacts),
			Unmatched:    len(comb.Misses),
		}
		gen, err := r.Generate(ctx, comb.Artifacts, &job.ID)
		if gen != nil {
			sum.Succeeded, sum.Failed, sum.Skipped = gen.Succeeded, gen.Failed, gen.Skipped
		}
		if err != nil {
			return toJSON(sum), &StageError{Stage: "generate", Err: err}
		}
		return toJSON(sum), nil

	default:
		return "", fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func toJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
