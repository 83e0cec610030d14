package report

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/Jojodayolo/testforge/internal/crawler"
	"github.com/Jojodayolo/testforge/internal/engine"
	"github.com/Jojodayolo/testforge/internal/model"
)

func init() {
	color.NoColor = true
}

func TestCrawl(t *testing.T) {
	var buf bytes.Buffer
	Crawl(&buf, &crawler.Result{
		Visited: []string{"http://a.test/", "http://a.test/missing", "http://a.test/busy", "http://a.test/empty"},
		Pages:   []model.PageRecord{{URL: "http://a.test/"}},
		Failures: []crawler.Failure{
			{URL: "http://a.test/missing", Err: &model.FetchError{URL: "http://a.test/missing", StatusCode: 404}},
			{URL: "http://a.test/busy", Err: &model.RateLimitExhaustedError{URL: "http://a.test/busy", Attempts: 5}},
			{URL: "http://a.test/empty", Err: &model.ValidationError{URL: "http://a.test/empty", Reason: "missing title"}},
		},
		Skipped: 2,
	})

	out := buf.String()
	assert.Contains(t, out, "HTTP 404")
	assert.Contains(t, out, "rate limited after 5 attempts")
	assert.Contains(t, out, "missing title")
	assert.Contains(t, out, "stored")
	assert.Contains(t, out, "✓ 1 pages  ↷ 2 skipped  ✗ 3 failed")
}

func TestCombine(t *testing.T) {
	var buf bytes.Buffer
	Combine(&buf,
		[]model.CombinedArtifact{{Name: "cart_combined.txt", RequirementName: "http_shop_cart.txt", PageName: "http_shop_cart.html", Score: 1}},
		[]*model.MatchNotFoundError{{Requirement: "http_shop_zzz.txt", BestScore: 0.31}},
	)

	out := buf.String()
	assert.Contains(t, out, "cart_combined.txt")
	assert.Contains(t, out, "1.00")
	assert.Contains(t, out, "no match")
	assert.Contains(t, out, "0.31")
	assert.Contains(t, out, "✓ 1 combined  ↷ 0 skipped  ✗ 1 failed")
}

func TestGenerate(t *testing.T) {
	info := model.ErrorInfo{FailedStep: "upload", Message: "boom"}.ToJSON()
	var buf bytes.Buffer
	Generate(&buf, &engine.BatchSummary{
		Succeeded: 1,
		Failed:    1,
		Skipped:   3,
		Generations: []model.Generation{
			{ArtifactName: "a_combined.txt", Status: model.GenerationSucceeded, TurnCount: 2, OutputPath: "tests/test_a.py"},
			{ArtifactName: "b_combined.txt", Status: model.GenerationFailed, ErrorInfo: &info},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "tests/test_a.py")
	assert.Contains(t, out, `"failed_step":"upload"`)
	assert.Contains(t, out, "✓ 1 generated  ↷ 3 skipped  ✗ 1 failed")
}

func TestNilSummaries(t *testing.T) {
	var buf bytes.Buffer
	Crawl(&buf, nil)
	Generate(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestFailureKind_Other(t *testing.T) {
	assert.Equal(t, "boom", failureKind(errors.New("boom")))
}
