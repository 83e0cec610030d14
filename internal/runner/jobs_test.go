package runner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jojodayolo/testforge/internal/model"
	"github.com/Jojodayolo/testforge/internal/urlcodec"
)

func TestProcess_Crawl(t *testing.T) {
	srv := newSite(t)
	r, err := New(testConfig(t))
	require.NoError(t, err)

	job := model.NewJob("job-1", model.JobCrawl, srv.URL+"/")
	out, err := r.Process(context.Background(), &job)
	require.NoError(t, err)

	var sum CrawlSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, CrawlSummary{Pages: 2, Failures: 1}, sum)
}

func TestProcess_Generate(t *testing.T) {
	cfg := testConfig(t)
	r, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Pages().Save(urlcodec.Encode("http://localhost:8080/cart"), []byte("<title>Cart</title>")))
	writeRequirement(t, cfg, "http://localhost:8080/cart", "cart reqs")
	writeRequirement(t, cfg, "http://other.test/x/y/z", "unmatched")

	job := model.NewJob("job-2", model.JobGenerate, "")
	out, err := r.Process(context.Background(), &job)
	require.NoError(t, err)

	var sum GenerateSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, GenerateSummary{Requirements: 2, Combined: 1, Unmatched: 1, Succeeded: 1}, sum)
}

func TestProcess_Errors(t *testing.T) {
	r, err := New(testConfig(t))
	require.NoError(t, err)

	bad := model.NewJob("job-3", model.JobCrawl, "not a url")
	_, err = r.Process(context.Background(), &bad)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "crawl", se.Stage)

	unknown := model.NewJob("job-4", "index", "")
	_, err = r.Process(context.Background(), &unknown)
	assert.ErrorContains(t, err, "unknown job kind")
}
