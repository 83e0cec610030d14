package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jojodayolo/testforge/internal/config"
	"github.com/Jojodayolo/testforge/internal/engine"
	"github.com/Jojodayolo/testforge/internal/model"
	"github.com/Jojodayolo/testforge/internal/store"
	"github.com/Jojodayolo/testforge/internal/urlcodec"
)

const guideHTML = `<html><head><title>Guide</title></head><body><article>
<h1>Guide</h1>
<p>This guide explains how the checkout works in several steps. It is long enough to count as readable content for the extractor.</p>
<p>Step one is adding an item to the cart. Step two is paying for it with a card or voucher at the till.</p>
<a href="/">Home</a>
</article></body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><head><title>Home</title></head><body><p>Welcome</p><a href="/guide">Guide</a><a href="/broken">Broken</a></body></html>`))
	})
	mux.HandleFunc("/guide", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(guideHTML))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		WorkDir:             t.TempDir(),
		LLMProvider:         config.ProviderStub,
		CrawlMaxAttempts:    1,
		HTTPTimeout:         5 * time.Second,
		SessionPollInterval: time.Millisecond,
		SessionMaxTurns:     5,
		MatchCutoff:         0.6,
		PageContent:         config.PageContentHTML,
		ExampleTestFile:     "exampleTest.txt",
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := store.New(db)
	require.NoError(t, err)
	return s
}

// writeRequirement stores a requirement artifact named after pageURL.
func writeRequirement(t *testing.T, cfg config.Config, pageURL, text string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.RequirementsDir(), 0o755))
	name := strings.TrimSuffix(urlcodec.Encode(pageURL), ".html") + ".txt"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RequirementsDir(), name), []byte(text), 0o644))
	return name
}

func TestRun_EndToEnd(t *testing.T) {
	srv := newSite(t)
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.WorkDir, "exampleTest.txt"), []byte("def test_example(): pass"), 0o644))
	writeRequirement(t, cfg, srv.URL+"/guide", "The guide page explains checkout.")
	writeRequirement(t, cfg, "http://elsewhere.test/zzz/qqq", "No page for this one.")

	st := newTestStore(t)
	r, err := New(cfg, WithStore(st))
	require.NoError(t, err)

	jobID := "job-1"
	require.NoError(t, st.CreateJob(context.Background(), model.NewJob(jobID, model.JobGenerate, srv.URL+"/")))

	sum, err := r.Run(context.Background(), srv.URL+"/", &jobID)
	require.NoError(t, err)

	// Crawl: home and guide accepted, the 404 recorded as a failure.
	assert.Len(t, sum.Crawl.Pages, 2)
	assert.Len(t, sum.Crawl.Failures, 1)
	pages, err := st.ListPages(context.Background())
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	// Combine: one match, one miss.
	require.Len(t, sum.Combine.Artifacts, 1)
	assert.Len(t, sum.Combine.Misses, 1)
	art := sum.Combine.Artifacts[0]
	assert.Equal(t, srv.URL+"/guide", art.TestURL)
	assert.Contains(t, art.Content, "<title>Guide</title>")
	assert.Contains(t, art.Content, "def test_example(): pass")
	_, err = os.Stat(filepath.Join(cfg.CombinedDir(), art.Name))
	assert.NoError(t, err)

	// Generate: the stub writes a Playwright test for the guide URL.
	assert.Equal(t, 1, sum.Generate.Succeeded)
	code, err := os.ReadFile(filepath.Join(cfg.TestsDir(), engine.TestFileName(art.Name)))
	require.NoError(t, err)
	assert.Contains(t, string(code), `page.goto("`+srv.URL+`/guide")`)

	gens, err := st.ListGenerations(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	full, err := st.GetGeneration(context.Background(), gens[0].ID)
	require.NoError(t, err)
	assert.Len(t, full.Turns, 2)

	// A second run stops at the stored start page and skips existing tests.
	sum, err = r.Run(context.Background(), srv.URL+"/", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Crawl.Skipped)
	assert.Empty(t, sum.Crawl.Visited)
	assert.Equal(t, 1, sum.Generate.Skipped)
}

func TestCombine_Readable(t *testing.T) {
	srv := newSite(t)
	cfg := testConfig(t)
	cfg.PageContent = config.PageContentReadable
	writeRequirement(t, cfg, srv.URL+"/guide", "reqs")

	r, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Pages().Save(urlcodec.Encode(srv.URL+"/guide"), []byte(guideHTML)))

	res, err := r.Combine(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 1)
	assert.Contains(t, res.Artifacts[0].Content, "checkout works")
	assert.NotContains(t, res.Artifacts[0].Content, "<p>")
}

func TestGenerateAll_FromCombinedDir(t *testing.T) {
	cfg := testConfig(t)
	r, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Pages().Save(urlcodec.Encode("http://localhost:8080/cart"), []byte("<html><title>Cart</title><body>cart</body></html>")))
	writeRequirement(t, cfg, "http://localhost:8080/cart", "cart reqs")

	_, err = r.Combine(context.Background())
	require.NoError(t, err)

	sum, err := r.GenerateAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	require.Len(t, sum.Generations, 1)
	assert.Equal(t, "http://localhost:8080/cart", sum.Generations[0].TestURL)
}

func TestRun_InvalidStartURL(t *testing.T) {
	r, err := New(testConfig(t))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "ftp://nope", nil)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "crawl", se.StepName())
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"stub when keyless", config.Config{LLMProvider: config.ProviderAssistants}, "stub"},
		{"assistants", config.Config{LLMProvider: config.ProviderAssistants, OpenAIKey: "sk"}, "openai-assistants"},
		{"openai chat", config.Config{LLMProvider: config.ProviderOpenAI, OpenAIKey: "sk"}, "openai"},
		{"deepseek", config.Config{LLMProvider: config.ProviderDeepSeek, DeepSeekKey: "sk"}, "deepseek"},
		{"claude", config.Config{LLMProvider: config.ProviderClaude, AnthropicKey: "sk"}, "claude"},
		{"gemini", config.Config{LLMProvider: config.ProviderGemini, GeminiKey: "k"}, "gemini"},
		{"ollama", config.Config{LLMProvider: config.ProviderOllama, OllamaURL: "http://localhost:11434"}, "ollama"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Name())
		})
	}

	_, err := NewBackend(config.Config{LLMProvider: "mystery", OpenAIKey: "sk"})
	assert.Error(t, err)
}

func TestNew_SharedFilesAndPrompt(t *testing.T) {
	cfg := testConfig(t)
	shared := filepath.Join(cfg.WorkDir, "fixtures.py")
	require.NoError(t, os.WriteFile(shared, []byte("import pytest"), 0o644))
	cfg.SharedFiles = []string{shared}

	_, err := New(cfg)
	require.NoError(t, err)

	cfg.SharedFiles = []string{filepath.Join(cfg.WorkDir, "missing.py")}
	_, err = New(cfg)
	assert.Error(t, err)

	cfg.SharedFiles = nil
	cfg.PromptFile = filepath.Join(cfg.WorkDir, "missing-prompt.txt")
	_, err = New(cfg)
	assert.Error(t, err)
}
