// Package runner wires configuration to the crawl, combine and generate
// stages so the CLI and the background worker drive them the same way.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Jojodayolo/testforge/internal/config"
	"github.com/Jojodayolo/testforge/internal/correlate"
	"github.com/Jojodayolo/testforge/internal/crawler"
	"github.com/Jojodayolo/testforge/internal/engine"
	"github.com/Jojodayolo/testforge/internal/metrics"
	"github.com/Jojodayolo/testforge/internal/model"
	"github.com/Jojodayolo/testforge/internal/pagestore"
	"github.com/Jojodayolo/testforge/internal/store"
	"github.com/Jojodayolo/testforge/internal/urlcodec"
)

// Runner executes the stages against one working directory.
type Runner struct {
	cfg       config.Config
	pages     *pagestore.Store
	store     *store.Store
	metrics   *metrics.Metrics
	fetcher   crawler.Fetcher
	backend   engine.Backend
	manager   *engine.Manager
	overwrite bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore records pages, sessions, generations and identities in s.
func WithStore(s *store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithMetrics records crawl and session counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// WithBackend replaces the backend selected from configuration.
func WithBackend(b engine.Backend) Option {
	return func(r *Runner) { r.backend = b }
}

// WithOverwrite regenerates test files that already exist.
func WithOverwrite(overwrite bool) Option {
	return func(r *Runner) { r.overwrite = overwrite }
}

// New creates a Runner for cfg.
func New(cfg config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}

	pages, err := pagestore.New(cfg.PagesDir())
	if err != nil {
		return nil, err
	}
	r.pages = pages

	if r.fetcher == nil {
		r.fetcher = crawler.NewHTTPFetcher(
			crawler.WithTimeout(cfg.HTTPTimeout),
			crawler.WithRateLimit(cfg.CrawlRateLimit),
		)
	}
	if r.backend == nil {
		if r.backend, err = NewBackend(cfg); err != nil {
			return nil, err
		}
	}

	mopts, err := managerOptions(cfg)
	if err != nil {
		return nil, err
	}
	extra := []engine.ManagerOption{engine.WithManagerMetrics(r.metrics)}
	if r.store != nil {
		extra = append(extra, engine.WithSessionRecorder(r.store))
		// Chat backends keep personas in memory, so only remote identities
		// outlive the process.
		if _, remote := r.backend.(*engine.AssistantsBackend); remote {
			extra = append(extra, engine.WithIdentityStore(r.store))
		}
	}
	r.manager = engine.NewManager(r.backend, mopts, extra...)
	return r, nil
}

// Pages returns the page store.
func (r *Runner) Pages() *pagestore.Store { return r.pages }

// Manager returns the session manager.
func (r *Runner) Manager() *engine.Manager { return r.manager }

// NewBackend selects the generation backend named by cfg.LLMProvider. The
// stub backend is used when the provider has no credentials.
func NewBackend(cfg config.Config) (engine.Backend, error) {
	if cfg.UseStubs() {
		if cfg.LLMProvider != config.ProviderStub {
			slog.Warn("no credentials for provider, using stub backend", "provider", cfg.LLMProvider)
		}
		return engine.NewStubBackend(), nil
	}

	openai := func(key, baseURL, model string) *engine.OpenAIClient {
		return engine.NewOpenAIClient(key,
			engine.WithBaseURL(baseURL),
			engine.WithModel(model),
			engine.WithTimeout(cfg.HTTPTimeout),
		)
	}

	switch cfg.LLMProvider {
	case config.ProviderAssistants:
		return engine.NewAssistantsBackend(openai(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)), nil
	case config.ProviderOpenAI:
		return engine.NewChatBackend(config.ProviderOpenAI, openai(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)), nil
	case config.ProviderDeepSeek:
		return engine.NewChatBackend(config.ProviderDeepSeek, openai(cfg.DeepSeekKey, cfg.DeepSeekBaseURL, cfg.DeepSeekModel)), nil
	case config.ProviderClaude:
		return engine.NewChatBackend(config.ProviderClaude,
			engine.NewClaudeClient(cfg.AnthropicKey, engine.WithClaudeModel(cfg.AnthropicModel))), nil
	case config.ProviderGemini:
		return engine.NewChatBackend(config.ProviderGemini,
			engine.NewGeminiClient(cfg.GeminiKey, engine.WithGeminiModel(cfg.GeminiModel))), nil
	case config.ProviderOllama:
		return engine.NewChatBackend(config.ProviderOllama,
			engine.NewOllamaClient(cfg.OllamaURL, engine.WithOllamaModel(cfg.OllamaModel))), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

func managerOptions(cfg config.Config) (engine.ManagerOptions, error) {
	opts := engine.DefaultManagerOptions()
	if cfg.SessionPollInterval > 0 {
		opts.PollInterval = cfg.SessionPollInterval
	}
	opts.MaxTurns = cfg.SessionMaxTurns
	opts.RunTimeout = cfg.SessionRunTimeout

	prompt, err := engine.LoadPrompt(cfg.PromptFile, engine.DefaultPrompt)
	if err != nil {
		return opts, err
	}
	opts.Prompt = prompt
	if cfg.ContinuePrompt != "" {
		opts.ContinuePrompt = cfg.ContinuePrompt
	}

	for _, path := range cfg.SharedFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return opts, fmt.Errorf("read shared file: %w", err)
		}
		opts.Shared = append(opts.Shared, engine.SharedArtifact{Name: filepath.Base(path), Content: data})
	}
	return opts, nil
}

// Crawl harvests the site at startURL into the page store.
func (r *Runner) Crawl(ctx context.Context, startURL string) (*crawler.Result, error) {
	opts := []crawler.Option{
		crawler.WithOptions(crawler.Options{
			BaseDelay:   r.cfg.CrawlBaseDelay,
			MaxAttempts: r.cfg.CrawlMaxAttempts,
			Politeness:  r.cfg.CrawlPoliteness,
			MaxPages:    r.cfg.CrawlMaxPages,
		}),
		crawler.WithMetrics(r.metrics),
	}
	if r.store != nil {
		opts = append(opts, crawler.WithRecordSink(r.store))
	}
	return crawler.New(r.fetcher, r.pages, opts...).Crawl(ctx, startURL)
}

// CombineResult is the outcome of correlating requirements with pages.
type CombineResult struct {
	Requirements int
	Artifacts    []model.CombinedArtifact
	Misses       []*model.MatchNotFoundError
}

// Combine pairs every requirement artifact with its closest stored page and
// writes the combined artifacts.
func (r *Runner) Combine(ctx context.Context) (*CombineResult, error) {
	reqs, err := correlate.LoadRequirements(r.cfg.RequirementsDir())
	if err != nil {
		return nil, err
	}
	sources, err := r.pageSources(ctx)
	if err != nil {
		return nil, err
	}
	example, err := r.example()
	if err != nil {
		return nil, err
	}

	artifacts, misses := correlate.Combine(reqs, sources, example, r.cfg.MatchCutoff)
	for _, m := range misses {
		slog.Warn("requirement has no matching page", "artifact", m.Requirement, "best_score", m.BestScore)
	}
	if err := correlate.WriteArtifacts(r.cfg.CombinedDir(), artifacts); err != nil {
		return nil, err
	}

	slog.Info("combine finished", "requirements", len(reqs), "combined", len(artifacts), "unmatched", len(misses))
	return &CombineResult{Requirements: len(reqs), Artifacts: artifacts, Misses: misses}, nil
}

// pageSources loads every stored page, as raw HTML or as readable text.
func (r *Runner) pageSources(ctx context.Context) ([]model.PageSource, error) {
	names, err := r.pages.List()
	if err != nil {
		return nil, err
	}
	out := make([]model.PageSource, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := r.pages.Load(name)
		if err != nil {
			return nil, err
		}
		content := string(data)
		if r.cfg.PageContent == config.PageContentReadable {
			text, err := crawler.Readable(data, urlcodec.Decode(name))
			if err != nil {
				slog.Warn("readable extraction failed, using raw html", "artifact", name, "error", err)
			} else {
				content = text
			}
		}
		out = append(out, model.PageSource{Name: name, Content: content})
	}
	return out, nil
}

// example returns the worked example test. A missing file yields an empty
// template section.
func (r *Runner) example() (string, error) {
	if r.cfg.ExampleTestFile == "" {
		return "", nil
	}
	path := r.cfg.ExampleTestFile
	if !filepath.IsAbs(path) {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = filepath.Join(r.cfg.WorkDir, path)
		}
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("example test file not found", "path", r.cfg.ExampleTestFile)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read example test: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// GenerateAll generates tests for every combined artifact in the work dir.
func (r *Runner) GenerateAll(ctx context.Context, jobID *string) (*engine.BatchSummary, error) {
	artifacts, err := correlate.LoadArtifacts(r.cfg.CombinedDir())
	if err != nil {
		return nil, err
	}
	return r.Generate(ctx, artifacts, jobID)
}

// Generate runs a session for every artifact and writes the test files.
func (r *Runner) Generate(ctx context.Context, artifacts []model.CombinedArtifact, jobID *string) (*engine.BatchSummary, error) {
	opts := []engine.PipelineOption{engine.WithOverwrite(r.overwrite)}
	if r.store != nil {
		opts = append(opts, engine.WithGenerationStore(r.store))
	}
	return engine.NewPipeline(r.manager, r.cfg.TestsDir(), opts...).Run(ctx, artifacts, jobID)
}

// RunSummary is the outcome of a full crawl → combine → generate run.
type RunSummary struct {
	Crawl    *crawler.Result
	Combine  *CombineResult
	Generate *engine.BatchSummary
}

// Run crawls startURL, combines and generates. An empty startURL skips the
// crawl and works from the pages already stored.
func (r *Runner) Run(ctx context.Context, startURL string, jobID *string) (*RunSummary, error) {
	sum := &RunSummary{}
	if startURL != "" {
		res, err := r.Crawl(ctx, startURL)
		sum.Crawl = res
		if err != nil {
			return sum, &StageError{Stage: "crawl", Err: err}
		}
	}

	comb, err := r.Combine(ctx)
	if err != nil {
		return sum, &StageError{Stage: "combine", Err: err}
	}
	sum.Combine = comb

	gen, err := r.Generate(ctx, comb.Artifacts, jobID)
	sum.Generate = gen
	if err != nil {
		return sum, &StageError{Stage: "generate", Err: err}
	}
	return sum, nil
}

// StageError names the stage a run failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// StepName returns the failed stage.
func (e *StageError) StepName() string { return e.Stage }
