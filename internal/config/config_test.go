package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	content := `# comment line
FOO_TEST_KEY=hello
BAR_TEST_KEY="quoted value"
BAZ_TEST_KEY='single quoted'

EMPTY_LINE_ABOVE=works
`
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	keys := []string{"FOO_TEST_KEY", "BAR_TEST_KEY", "BAZ_TEST_KEY", "EMPTY_LINE_ABOVE"}
	for _, k := range keys {
		os.Unsetenv(k)
	}

	loadEnvFile(envFile)
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})

	tests := []struct {
		key  string
		want string
	}{
		{"FOO_TEST_KEY", "hello"},
		{"BAR_TEST_KEY", "quoted value"},
		{"BAZ_TEST_KEY", "single quoted"},
		{"EMPTY_LINE_ABOVE", "works"},
	}
	for _, tt := range tests {
		if got := os.Getenv(tt.key); got != tt.want {
			t.Errorf("os.Getenv(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLoadEnvFile_RealEnvTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	if err := os.WriteFile(envFile, []byte("PRECEDENCE_TEST=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PRECEDENCE_TEST", "from-env")

	loadEnvFile(envFile)

	if got := os.Getenv("PRECEDENCE_TEST"); got != "from-env" {
		t.Errorf("env var = %q, want %q (real env should take precedence)", got, "from-env")
	}
}

func TestLoadEnvFile_MissingFile(t *testing.T) {
	loadEnvFile("/nonexistent/path/.env")
}

// clearEnv unsets every configuration key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for k := range defaults {
		t.Setenv(strings.ToUpper(k), "")
		os.Unsetenv(strings.ToUpper(k))
	}
	for _, k := range []string{"OPENAI_API_KEY", "DEEPSEEK_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "PROMPT_FILE", "CONTINUE_PROMPT", "SHARED_FILES"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	// Keep a stray testforge.yaml or .env in the package dir out of the way.
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.LLMProvider != ProviderAssistants {
		t.Errorf("LLMProvider = %q, want %q", cfg.LLMProvider, ProviderAssistants)
	}
	if cfg.OpenAIBaseURL != "https://api.openai.com/v1" {
		t.Errorf("OpenAIBaseURL = %q, want default", cfg.OpenAIBaseURL)
	}
	if cfg.CrawlBaseDelay != 5*time.Second || cfg.CrawlMaxAttempts != 5 {
		t.Errorf("crawl retry = %v x %d, want 5s x 5", cfg.CrawlBaseDelay, cfg.CrawlMaxAttempts)
	}
	if cfg.CrawlPoliteness != 500*time.Millisecond {
		t.Errorf("CrawlPoliteness = %v, want 500ms", cfg.CrawlPoliteness)
	}
	if cfg.SessionMaxTurns != 5 || cfg.SessionPollInterval != 2*time.Second || cfg.SessionRunTimeout != 10*time.Minute {
		t.Errorf("session = %d turns, poll %v, timeout %v", cfg.SessionMaxTurns, cfg.SessionPollInterval, cfg.SessionRunTimeout)
	}
	if cfg.MatchCutoff != 0.6 {
		t.Errorf("MatchCutoff = %v, want 0.6", cfg.MatchCutoff)
	}
	if cfg.PageContent != PageContentHTML {
		t.Errorf("PageContent = %q", cfg.PageContent)
	}
	if cfg.WorkerInterval != 3*time.Second {
		t.Errorf("WorkerInterval = %v, want 3s", cfg.WorkerInterval)
	}
	if cfg.SharedFiles != nil {
		t.Errorf("SharedFiles = %v, want none", cfg.SharedFiles)
	}
	if got := cfg.PagesDir(); got != "scraped_pages" {
		t.Errorf("PagesDir = %q", got)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_BASE_URL", "https://api.deepseek.com/v1")
	t.Setenv("OPENAI_MODEL", "deepseek-chat")
	t.Setenv("OPENAI_API_KEY", "sk-test-key")
	t.Setenv("CRAWL_BASE_DELAY", "250ms")
	t.Setenv("SESSION_MAX_TURNS", "8")
	t.Setenv("MATCH_CUTOFF", "0.75")
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("SHARED_FILES", "a.txt, ,b.txt")
	t.Setenv("WORK_DIR", "/tmp/work")

	cfg := Load()

	if cfg.OpenAIBaseURL != "https://api.deepseek.com/v1" {
		t.Errorf("OpenAIBaseURL = %q", cfg.OpenAIBaseURL)
	}
	if cfg.OpenAIModel != "deepseek-chat" {
		t.Errorf("OpenAIModel = %q, want %q", cfg.OpenAIModel, "deepseek-chat")
	}
	if cfg.OpenAIKey != "sk-test-key" {
		t.Errorf("OpenAIKey = %q, want %q", cfg.OpenAIKey, "sk-test-key")
	}
	if cfg.CrawlBaseDelay != 250*time.Millisecond {
		t.Errorf("CrawlBaseDelay = %v", cfg.CrawlBaseDelay)
	}
	if cfg.SessionMaxTurns != 8 {
		t.Errorf("SessionMaxTurns = %d", cfg.SessionMaxTurns)
	}
	if cfg.MatchCutoff != 0.75 {
		t.Errorf("MatchCutoff = %v", cfg.MatchCutoff)
	}
	if cfg.LLMProvider != ProviderOpenAI {
		t.Errorf("LLMProvider = %q, want lower-cased", cfg.LLMProvider)
	}
	if len(cfg.SharedFiles) != 2 || cfg.SharedFiles[1] != "b.txt" {
		t.Errorf("SharedFiles = %v", cfg.SharedFiles)
	}
	if cfg.TestsDir() != "/tmp/work/tests" {
		t.Errorf("TestsDir = %q", cfg.TestsDir())
	}
}

func TestLoadFile_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	yaml := "port: \"9090\"\ncrawl_max_pages: 12\nllm_provider: stub\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != "9090" || cfg.CrawlMaxPages != 12 || cfg.LLMProvider != ProviderStub {
		t.Errorf("cfg = port %q, max pages %d, provider %q", cfg.Port, cfg.CrawlMaxPages, cfg.LLMProvider)
	}

	// Environment beats the file.
	t.Setenv("PORT", "7070")
	cfg, _ = LoadFile(path)
	if cfg.Port != "7070" {
		t.Errorf("Port = %q, want env value", cfg.Port)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for explicit missing config file")
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("CRAWL_POLITENESS", "not-a-duration")
	t.Setenv("CRAWL_MAX_ATTEMPTS", "abc")
	t.Setenv("MATCH_CUTOFF", "high")

	cfg := Load()

	if cfg.CrawlPoliteness != 500*time.Millisecond {
		t.Errorf("CrawlPoliteness = %v, want fallback 500ms", cfg.CrawlPoliteness)
	}
	if cfg.CrawlMaxAttempts != 5 {
		t.Errorf("CrawlMaxAttempts = %d, want fallback 5", cfg.CrawlMaxAttempts)
	}
	if cfg.MatchCutoff != 0.6 {
		t.Errorf("MatchCutoff = %v, want fallback 0.6", cfg.MatchCutoff)
	}
}

func TestUseStubs(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantStub bool
	}{
		{"assistants without key", Config{LLMProvider: ProviderAssistants}, true},
		{"assistants with key", Config{LLMProvider: ProviderAssistants, OpenAIKey: "sk-x"}, false},
		{"openai with key", Config{LLMProvider: ProviderOpenAI, OpenAIKey: "sk-x"}, false},
		{"deepseek without key", Config{LLMProvider: ProviderDeepSeek, OpenAIKey: "sk-x"}, true},
		{"deepseek with key", Config{LLMProvider: ProviderDeepSeek, DeepSeekKey: "sk-x"}, false},
		{"claude without key", Config{LLMProvider: ProviderClaude}, true},
		{"claude with key", Config{LLMProvider: ProviderClaude, AnthropicKey: "sk-x"}, false},
		{"gemini without key", Config{LLMProvider: ProviderGemini}, true},
		{"gemini with key", Config{LLMProvider: ProviderGemini, GeminiKey: "key"}, false},
		{"ollama always false", Config{LLMProvider: ProviderOllama}, false},
		{"stub always true", Config{LLMProvider: ProviderStub, OpenAIKey: "sk-x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.UseStubs(); got != tt.wantStub {
				t.Errorf("UseStubs() = %v, want %v", got, tt.wantStub)
			}
		})
	}
}
