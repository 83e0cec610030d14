package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/Jojodayolo/testforge/internal/model"
)

func init() {
	retryBackoff = func(int) time.Duration { return time.Millisecond }
}

func TestNewOpenAIClient_Defaults(t *testing.T) {
	c := NewOpenAIClient("sk-test")

	if c.apiKey != "sk-test" {
		t.Errorf("apiKey = %q, want %q", c.apiKey, "sk-test")
	}
	if c.model != "gpt-4o-mini" {
		t.Errorf("model = %q, want %q", c.model, "gpt-4o-mini")
	}
	if c.baseURL != "https://api.openai.com/v1" {
		t.Errorf("baseURL = %q, want default OpenAI URL", c.baseURL)
	}
}

func TestNewOpenAIClient_WithOptions(t *testing.T) {
	c := NewOpenAIClient("sk-test",
		WithModel("deepseek-chat"),
		WithBaseURL("https://api.deepseek.com/v1"),
	)

	if c.model != "deepseek-chat" {
		t.Errorf("model = %q, want %q", c.model, "deepseek-chat")
	}
	if c.baseURL != "https://api.deepseek.com/v1" {
		t.Errorf("baseURL = %q, want %q", c.baseURL, "https://api.deepseek.com/v1")
	}
}

func TestWithBaseURL_TrimsTrailingSlash(t *testing.T) {
	c := NewOpenAIClient("sk-test", WithBaseURL("https://api.deepseek.com/v1/"))
	if c.baseURL != "https://api.deepseek.com/v1" {
		t.Errorf("baseURL = %q, trailing slash should be trimmed", c.baseURL)
	}
}

func TestChat_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-mock" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer sk-mock")
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("request model = %q, want %q", req.Model, "test-model")
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v, want a single user message", req.Messages)
		}

		resp := chatResponse{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{
				{Message: struct {
					Content string `json:"content"`
				}{Content: "Hello from mock!"}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-mock", WithModel("test-model"), WithBaseURL(srv.URL))
	got, err := c.Chat(context.Background(), "", []ChatMessage{{Role: model.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "Hello from mock!" {
		t.Errorf("Chat = %q, want %q", got, "Hello from mock!")
	}
}

func TestChat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("bad-key", WithBaseURL(srv.URL))
	_, err := c.Chat(context.Background(), "", []ChatMessage{{Role: model.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestChat_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithBaseURL(srv.URL))
	_, err := c.Chat(context.Background(), "", []ChatMessage{{Role: model.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestChat_RetryOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("server error"))
			return
		}
		resp := chatResponse{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{
				{Message: struct {
					Content string `json:"content"`
				}{Content: "recovered"}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithBaseURL(srv.URL))
	got, err := c.Chat(context.Background(), "", []ChatMessage{{Role: model.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "recovered" {
		t.Errorf("Chat = %q, want %q", got, "recovered")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestChat_NoRetryOn4xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithBaseURL(srv.URL))
	_, err := c.Chat(context.Background(), "", []ChatMessage{{Role: model.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (should not retry 4xx)", attempts)
	}
}

func TestChat_SystemAndHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		wantRoles := []string{"system", "user", "assistant", "user"}
		if len(req.Messages) != len(wantRoles) {
			t.Fatalf("messages = %d, want %d", len(req.Messages), len(wantRoles))
		}
		for i, role := range wantRoles {
			if req.Messages[i].Role != role {
				t.Errorf("message %d role = %q, want %q", i, req.Messages[i].Role, role)
			}
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithBaseURL(srv.URL))
	got, err := c.Chat(context.Background(), "be terse", []ChatMessage{
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "answer"},
		{Role: model.RoleUser, Content: "more"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "ok" {
		t.Errorf("Chat = %q, want %q", got, "ok")
	}
}

// TestIntegration_OpenAI makes a real API call using .env.local config.
// Run explicitly:  go test ./internal/engine/ -run TestIntegration -v
func TestIntegration_OpenAI(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	if err := godotenv.Load("../../.env.local"); err != nil {
		t.Skip("skipping: ../../.env.local not found")
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := os.Getenv("OPENAI_BASE_URL")
	modelName := os.Getenv("OPENAI_MODEL")

	if apiKey == "" {
		t.Skip("skipping: OPENAI_API_KEY not set")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	t.Logf("base_url=%s  model=%s", baseURL, modelName)

	c := NewOpenAIClient(apiKey, WithBaseURL(baseURL), WithModel(modelName))
	got, err := c.Chat(context.Background(), "", []ChatMessage{{Role: model.RoleUser, Content: "Say hello in one short sentence."}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	t.Logf("Response: %s", got)

	if len(got) == 0 {
		t.Error("expected non-empty response")
	}
}
