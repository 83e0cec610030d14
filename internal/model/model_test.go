package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewJob(t *testing.T) {
	job := NewJob("job-1", JobCrawl, "http://localhost:8080/")

	if job.ID != "job-1" {
		t.Errorf("ID = %q, want %q", job.ID, "job-1")
	}
	if job.Status != JobQueued {
		t.Errorf("Status = %q, want %q", job.Status, JobQueued)
	}
	if job.CreatedAt == "" {
		t.Error("CreatedAt should not be empty")
	}
	if job.CreatedAt != job.UpdatedAt {
		t.Error("CreatedAt and UpdatedAt should be equal for new jobs")
	}
	if job.ErrorInfo != nil {
		t.Error("ErrorInfo should be nil for new jobs")
	}
}

func TestJobCanRetry(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{JobFailed, true},
		{JobQueued, false},
		{JobRunning, false},
		{JobDone, false},
	}
	for _, tt := range tests {
		j := &Job{Status: tt.status}
		if got := j.CanRetry(); got != tt.want {
			t.Errorf("CanRetry(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNewGeneration(t *testing.T) {
	a := CombinedArtifact{
		Name:            "ai_chat_combined.txt",
		RequirementName: "http_localhost_8080_ai_chat.txt",
		PageName:        "http_localhost_8080_ai_chat.html",
		TestURL:         "http://localhost:8080/ai/chat",
	}
	g := NewGeneration("g-1", a, GenerationSucceeded)
	if g.ArtifactName != a.Name || g.TestURL != a.TestURL {
		t.Errorf("generation does not carry artifact fields: %+v", g)
	}
	if g.CreatedAt == "" {
		t.Error("CreatedAt should not be empty")
	}
}

func TestSessionResponderTurns(t *testing.T) {
	s := Session{Turns: []Turn{
		{Role: RoleUser, RawContent: "go"},
		{Role: RoleAssistant, RawContent: "one"},
		{Role: RoleUser, RawContent: "continue"},
		{Role: RoleAssistant, RawContent: "two"},
	}}
	got := s.ResponderTurns()
	if len(got) != 2 || got[0].RawContent != "one" || got[1].RawContent != "two" {
		t.Errorf("ResponderTurns = %+v", got)
	}
}

func TestErrorInfoToJSON(t *testing.T) {
	info := ErrorInfo{
		FailedStep: "poll",
		Message:    "run failed",
		Retryable:  true,
		FailedAt:   "2026-01-01T00:00:00Z",
	}
	j := info.ToJSON()
	if !strings.Contains(j, `"failed_step":"poll"`) {
		t.Errorf("ToJSON missing failed_step, got %s", j)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	root := errors.New("connection refused")
	var err error = fmt.Errorf("crawl: %w", &FetchError{URL: "http://x/", Err: root})

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatal("expected *FetchError")
	}
	if !errors.Is(err, root) {
		t.Error("FetchError should unwrap to its cause")
	}

	statusOnly := &FetchError{URL: "http://x/", StatusCode: 404}
	if !strings.Contains(statusOnly.Error(), "HTTP 404") {
		t.Errorf("Error() = %q", statusOnly.Error())
	}

	rl := &RateLimitExhaustedError{URL: "http://x/", Attempts: 5}
	if !strings.Contains(rl.Error(), "5 attempts") {
		t.Errorf("Error() = %q", rl.Error())
	}

	se := &SessionError{SessionID: "s", RunID: "r", Status: "expired"}
	if !strings.Contains(se.Error(), `"expired"`) {
		t.Errorf("Error() = %q", se.Error())
	}
}
