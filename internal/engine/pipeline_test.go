package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Jojodayolo/testforge/internal/model"
)

// mockGenerationStore records all created generations.
type mockGenerationStore struct {
	generations []model.Generation
}

func (m *mockGenerationStore) CreateGeneration(_ context.Context, g model.Generation) error {
	m.generations = append(m.generations, g)
	return nil
}

func artifact(name, url string) model.CombinedArtifact {
	return model.CombinedArtifact{
		Name:    name,
		TestURL: url,
		Content: "### TEST URL ###\n\n" + url + "\n",
	}
}

func TestPipeline_FullRun(t *testing.T) {
	gs := &mockGenerationStore{}
	dir := t.TempDir()
	pipeline := NewPipeline(NewManager(NewStubBackend(), testOptions()), dir, WithGenerationStore(gs))

	jobID := "job-1"
	sum, err := pipeline.Run(context.Background(), []model.CombinedArtifact{
		artifact("localhost_8080_login_combined.txt", "http://localhost:8080/login"),
		artifact("localhost_8080_cart_combined.txt", "http://localhost:8080/cart"),
	}, &jobID)
	if err != nil {
		t.Fatalf("Pipeline.Run: %v", err)
	}

	if sum.Succeeded != 2 || sum.Failed != 0 || sum.Skipped != 0 {
		t.Errorf("summary = %+v, want 2 succeeded", sum)
	}
	if len(gs.generations) != 2 {
		t.Fatalf("generations = %d, want 2", len(gs.generations))
	}

	g := gs.generations[0]
	if g.Status != model.GenerationSucceeded {
		t.Errorf("status = %q", g.Status)
	}
	if g.JobID == nil || *g.JobID != "job-1" {
		t.Errorf("job id = %v", g.JobID)
	}
	if g.SessionID == nil || g.TurnCount != 1 {
		t.Errorf("session = %v turns = %d", g.SessionID, g.TurnCount)
	}
	wantPath := filepath.Join(dir, "test_localhost_8080_login.py")
	if g.OutputPath != wantPath {
		t.Errorf("output path = %q, want %q", g.OutputPath, wantPath)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read generated file: %v", err)
	}
	if string(data) != g.Code+"\n" {
		t.Errorf("file content = %q, want code %q", data, g.Code)
	}
}

func TestPipeline_SkipsExistingUnlessOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_page.py")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	arts := []model.CombinedArtifact{artifact("page_combined.txt", "http://x.test/")}

	sum, err := NewPipeline(NewManager(NewStubBackend(), testOptions()), dir).Run(context.Background(), arts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 1 || sum.Succeeded != 0 {
		t.Errorf("summary = %+v, want 1 skipped", sum)
	}

	sum, err = NewPipeline(NewManager(NewStubBackend(), testOptions()), dir, WithOverwrite(true)).Run(context.Background(), arts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Succeeded != 1 {
		t.Errorf("summary = %+v, want 1 succeeded", sum)
	}
	data, _ := os.ReadFile(path)
	if string(data) == "old" {
		t.Error("file was not regenerated")
	}
}

func TestPipeline_FailureDoesNotStopBatch(t *testing.T) {
	gs := &mockGenerationStore{}
	b := &scriptedBackend{replies: []string{"x"}, final: RunFailed}
	pipeline := NewPipeline(NewManager(b, testOptions()), t.TempDir(), WithGenerationStore(gs))

	sum, err := pipeline.Run(context.Background(), []model.CombinedArtifact{
		artifact("a_combined.txt", "http://a.test/"),
		artifact("b_combined.txt", "http://b.test/"),
	}, nil)
	if err != nil {
		t.Fatalf("Pipeline.Run: %v", err)
	}
	if sum.Failed != 2 {
		t.Errorf("failed = %d, want 2", sum.Failed)
	}

	g := gs.generations[0]
	if g.Status != model.GenerationFailed || g.ErrorInfo == nil {
		t.Fatalf("generation = %+v", g)
	}
	var info model.ErrorInfo
	if err := json.Unmarshal([]byte(*g.ErrorInfo), &info); err != nil {
		t.Fatalf("error info: %v", err)
	}
	if info.FailedStep != "run" || info.Retryable {
		t.Errorf("error info = %+v", info)
	}
	if g.OutputPath != "" {
		t.Errorf("failed generation has output path %q", g.OutputPath)
	}
}

func TestPipeline_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := NewPipeline(NewManager(NewStubBackend(), testOptions()), t.TempDir()).
		Run(ctx, []model.CombinedArtifact{artifact("a_combined.txt", "http://a.test/")}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if sum.Succeeded+sum.Failed != 0 {
		t.Errorf("summary = %+v, want nothing processed", sum)
	}
}

func TestTestFileName(t *testing.T) {
	if got := TestFileName("localhost_8080_ai_combined.txt"); got != "test_localhost_8080_ai.py" {
		t.Errorf("TestFileName = %q", got)
	}
}

func TestStepError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	se := &StepError{Step: "upload", Err: inner}

	if se.Error() != "upload: root cause" {
		t.Errorf("Error() = %q", se.Error())
	}
	if !errors.Is(se, inner) {
		t.Error("Unwrap should make inner error accessible via errors.Is")
	}
}
