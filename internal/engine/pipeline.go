package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Jojodayolo/testforge/internal/model"
)

// GenerationStore persists generation outcomes.
type GenerationStore interface {
	CreateGeneration(ctx context.Context, g model.Generation) error
}

// Pipeline runs a session per combined artifact and writes the extracted
// test code to disk.
type Pipeline struct {
	manager     *Manager
	generations GenerationStore
	outDir      string
	overwrite   bool
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithGenerationStore records each outcome in s.
func WithGenerationStore(s GenerationStore) PipelineOption {
	return func(p *Pipeline) { p.generations = s }
}

// WithOverwrite regenerates artifacts whose test file already exists.
func WithOverwrite(overwrite bool) PipelineOption {
	return func(p *Pipeline) { p.overwrite = overwrite }
}

// NewPipeline creates a pipeline that writes test files into outDir.
func NewPipeline(m *Manager, outDir string, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{manager: m, outDir: outDir}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BatchSummary counts the outcomes of one batch.
type BatchSummary struct {
	Succeeded   int
	Failed      int
	Skipped     int
	Generations []model.Generation
}

// TestFileName is the file a combined artifact's tests are written to.
func TestFileName(artifactName string) string {
	base := strings.TrimSuffix(artifactName, filepath.Ext(artifactName))
	base = strings.TrimSuffix(base, "_combined")
	return "test_" + base + ".py"
}

// Run processes artifacts in order. A failing artifact is recorded and the
// batch moves on; only a cancelled context stops it early.
func (p *Pipeline) Run(ctx context.Context, artifacts []model.CombinedArtifact, jobID *string) (*BatchSummary, error) {
	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	sum := &BatchSummary{}
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		path := filepath.Join(p.outDir, TestFileName(a.Name))
		if !p.overwrite {
			if _, err := os.Stat(path); err == nil {
				slog.Info("test file exists, skipping", "artifact", a.Name, "path", path)
				sum.Skipped++
				continue
			}
		}

		gen := p.generate(ctx, a, path)
		gen.JobID = jobID
		if gen.Status == model.GenerationSucceeded {
			sum.Succeeded++
		} else {
			sum.Failed++
		}

		if p.generations != nil {
			if err := p.generations.CreateGeneration(ctx, gen); err != nil {
				slog.Error("record generation failed", "artifact", a.Name, "error", err)
			}
		}
		sum.Generations = append(sum.Generations, gen)
	}

	slog.Info("generation batch finished",
		"succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped)
	return sum, nil
}

func (p *Pipeline) generate(ctx context.Context, a model.CombinedArtifact, path string) model.Generation {
	gen := model.NewGeneration(uuid.New().String(), a, model.GenerationSucceeded)

	sess, out, err := p.manager.Generate(ctx, a)
	if sess != nil {
		if sess.ID != "" {
			sid := sess.ID
			gen.SessionID = &sid
		}
		gen.TurnCount = len(sess.ResponderTurns())
	}
	if err == nil {
		gen.Output = out
		gen.Code = ExtractCode(out)
		if werr := os.WriteFile(path, []byte(gen.Code+"\n"), 0o644); werr != nil {
			err = &StepError{Step: "save", Err: werr}
		} else {
			gen.OutputPath = path
		}
	}
	if err != nil {
		slog.Error("generation failed", "artifact", a.Name, "error", err)
		gen.Status = model.GenerationFailed
		info := failureInfo(err).ToJSON()
		gen.ErrorInfo = &info
		return gen
	}

	slog.Info("tests generated", "artifact", a.Name, "path", path, "turns", gen.TurnCount)
	return gen
}

// failureInfo classifies err into the stored error record.
func failureInfo(err error) model.ErrorInfo {
	info := model.ErrorInfo{
		FailedStep: "session",
		Message:    err.Error(),
		FailedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	var se *StepError
	if errors.As(err, &se) {
		info.FailedStep = se.Step
	}
	var ae *apiError
	var sessErr *model.SessionError
	switch {
	case errors.As(err, &ae):
		info.Retryable = ae.isRetryable()
	case errors.As(err, &sessErr):
		info.FailedStep = "run"
		info.Retryable = sessErr.Status == string(RunExpired)
	case errors.Is(err, context.DeadlineExceeded):
		info.Retryable = true
	}
	return info
}
