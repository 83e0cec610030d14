package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Jojodayolo/testforge/internal/metrics"
	"github.com/Jojodayolo/testforge/internal/model"
)

// SharedArtifact is uploaded once per identity and attached to every session.
type SharedArtifact struct {
	Name    string
	Content []byte
}

// ManagerOptions tunes session handling.
type ManagerOptions struct {
	PollInterval time.Duration
	// MaxTurns caps responder turns per session. Values below 1 mean 1.
	MaxTurns int
	// RunTimeout bounds the wait for a single run. Zero disables it.
	RunTimeout     time.Duration
	Instructions   string
	Prompt         string
	ContinuePrompt string
	Shared         []SharedArtifact
}

// DefaultManagerOptions returns the stock session settings.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		PollInterval:   2 * time.Second,
		MaxTurns:       5,
		RunTimeout:     10 * time.Minute,
		Instructions:   DefaultInstructions,
		Prompt:         DefaultPrompt,
		ContinuePrompt: DefaultContinuePrompt,
	}
}

// Manager drives generation sessions against one backend.
type Manager struct {
	backend    Backend
	identities IdentityStore
	recorder   SessionRecorder
	classifier Classifier
	metrics    *metrics.Metrics
	opts       ManagerOptions

	mu       sync.Mutex
	identity *model.Identity
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIdentityStore persists the backend identity across processes.
func WithIdentityStore(s IdentityStore) ManagerOption {
	return func(m *Manager) { m.identities = s }
}

// WithSessionRecorder records every finished session.
func WithSessionRecorder(r SessionRecorder) ManagerOption {
	return func(m *Manager) { m.recorder = r }
}

// WithClassifier replaces the continuation classifier.
func WithClassifier(c Classifier) ManagerOption {
	return func(m *Manager) { m.classifier = c }
}

// WithManagerMetrics records session counters on mt.
func WithManagerMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a Manager for backend.
func NewManager(backend Backend, opts ManagerOptions, options ...ManagerOption) *Manager {
	if opts.MaxTurns < 1 {
		opts.MaxTurns = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ContinuePrompt == "" {
		opts.ContinuePrompt = DefaultContinuePrompt
	}
	m := &Manager{
		backend:    backend,
		classifier: PatternClassifier{},
		opts:       opts,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Backend returns the backend the manager drives.
func (m *Manager) Backend() Backend { return m.backend }

// Identity loads the backend identity or creates it on first use. The result
// is cached for the lifetime of the Manager.
func (m *Manager) Identity(ctx context.Context) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity != nil {
		return m.identity, nil
	}

	if m.identities != nil {
		id, err := m.identities.GetIdentity(ctx, m.backend.Name())
		if err != nil {
			return nil, fmt.Errorf("load identity: %w", err)
		}
		if id != nil {
			m.identity = id
			return id, nil
		}
	}

	personaID, err := m.backend.CreatePersona(ctx, m.opts.Instructions)
	if err != nil {
		return nil, fmt.Errorf("create persona: %w", err)
	}
	id := &model.Identity{
		Backend:   m.backend.Name(),
		PersonaID: personaID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, a := range m.opts.Shared {
		ref, err := m.backend.Upload(ctx, a.Name, a.Content)
		if err != nil {
			return nil, fmt.Errorf("upload shared artifact %s: %w", a.Name, err)
		}
		id.ArtifactRefs = append(id.ArtifactRefs, ref)
	}

	if m.identities != nil {
		if err := m.identities.SaveIdentity(ctx, *id); err != nil {
			return nil, fmt.Errorf("save identity: %w", err)
		}
	}
	slog.Info("backend identity created", "backend", id.Backend, "persona_id", id.PersonaID, "shared", len(id.ArtifactRefs))
	m.identity = id
	return id, nil
}

// ResetIdentity forgets the cached and stored identity; the next session
// creates a fresh one.
func (m *Manager) ResetIdentity(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = nil
	if m.identities == nil {
		return nil
	}
	if err := m.identities.DeleteIdentity(ctx, m.backend.Name()); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// Generate runs one session over artifact and returns it together with the
// joined responder output. The session is returned even on failure.
func (m *Manager) Generate(ctx context.Context, artifact model.CombinedArtifact) (*model.Session, string, error) {
	sess := &model.Session{Backend: m.backend.Name(), Status: model.SessionCreated}
	out, err := m.converse(ctx, sess, artifact)
	if err != nil {
		sess.Status = model.SessionFailed
	} else {
		sess.Status = model.SessionCompleted
	}
	m.metrics.ObserveSession(string(sess.Status))
	m.record(ctx, sess)
	m.release(ctx, sess)
	return sess, out, err
}

// release drops the backend's copy of a finished session. The recorded
// session keeps the turns.
func (m *Manager) release(ctx context.Context, sess *model.Session) {
	if sess.ID == "" && sess.ArtifactRef == "" {
		return
	}
	if err := m.backend.Release(ctx, sess.ID, sess.ArtifactRef); err != nil {
		slog.Warn("release session failed", "session_id", sess.ID, "error", err)
	}
}

func (m *Manager) converse(ctx context.Context, sess *model.Session, artifact model.CombinedArtifact) (string, error) {
	id, err := m.Identity(ctx)
	if err != nil {
		return "", &StepError{Step: "identity", Err: err}
	}

	ref, err := m.backend.Upload(ctx, artifact.Name, []byte(artifact.Content))
	if err != nil {
		return "", &StepError{Step: "upload", Err: err}
	}
	sess.ArtifactRef = ref

	refs := append([]string{ref}, id.ArtifactRefs...)
	sid, err := m.backend.CreateSession(ctx, refs)
	if err != nil {
		return "", &StepError{Step: "session", Err: err}
	}
	sess.ID = sid

	if err := m.post(ctx, sess, m.opts.Prompt); err != nil {
		return "", err
	}

	for turn := 1; ; turn++ {
		sess.Status = model.SessionAwaitingCompletion
		text, err := m.runOnce(ctx, sess, id.PersonaID)
		if err != nil {
			return "", err
		}

		signal := m.classifier.Classify(text)
		sess.Turns = append(sess.Turns, model.Turn{Role: model.RoleAssistant, RawContent: text, Signal: signal})
		m.metrics.ObserveTurn()

		if signal != model.SignalContinue {
			break
		}
		if turn >= m.opts.MaxTurns {
			slog.Warn("turn cap reached", "session_id", sess.ID, "artifact", artifact.Name, "max_turns", m.opts.MaxTurns)
			break
		}

		sess.Status = model.SessionContinuing
		if err := m.post(ctx, sess, m.opts.ContinuePrompt); err != nil {
			return "", err
		}
	}

	return JoinTurns(sess.ResponderTurns()), nil
}

func (m *Manager) post(ctx context.Context, sess *model.Session, content string) error {
	if err := m.backend.PostTurn(ctx, sess.ID, model.RoleUser, content); err != nil {
		return &StepError{Step: "turn", Err: err}
	}
	sess.Turns = append(sess.Turns, model.Turn{Role: model.RoleUser, RawContent: content})
	return nil
}

// runOnce starts a run, waits for it and returns the newest responder text.
func (m *Manager) runOnce(ctx context.Context, sess *model.Session, personaID string) (string, error) {
	runID, err := m.backend.Run(ctx, sess.ID, personaID)
	if err != nil {
		return "", &StepError{Step: "run", Err: err}
	}

	status, err := m.await(ctx, sess.ID, runID)
	if err != nil {
		return "", &StepError{Step: "poll", Err: err}
	}
	if status != RunCompleted {
		return "", &model.SessionError{SessionID: sess.ID, RunID: runID, Status: string(status)}
	}

	turns, err := m.backend.ListTurns(ctx, sess.ID)
	if err != nil {
		return "", &StepError{Step: "turns", Err: err}
	}
	for _, t := range turns {
		if t.Role == model.RoleAssistant {
			return t.RawContent, nil
		}
	}
	return "", &StepError{Step: "turns", Err: errors.New("no responder turn after completed run")}
}

// await polls until the run reaches a terminal status.
func (m *Manager) await(ctx context.Context, sessionID, runID string) (RunStatus, error) {
	if m.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.RunTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := m.backend.PollRun(ctx, sessionID, runID)
		m.metrics.ObservePoll()
		if err != nil {
			return "", err
		}
		if status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) record(ctx context.Context, sess *model.Session) {
	if m.recorder == nil || sess.ID == "" {
		return
	}
	if err := m.recorder.SaveSession(ctx, sess); err != nil {
		slog.Warn("record session failed", "session_id", sess.ID, "error", err)
	}
}

// StepError wraps an error with the step name that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepName returns the name of the failed step.
func (e *StepError) StepName() string {
	return e.Step
}
