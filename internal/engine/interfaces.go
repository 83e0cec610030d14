package engine

import (
	"context"

	"github.com/Jojodayolo/testforge/internal/model"
)

// RunStatus is the execution state a backend reports for a run.
type RunStatus string

// Run states. Only completed counts as success.
const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
	RunExpired    RunStatus = "expired"
)

// Terminal reports whether polling can stop.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// Backend is the turn protocol of a remote generation service.
type Backend interface {
	// Name identifies the backend; identities are stored per name.
	Name() string
	// CreatePersona registers the standing instructions and returns their id.
	CreatePersona(ctx context.Context, instructions string) (string, error)
	// Upload stores an artifact and returns a reference to it.
	Upload(ctx context.Context, name string, content []byte) (string, error)
	// CreateSession opens a conversation with the given artifacts attached.
	CreateSession(ctx context.Context, refs []string) (string, error)
	PostTurn(ctx context.Context, sessionID string, role model.Role, content string) error
	// Run asks the backend to answer the session under the given persona.
	Run(ctx context.Context, sessionID, personaID string) (string, error)
	PollRun(ctx context.Context, sessionID, runID string) (RunStatus, error)
	// ListTurns returns the session's turns, most recent first.
	ListTurns(ctx context.Context, sessionID string) ([]model.Turn, error)
	// Release discards a finished session and the artifact uploaded for it.
	// Either id may be empty when the session failed before it was set.
	Release(ctx context.Context, sessionID, artifactRef string) error
}

// ChatMessage is one message of a stateless chat completion request.
type ChatMessage struct {
	Role    model.Role
	Content string
}

// ChatModel abstracts a chat completion API. Implementations wrap OpenAI,
// Anthropic, Gemini, Ollama, etc.
type ChatModel interface {
	Chat(ctx context.Context, system string, msgs []ChatMessage) (string, error)
}

// IdentityStore persists backend identities.
type IdentityStore interface {
	GetIdentity(ctx context.Context, backend string) (*model.Identity, error)
	SaveIdentity(ctx context.Context, id model.Identity) error
	DeleteIdentity(ctx context.Context, backend string) error
}

// SessionRecorder persists finished sessions.
type SessionRecorder interface {
	SaveSession(ctx context.Context, s *model.Session) error
}

// Classifier decides whether a responder turn ends the session.
type Classifier interface {
	Classify(text string) model.Signal
}
