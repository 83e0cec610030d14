package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Jojodayolo/testforge/internal/model"
)

// ChatBackend implements Backend in memory on top of a stateless ChatModel.
// Personas, artifacts and sessions live in the process; a run calls the
// model synchronously, so by the time Run returns the run is terminal.
type ChatBackend struct {
	name  string
	model ChatModel

	mu       sync.Mutex
	personas map[string]string
	files    map[string]chatFile
	sessions map[string]*chatSession
}

type chatFile struct {
	name    string
	content string
}

type chatSession struct {
	refs  []string
	turns []model.Turn
	runs  map[string]RunStatus
}

// NewChatBackend creates a backend called name that answers with m.
func NewChatBackend(name string, m ChatModel) *ChatBackend {
	return &ChatBackend{
		name:     name,
		model:    m,
		personas: make(map[string]string),
		files:    make(map[string]chatFile),
		sessions: make(map[string]*chatSession),
	}
}

// Name implements Backend.
func (b *ChatBackend) Name() string { return b.name }

// CreatePersona implements Backend.
func (b *ChatBackend) CreatePersona(_ context.Context, instructions string) (string, error) {
	id := "persona_" + uuid.New().String()
	b.mu.Lock()
	b.personas[id] = instructions
	b.mu.Unlock()
	return id, nil
}

// Upload implements Backend.
func (b *ChatBackend) Upload(_ context.Context, name string, content []byte) (string, error) {
	id := "file_" + uuid.New().String()
	b.mu.Lock()
	b.files[id] = chatFile{name: name, content: string(content)}
	b.mu.Unlock()
	return id, nil
}

// CreateSession implements Backend. Every ref must name an uploaded file.
func (b *ChatBackend) CreateSession(_ context.Context, refs []string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range refs {
		if _, ok := b.files[r]; !ok {
			return "", fmt.Errorf("%s: unknown artifact %q", b.name, r)
		}
	}
	id := "session_" + uuid.New().String()
	b.sessions[id] = &chatSession{refs: append([]string(nil), refs...), runs: make(map[string]RunStatus)}
	return id, nil
}

// PostTurn implements Backend.
func (b *ChatBackend) PostTurn(_ context.Context, sessionID string, role model.Role, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.session(sessionID)
	if err != nil {
		return err
	}
	s.turns = append(s.turns, model.Turn{Role: role, RawContent: content})
	return nil
}

// Run implements Backend. The model call happens here; a model error fails
// the call rather than producing a failed run.
func (b *ChatBackend) Run(ctx context.Context, sessionID, personaID string) (string, error) {
	b.mu.Lock()
	s, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return "", err
	}
	system, ok := b.personas[personaID]
	if !ok {
		b.mu.Unlock()
		return "", fmt.Errorf("%s: unknown persona %q", b.name, personaID)
	}
	msgs := b.messages(s)
	b.mu.Unlock()

	reply, err := b.model.Chat(ctx, system, msgs)
	if err != nil {
		return "", err
	}

	runID := "run_" + uuid.New().String()
	b.mu.Lock()
	s.turns = append(s.turns, model.Turn{Role: model.RoleAssistant, RawContent: reply})
	s.runs[runID] = RunCompleted
	b.mu.Unlock()
	return runID, nil
}

// PollRun implements Backend.
func (b *ChatBackend) PollRun(_ context.Context, sessionID, runID string) (RunStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.session(sessionID)
	if err != nil {
		return "", err
	}
	status, ok := s.runs[runID]
	if !ok {
		return "", fmt.Errorf("%s: unknown run %q", b.name, runID)
	}
	return status, nil
}

// ListTurns implements Backend.
func (b *ChatBackend) ListTurns(_ context.Context, sessionID string) ([]model.Turn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.session(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Turn, len(s.turns))
	for i, t := range s.turns {
		out[len(s.turns)-1-i] = t
	}
	return out, nil
}

// Release implements Backend. Shared artifacts are left in place.
func (b *ChatBackend) Release(_ context.Context, sessionID, artifactRef string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
	delete(b.files, artifactRef)
	return nil
}

// session must be called with mu held.
func (b *ChatBackend) session(id string) (*chatSession, error) {
	s, ok := b.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: unknown session %q", b.name, id)
	}
	return s, nil
}

// messages inlines the attached artifacts into the first user message.
// Must be called with mu held.
func (b *ChatBackend) messages(s *chatSession) []ChatMessage {
	var attached strings.Builder
	for _, r := range s.refs {
		f := b.files[r]
		fmt.Fprintf(&attached, "File: %s\n%s\n\n", f.name, f.content)
	}

	msgs := make([]ChatMessage, 0, len(s.turns))
	for i, t := range s.turns {
		content := t.RawContent
		if i == 0 && attached.Len() > 0 {
			content = attached.String() + content
		}
		msgs = append(msgs, ChatMessage{Role: t.Role, Content: content})
	}
	return msgs
}

var _ Backend = (*ChatBackend)(nil)
