package model

// SessionStatus is the state of a generation session.
type SessionStatus string

// Session states. A session moves Created → AwaitingCompletion, then loops
// through Continuing → AwaitingCompletion until Completed or Failed.
const (
	SessionCreated            SessionStatus = "Created"
	SessionAwaitingCompletion SessionStatus = "AwaitingCompletion"
	SessionContinuing         SessionStatus = "Continuing"
	SessionCompleted          SessionStatus = "Completed"
	SessionFailed             SessionStatus = "Failed"
)

// Role identifies the author of a turn.
type Role string

// Turn roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Signal is the termination decision attached to a responder turn.
type Signal string

// Termination signals
const (
	SignalNone     Signal = ""
	SignalStop     Signal = "stop"
	SignalContinue Signal = "continue"
)

// Turn is one message of a session. Turns are append-only.
type Turn struct {
	Role       Role   `json:"role"`
	RawContent string `json:"raw_content"`
	Signal     Signal `json:"signal,omitempty"`
}

// Session is the ordered conversation held for one combined artifact.
type Session struct {
	ID          string        `json:"id"`
	Backend     string        `json:"backend"`
	ArtifactRef string        `json:"artifact_ref"`
	Turns       []Turn        `json:"turns"`
	Status      SessionStatus `json:"status"`
}

// ResponderTurns returns the assistant turns in order.
func (s *Session) ResponderTurns() []Turn {
	var out []Turn
	for _, t := range s.Turns {
		if t.Role == RoleAssistant {
			out = append(out, t)
		}
	}
	return out
}
