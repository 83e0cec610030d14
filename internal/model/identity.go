package model

// Identity is the reusable backend configuration shared by every session of
// one backend: the persona and the artifacts attached to each new session.
type Identity struct {
	Backend      string   `json:"backend"`
	PersonaID    string   `json:"persona_id"`
	ArtifactRefs []string `json:"artifact_refs"`
	CreatedAt    string   `json:"created_at"`
}
