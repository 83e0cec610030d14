package model

import "time"

// Generation status constants
const (
	GenerationSucceeded = "SUCCEEDED"
	GenerationFailed    = "FAILED"
)

// RequirementArtifact is a free-text requirements file produced from a page
// screenshot.
type RequirementArtifact struct {
	Name string
	Text string
}

// PageSource is the scraped content of one page as the correlator sees it.
type PageSource struct {
	Name    string
	Content string
}

// CombinedArtifact joins scraped page content, requirements, the test URL and
// a worked example into one upload for the generation backend.
type CombinedArtifact struct {
	Name            string  `json:"name"`
	RequirementName string  `json:"requirement_name"`
	PageName        string  `json:"page_name"`
	TestURL         string  `json:"test_url"`
	Score           float64 `json:"score"`
	Content         string  `json:"-"`
}

// Generation is the persisted outcome of one session run over a combined
// artifact.
type Generation struct {
	ID              string  `json:"id"`
	JobID           *string `json:"job_id,omitempty"`
	ArtifactName    string  `json:"artifact_name"`
	RequirementName string  `json:"requirement_name"`
	PageName        string  `json:"page_name"`
	TestURL         string  `json:"test_url"`
	Status          string  `json:"status"`
	SessionID       *string `json:"session_id,omitempty"`
	TurnCount       int     `json:"turn_count"`
	Output          string  `json:"output,omitempty"`
	Code            string  `json:"code,omitempty"`
	OutputPath      string  `json:"output_path,omitempty"`
	ErrorInfo       *string `json:"error_info,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// GenerationWithTurns is a Generation together with its session turns.
type GenerationWithTurns struct {
	Generation
	Turns []Turn `json:"turns"`
}

// NewGeneration creates a Generation for artifact with the given status.
func NewGeneration(id string, a CombinedArtifact, status string) Generation {
	return Generation{
		ID:              id,
		ArtifactName:    a.Name,
		RequirementName: a.RequirementName,
		PageName:        a.PageName,
		TestURL:         a.TestURL,
		Status:          status,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
}
