package model

import (
	"encoding/json"
	"fmt"
)

// ErrorInfo holds structured failure information for a job or generation.
type ErrorInfo struct {
	FailedStep string `json:"failed_step"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	FailedAt   string `json:"failed_at"`
}

// ToJSON serializes ErrorInfo to a JSON string.
func (e ErrorInfo) ToJSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// FetchError is a network failure or a non-429 HTTP status for one URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RateLimitExhaustedError means a URL kept answering 429 until the attempt
// budget ran out.
type RateLimitExhaustedError struct {
	URL      string
	Attempts int
}

func (e *RateLimitExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s: still rate limited after %d attempts", e.URL, e.Attempts)
}

// ValidationError means a fetched page lacked a title or body text.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s", e.URL, e.Reason)
}

// SessionError means a backend run ended in a terminal non-success status.
type SessionError struct {
	SessionID string
	RunID     string
	Status    string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: run %s ended with status %q", e.SessionID, e.RunID, e.Status)
}

// MatchNotFoundError means no page record cleared the similarity cutoff for
// a requirement artifact.
type MatchNotFoundError struct {
	Requirement string
	Normalized  string
	BestScore   float64
}

func (e *MatchNotFoundError) Error() string {
	return fmt.Sprintf("no scraped page matches %s (normalized %q, best score %.2f)", e.Requirement, e.Normalized, e.BestScore)
}
