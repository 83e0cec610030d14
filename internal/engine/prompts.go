package engine

import (
	"fmt"
	"os"
	"strings"
)

// DefaultInstructions are the standing persona instructions.
const DefaultInstructions = `You are a senior QA engineer who writes end-to-end tests with Python, pytest and Playwright (async API).
You receive a file that contains the scraped HTML of a web page, free-text test requirements, the URL under test and an example test to use as a template.
Write runnable tests that cover the requirements against the real page structure. Reuse the fixtures and style of the example.
Answer with Python code in fenced code blocks. If the answer does not fit into one message, end the message with the single word "continue" and go on when asked.
When you are done, end with "End of tests."`

// DefaultPrompt is the first user turn of every session.
const DefaultPrompt = `Generate the Playwright tests for the attached file. Follow the test requirements, target the TEST URL and use the template test as a starting point.`

// DefaultContinuePrompt asks the responder to go on after a continuation.
const DefaultContinuePrompt = "Please continue."

// LoadPrompt returns the content of path, or fallback when path is empty.
func LoadPrompt(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return fallback, nil
	}
	return s, nil
}
