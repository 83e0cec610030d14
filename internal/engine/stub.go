package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// StubModel returns canned responses (for development/testing without API keys).
type StubModel struct{}

var stubTestURL = regexp.MustCompile(`### TEST URL ###\s+(\S+)`)

// Chat answers with a minimal Playwright test for the URL named in the
// conversation.
func (m *StubModel) Chat(_ context.Context, _ string, msgs []ChatMessage) (string, error) {
	target := "http://localhost:8080/"
	for _, msg := range msgs {
		if match := stubTestURL.FindStringSubmatch(msg.Content); match != nil {
			target = match[1]
			break
		}
	}

	name := strings.Trim(nonIdent.ReplaceAllString(strings.ToLower(target), "_"), "_")
	return fmt.Sprintf("Here is the generated test.\n\n```python\nimport pytest\nfrom playwright.async_api import Page\n\n\n@pytest.mark.asyncio\nasync def test_%s_loads(page: Page):\n    await page.goto(%q)\n    assert await page.title() != \"\"\n```\n\nAll tests have been generated.", name, target), nil
}

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

// NewStubBackend returns a chat backend answering with StubModel.
func NewStubBackend() *ChatBackend {
	return NewChatBackend("stub", &StubModel{})
}
