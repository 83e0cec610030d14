package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/Jojodayolo/testforge/internal/model"
)

// AssistantsBackend implements Backend on the OpenAI Assistants API: personas
// are assistants, sessions are threads and artifacts are uploaded files.
type AssistantsBackend struct {
	client *OpenAIClient
	name   string
}

// NewAssistantsBackend creates a backend that talks through client. The
// client's model is used for every assistant it creates.
func NewAssistantsBackend(client *OpenAIClient) *AssistantsBackend {
	return &AssistantsBackend{client: client, name: "openai-assistants"}
}

var assistantsHeader = http.Header{"OpenAI-Beta": []string{"assistants=v2"}}

// Name implements Backend.
func (b *AssistantsBackend) Name() string { return b.name }

type idResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// createJSON posts a creation request, retrying transient failures.
func (b *AssistantsBackend) createJSON(ctx context.Context, path string, payload any) (*idResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return withRetry(ctx, "assistants", func() (*idResponse, error) {
		return b.send(ctx, path, body)
	})
}

// postOnce sends a request that changes thread state. It is never retried so a
// message or run the server already accepted is not duplicated.
func (b *AssistantsBackend) postOnce(ctx context.Context, path string, payload any) (*idResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	resp, err := b.send(ctx, path, body)
	if err != nil {
		return nil, fmt.Errorf("assistants: %w", err)
	}
	return resp, nil
}

func (b *AssistantsBackend) send(ctx context.Context, path string, body []byte) (*idResponse, error) {
	respBody, err := b.client.do(ctx, http.MethodPost, path, "application/json", body, assistantsHeader)
	if err != nil {
		return nil, err
	}
	var out idResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("response without id")
	}
	return &out, nil
}

// CreatePersona creates an assistant with the code interpreter tool.
func (b *AssistantsBackend) CreatePersona(ctx context.Context, instructions string) (string, error) {
	resp, err := b.createJSON(ctx, "/assistants", map[string]any{
		"name":         "Test Generator",
		"model":        b.client.model,
		"instructions": instructions,
		"tools":        []map[string]string{{"type": "code_interpreter"}},
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Upload stores content as an assistants file.
func (b *AssistantsBackend) Upload(ctx context.Context, name string, content []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "assistants"); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	body := buf.Bytes()

	resp, err := withRetry(ctx, "assistants", func() (*idResponse, error) {
		respBody, err := b.client.do(ctx, http.MethodPost, "/files", w.FormDataContentType(), body, nil)
		if err != nil {
			return nil, err
		}
		var out idResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		return &out, nil
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// CreateSession creates a thread with refs available to the code interpreter.
func (b *AssistantsBackend) CreateSession(ctx context.Context, refs []string) (string, error) {
	payload := map[string]any{}
	if len(refs) > 0 {
		payload["tool_resources"] = map[string]any{
			"code_interpreter": map[string]any{"file_ids": refs},
		}
	}
	resp, err := b.createJSON(ctx, "/threads", payload)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// PostTurn appends a message to the thread. It is not retried.
func (b *AssistantsBackend) PostTurn(ctx context.Context, sessionID string, role model.Role, content string) error {
	_, err := b.postOnce(ctx, "/threads/"+url.PathEscape(sessionID)+"/messages", map[string]string{
		"role":    string(role),
		"content": content,
	})
	return err
}

// Run starts a run of the persona over the thread. It is not retried.
func (b *AssistantsBackend) Run(ctx context.Context, sessionID, personaID string) (string, error) {
	resp, err := b.postOnce(ctx, "/threads/"+url.PathEscape(sessionID)+"/runs", map[string]string{
		"assistant_id": personaID,
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// PollRun fetches the run's current status. It is not retried.
func (b *AssistantsBackend) PollRun(ctx context.Context, sessionID, runID string) (RunStatus, error) {
	path := "/threads/" + url.PathEscape(sessionID) + "/runs/" + url.PathEscape(runID)
	respBody, err := b.client.do(ctx, http.MethodGet, path, "", nil, assistantsHeader)
	if err != nil {
		return "", fmt.Errorf("assistants: %w", err)
	}
	var out idResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return RunStatus(out.Status), nil
}

type messageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// ListTurns lists the thread's messages, newest first.
func (b *AssistantsBackend) ListTurns(ctx context.Context, sessionID string) ([]model.Turn, error) {
	path := "/threads/" + url.PathEscape(sessionID) + "/messages?order=desc&limit=100"
	respBody, err := b.client.do(ctx, http.MethodGet, path, "", nil, assistantsHeader)
	if err != nil {
		return nil, fmt.Errorf("assistants: %w", err)
	}
	var list messageList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	turns := make([]model.Turn, 0, len(list.Data))
	for _, m := range list.Data {
		var text bytes.Buffer
		for _, c := range m.Content {
			if c.Type != "text" {
				continue
			}
			if text.Len() > 0 {
				text.WriteString("\n\n")
			}
			text.WriteString(c.Text.Value)
		}
		turns = append(turns, model.Turn{Role: model.Role(m.Role), RawContent: text.String()})
	}
	return turns, nil
}

// Release implements Backend. Threads and files stay on the remote side so a
// run can be inspected there.
func (b *AssistantsBackend) Release(context.Context, string, string) error { return nil }

var _ Backend = (*AssistantsBackend)(nil)
