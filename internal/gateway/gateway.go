// Package gateway talks to language-model endpoints. Every backend
// exposes the same single call: prompt in, generated text out.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultRequestTimeout = 60 * time.Second

// ErrUnrecognizedResponse is returned when a response body matches none
// of the accepted shapes.
var ErrUnrecognizedResponse = errors.New("unrecognized response shape")

// Completion is one generated answer plus the token usage the backend
// reported, if any.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client generates text for a prompt. A returned error means the call
// produced no usable response.
type Client interface {
	Generate(ctx context.Context, prompt string) (*Completion, error)
}

// OllamaClient calls an Ollama-style /api/generate endpoint without streaming.
type OllamaClient struct {
	URL        string
	Model      string
	HTTPClient *http.Client
}

func NewOllamaClient(apiURL, model string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &OllamaClient{
		URL:        GenerateURL(apiURL),
		Model:      model,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// GenerateURL appends /api/generate unless apiURL already ends with it.
func GenerateURL(apiURL string) string {
	if strings.HasSuffix(apiURL, "/api/generate") {
		return apiURL
	}
	return strings.TrimRight(apiURL, "/") + "/api/generate"
}

func (o *OllamaClient) Generate(ctx context.Context, prompt string) (*Completion, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  o.Model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", o.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := o.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", o.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return DecodeCompletion(data)
}

// responseShape is one accepted response layout. decode reports false
// when the body does not have that shape.
type responseShape struct {
	name   string
	decode func(body map[string]json.RawMessage) (string, bool)
}

// shapes are tried in order; the first match wins.
var shapes = []responseShape{
	{"generate", decodeGenerate},
	{"chat-choices", decodeChoices},
	{"chat-message", decodeMessage},
}

func decodeGenerate(body map[string]json.RawMessage) (string, bool) {
	raw, ok := body["response"]
	if !ok {
		return "", false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", false
	}
	return text, true
}

type chatMessage struct {
	Content *string `json:"content"`
}

func decodeChoices(body map[string]json.RawMessage) (string, bool) {
	raw, ok := body["choices"]
	if !ok {
		return "", false
	}
	var choices []struct {
		Message *chatMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &choices); err != nil || len(choices) == 0 {
		return "", false
	}
	last := choices[len(choices)-1]
	if last.Message == nil || last.Message.Content == nil {
		return "", false
	}
	return *last.Message.Content, true
}

func decodeMessage(body map[string]json.RawMessage) (string, bool) {
	raw, ok := body["message"]
	if !ok {
		return "", false
	}
	var msg chatMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Content == nil {
		return "", false
	}
	return *msg.Content, true
}

// usage covers both the Ollama counters and the OpenAI usage block.
type usage struct {
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
	Usage           *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// DecodeCompletion normalizes a response body into a Completion. Bodies
// that match no accepted shape fail with ErrUnrecognizedResponse.
func DecodeCompletion(data []byte) (*Completion, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedResponse, err)
	}
	for _, s := range shapes {
		text, ok := s.decode(body)
		if !ok {
			continue
		}
		c := &Completion{Text: strings.TrimSpace(text)}
		var u usage
		if err := json.Unmarshal(data, &u); err == nil {
			c.InputTokens, c.OutputTokens = u.PromptEvalCount, u.EvalCount
			if u.Usage != nil {
				c.InputTokens, c.OutputTokens = u.Usage.PromptTokens, u.Usage.CompletionTokens
			}
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnrecognizedResponse, truncate(string(data), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
