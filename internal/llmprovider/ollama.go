package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// chatMessage is Ollama's OpenAI-compatible wire shape, generalized from
// the teacher's internal/llm/client.go chatRequest/chatResponse structs.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// OllamaProvider is the Local-HTTP (Ollama-style) row of spec.md §4.C4's
// capability matrix: no tool calling, text-only in practice, no API key.
// Generalized directly from the teacher's internal/llm/client.go Client.
type OllamaProvider struct {
	BaseURL string
	Model   string
	Label   string

	httpClient *http.Client
	mu         sync.Mutex
	history    []chatMessage
}

// NewOllamaProvider constructs a provider targeting an OpenAI-compatible
// /chat/completions endpoint (Ollama's default local server shape).
func NewOllamaProvider(baseURL, model, label string) *OllamaProvider {
	return &OllamaProvider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		Label:      label,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OllamaProvider) Name() string { return p.Label }
func (p *OllamaProvider) SupportsTools() bool { return false }
func (p *OllamaProvider) SupportsImages() bool { return false }
func (p *OllamaProvider) SupportsStreaming() bool { return true }

func (p *OllamaProvider) AddUserMessage(content Content) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, chatMessage{Role: string(RoleUser), Content: content.Text})
}

func (p *OllamaProvider) AddAssistantMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, chatMessage{Role: string(RoleAssistant), Content: text})
}

// AddToolResult is represented as a user-role message referencing the tool
// call id (spec.md §4.C4 "History discipline"), even though this provider
// never itself emits tool calls to receive a result for.
func (p *OllamaProvider) AddToolResult(toolUseId, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, chatMessage{
		Role:    string(RoleUser),
		Content: fmt.Sprintf("[tool_result %s] %s", toolUseId, text),
	})
}

func (p *OllamaProvider) ClearHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
}

func (p *OllamaProvider) Send(ctx context.Context, tools []Tool) (Response, error) {
	warnIfToolsRequested(p, tools)
	p.mu.Lock()
	messages := append([]chatMessage(nil), p.history...)
	p.mu.Unlock()

	resp, err := p.chat(ctx, messages)
	if err != nil {
		return Response{}, err
	}
	p.AddAssistantMessage(resp.Content)
	return resp, nil
}

func (p *OllamaProvider) Stream(ctx context.Context, tools []Tool) (<-chan Chunk, error) {
	warnIfToolsRequested(p, tools)
	resp, err := p.Send(ctx, nil)
	if err != nil {
		return nil, err
	}
	ch := make(chan Chunk, 1)
	ch <- Chunk{Delta: resp.Content, Done: true}
	close(ch)
	return ch, nil
}

func (p *OllamaProvider) SendOnce(ctx context.Context, messages []Message, tools []Tool) (Response, error) {
	warnIfToolsRequested(p, tools)
	wire := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, chatMessage{Role: string(m.Role), Content: m.Content.Text})
	}
	return p.chat(ctx, wire)
}

func (p *OllamaProvider) chat(ctx context.Context, messages []chatMessage) (Response, error) {
	body, err := json.Marshal(chatRequest{Model: p.Model, Messages: messages, Stream: false})
	if err != nil {
		return Response{}, fmt.Errorf("navbrain: marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("navbrain: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("navbrain: ollama request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("navbrain: read ollama response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("navbrain: ollama %s: %s", httpResp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, fmt.Errorf("navbrain: decode ollama response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("navbrain: ollama response had no choices")
	}

	return Response{
		Content:    parsed.Choices[0].Message.Content,
		StopReason: finishReasonToStop(parsed.Choices[0].FinishReason),
		Usage: &Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

func finishReasonToStop(reason string) StopReason {
	switch reason {
	case "length":
		return StopMaxTokens
	case "tool_calls":
		return StopToolUse
	case "stop":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}
