package llmprovider

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiProvider is the Gemini-style row of spec.md §4.C4's capability
// matrix: images and streaming yes, tool calling declined with a logged
// warning, role mapping user/model (Gemini has no "assistant" role).
type GeminiProvider struct {
	client *genai.Client
	model  string
	label  string

	mu      sync.Mutex
	history []*genai.Content
}

// NewGeminiProvider constructs a provider around an API key and model.
func NewGeminiProvider(ctx context.Context, apiKey, model, label string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("navbrain: gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, label: label}, nil
}

func (p *GeminiProvider) Name() string { return p.label }
func (p *GeminiProvider) SupportsTools() bool { return false }
func (p *GeminiProvider) SupportsImages() bool { return true }
func (p *GeminiProvider) SupportsStreaming() bool { return true }

func toGeminiRole(r Role) genai.Role {
	if r == RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func toGeminiContent(role genai.Role, content Content) *genai.Content {
	parts := make([]*genai.Part, 0, 1+len(content.Images))
	if content.Text != "" {
		parts = append(parts, genai.NewPartFromText(content.Text))
	}
	for _, img := range content.Images {
		if decoded, err := base64.StdEncoding.DecodeString(img.PNGBase64); err == nil {
			parts = append(parts, genai.NewPartFromBytes(decoded, "image/png"))
		}
	}
	return genai.NewContentFromParts(parts, role)
}

func (p *GeminiProvider) AddUserMessage(content Content) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, toGeminiContent(genai.RoleUser, content))
}

func (p *GeminiProvider) AddAssistantMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, toGeminiContent(genai.RoleModel, Content{Text: text}))
}

// AddToolResult has no native Gemini analogue for this provider (tool
// calling is unsupported); it is folded into a user-role message so the
// conversation still reflects it, matching spec.md §4.C4's instruction that
// a non-tool-capable provider must not silently drop the interaction.
func (p *GeminiProvider) AddToolResult(toolUseId, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, toGeminiContent(genai.RoleUser, Content{
		Text: fmt.Sprintf("[tool_result %s] %s", toolUseId, text),
	}))
}

func (p *GeminiProvider) ClearHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
}

func (p *GeminiProvider) Send(ctx context.Context, tools []Tool) (Response, error) {
	warnIfToolsRequested(p, tools)
	p.mu.Lock()
	contents := append([]*genai.Content(nil), p.history...)
	p.mu.Unlock()

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return Response{}, fmt.Errorf("navbrain: gemini send: %w", err)
	}
	resp := fromGeminiResult(result)
	p.AddAssistantMessage(resp.Content)
	return resp, nil
}

func (p *GeminiProvider) Stream(ctx context.Context, tools []Tool) (<-chan Chunk, error) {
	warnIfToolsRequested(p, tools)
	p.mu.Lock()
	contents := append([]*genai.Content(nil), p.history...)
	p.mu.Unlock()

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		var full string
		for result, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, nil) {
			if err != nil {
				break
			}
			text := fromGeminiResult(result).Content
			if text != "" {
				full += text
				ch <- Chunk{Delta: text}
			}
		}
		p.AddAssistantMessage(full)
		ch <- Chunk{Done: true}
	}()
	return ch, nil
}

func (p *GeminiProvider) SendOnce(ctx context.Context, messages []Message, tools []Tool) (Response, error) {
	warnIfToolsRequested(p, tools)
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, toGeminiContent(toGeminiRole(m.Role), m.Content))
	}
	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return Response{}, fmt.Errorf("navbrain: gemini sendOnce: %w", err)
	}
	return fromGeminiResult(result), nil
}

func fromGeminiResult(result *genai.GenerateContentResponse) Response {
	text := result.Text()
	stop := StopEndTurn
	if len(result.Candidates) > 0 {
		switch result.Candidates[0].FinishReason {
		case genai.FinishReasonMaxTokens:
			stop = StopMaxTokens
		}
	}
	usage := &Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return Response{Content: text, StopReason: stop, Usage: usage}
}
