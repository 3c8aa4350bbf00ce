package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider is the native-Anthropic-style row of spec.md §4.C4's
// capability matrix: tool calling, images, and streaming all supported —
// the canonical provider the rest of the matrix is judged against.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
	label  string

	mu      sync.Mutex
	history []anthropic.MessageParam
}

// NewAnthropicProvider constructs a provider around an API key and model.
func NewAnthropicProvider(apiKey string, model anthropic.Model, label string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		label:  label,
	}
}

func (p *AnthropicProvider) Name() string { return p.label }
func (p *AnthropicProvider) SupportsTools() bool { return true }
func (p *AnthropicProvider) SupportsImages() bool { return true }
func (p *AnthropicProvider) SupportsStreaming() bool { return true }

func toAnthropicContent(c Content) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(c.Images))
	if c.Text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(c.Text))
	}
	for _, img := range c.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/png", img.PNGBase64))
	}
	return blocks
}

func (p *AnthropicProvider) AddUserMessage(content Content) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, anthropic.NewUserMessage(toAnthropicContent(content)...))
}

func (p *AnthropicProvider) AddAssistantMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
}

// AddToolResult is represented as a user-role message referencing
// tool_use_id, per spec.md §4.C4's history discipline.
func (p *AnthropicProvider) AddToolResult(toolUseId, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, anthropic.NewUserMessage(
		anthropic.NewToolResultBlock(toolUseId, text, false),
	))
}

func (p *AnthropicProvider) ClearHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
}

func toAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema, _ := json.Marshal(t.InputSchema)
		var inputSchema anthropic.ToolInputSchemaParam
		_ = json.Unmarshal(schema, &inputSchema)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: inputSchema,
			},
		})
	}
	return out
}

func (p *AnthropicProvider) Send(ctx context.Context, tools []Tool) (Response, error) {
	p.mu.Lock()
	messages := append([]anthropic.MessageParam(nil), p.history...)
	p.mu.Unlock()

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 4096,
		Messages:  messages,
		Tools:     toAnthropicTools(tools),
	})
	if err != nil {
		return Response{}, fmt.Errorf("navbrain: anthropic send: %w", err)
	}
	resp := fromAnthropicMessage(msg)
	p.AddAssistantMessage(resp.Content)
	return resp, nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, tools []Tool) (<-chan Chunk, error) {
	p.mu.Lock()
	messages := append([]anthropic.MessageParam(nil), p.history...)
	p.mu.Unlock()

	stream := p.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 4096,
		Messages:  messages,
		Tools:     toAnthropicTools(tools),
	})

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		var full string
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text := delta.Delta.Text; text != "" {
					full += text
					ch <- Chunk{Delta: text}
				}
			}
		}
		p.AddAssistantMessage(full)
		ch <- Chunk{Done: true}
	}()
	return ch, nil
}

func (p *AnthropicProvider) SendOnce(ctx context.Context, messages []Message, tools []Tool) (Response, error) {
	wire := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := toAnthropicContent(m.Content)
		if m.Role == RoleAssistant {
			wire = append(wire, anthropic.NewAssistantMessage(blocks...))
		} else {
			wire = append(wire, anthropic.NewUserMessage(blocks...))
		}
	}
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 4096,
		Messages:  wire,
		Tools:     toAnthropicTools(tools),
	})
	if err != nil {
		return Response{}, fmt.Errorf("navbrain: anthropic sendOnce: %w", err)
	}
	return fromAnthropicMessage(msg), nil
}

func fromAnthropicMessage(msg *anthropic.Message) Response {
	var text string
	var calls []ToolCall
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += variant.Text
		case anthropic.ToolUseBlock:
			calls = append(calls, ToolCall{
				Id:    variant.ID,
				Name:  variant.Name,
				Input: string(variant.Input),
			})
		}
	}
	return Response{
		Content:    text,
		ToolCalls:  calls,
		StopReason: anthropicStopReason(string(msg.StopReason)),
		Usage: &Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func anthropicStopReason(reason string) StopReason {
	switch reason {
	case "max_tokens":
		return StopMaxTokens
	case "tool_use":
		return StopToolUse
	case "stop_sequence":
		return StopSequence
	default:
		return StopEndTurn
	}
}
