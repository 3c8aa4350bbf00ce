package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// OpenAIProvider is the native-OpenAI-style row of spec.md §4.C4's
// capability matrix: tool calling, images, and streaming, with
// function-call naming conventions distinct from Anthropic's.
type OpenAIProvider struct {
	client openai.Client
	model  shared.ChatModel
	label  string

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

// NewOpenAIProvider constructs a provider around an API key and model.
func NewOpenAIProvider(apiKey string, model shared.ChatModel, label string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		label:  label,
	}
}

func (p *OpenAIProvider) Name() string { return p.label }
func (p *OpenAIProvider) SupportsTools() bool { return true }
func (p *OpenAIProvider) SupportsImages() bool { return true }
func (p *OpenAIProvider) SupportsStreaming() bool { return true }

func toOpenAIUserMessage(content Content) openai.ChatCompletionMessageParamUnion {
	if len(content.Images) == 0 {
		return openai.UserMessage(content.Text)
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, 1+len(content.Images))
	if content.Text != "" {
		parts = append(parts, openai.TextContentPart(content.Text))
	}
	for _, img := range content.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:image/png;base64," + img.PNGBase64,
		}))
	}
	return openai.UserMessage(parts)
}

func (p *OpenAIProvider) AddUserMessage(content Content) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, toOpenAIUserMessage(content))
}

func (p *OpenAIProvider) AddAssistantMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, openai.AssistantMessage(text))
}

// AddToolResult maps directly onto OpenAI's native tool-message shape,
// which is already keyed by tool_call_id.
func (p *OpenAIProvider) AddToolResult(toolUseId, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, openai.ToolMessage(text, toolUseId))
}

func (p *OpenAIProvider) ClearHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
}

func toOpenAITools(tools []Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema, _ := json.Marshal(t.InputSchema)
		var params shared.FunctionParameters
		_ = json.Unmarshal(schema, &params)
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  params,
		}))
	}
	return out
}

func (p *OpenAIProvider) Send(ctx context.Context, tools []Tool) (Response, error) {
	p.mu.Lock()
	messages := append([]openai.ChatCompletionMessageParamUnion(nil), p.history...)
	p.mu.Unlock()

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
		Tools:    toOpenAITools(tools),
	})
	if err != nil {
		return Response{}, fmt.Errorf("navbrain: openai send: %w", err)
	}
	resp := fromOpenAICompletion(completion)
	p.AddAssistantMessage(resp.Content)
	return resp, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, tools []Tool) (<-chan Chunk, error) {
	p.mu.Lock()
	messages := append([]openai.ChatCompletionMessageParamUnion(nil), p.history...)
	p.mu.Unlock()

	stream := p.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
		Tools:    toOpenAITools(tools),
	})

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		var full string
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 {
				if delta := chunk.Choices[0].Delta.Content; delta != "" {
					full += delta
					ch <- Chunk{Delta: delta}
				}
			}
		}
		p.AddAssistantMessage(full)
		ch <- Chunk{Done: true}
	}()
	return ch, nil
}

func (p *OpenAIProvider) SendOnce(ctx context.Context, messages []Message, tools []Tool) (Response, error) {
	wire := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			wire = append(wire, openai.AssistantMessage(m.Content.Text))
		case RoleSystem:
			wire = append(wire, openai.SystemMessage(m.Content.Text))
		default:
			wire = append(wire, toOpenAIUserMessage(m.Content))
		}
	}
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: wire,
		Tools:    toOpenAITools(tools),
	})
	if err != nil {
		return Response{}, fmt.Errorf("navbrain: openai sendOnce: %w", err)
	}
	return fromOpenAICompletion(completion), nil
}

func fromOpenAICompletion(completion *openai.ChatCompletion) Response {
	if len(completion.Choices) == 0 {
		return Response{StopReason: StopEndTurn}
	}
	choice := completion.Choices[0]
	calls := make([]ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, ToolCall{
			Id:    tc.ID,
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}
	return Response{
		Content:    choice.Message.Content,
		ToolCalls:  calls,
		StopReason: openaiStopReason(choice.FinishReason),
		Usage: &Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
}

func openaiStopReason(reason string) StopReason {
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
