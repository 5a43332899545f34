package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider for any OpenAI-compatible endpoint.
// It serves as the fallback backend; tool calling is disabled unless the
// deployment opts in, since many compatible endpoints mishandle it.
type OpenAIProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
	tools        bool
	retryConfig  RetryConfig
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(apiKey, baseURL, defaultModel string, tools bool) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient.Timeout = 120 * time.Second
	if defaultModel == "" {
		defaultModel = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(cfg),
		name:         "openai",
		defaultModel: defaultModel,
		tools:        tools,
		retryConfig:  DefaultRetryConfig(),
	}
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }
func (p *OpenAIProvider) SupportsTools() bool  { return p.tools }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	ccr := openai.ChatCompletionRequest{
		Model:    model,
		Messages: p.convertMessages(req),
	}
	if req.MaxTokens > 0 {
		ccr.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		ccr.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		if !p.tools {
			return nil, fmt.Errorf("openai: tool calling disabled for this backend")
		}
		ccr.Tools = convertTools(req.Tools)
	}

	resp, err := RetryDo(ctx, p.retryConfig, func() (openai.ChatCompletionResponse, error) {
		r, err := p.client.CreateChatCompletion(ctx, ccr)
		if err != nil {
			return r, wrapOpenAIError(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai: chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty response")
	}

	choice := resp.Choices[0]
	out := &ChatResponse{
		Content: choice.Message.Content,
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if resp.Usage.PromptTokensDetails != nil {
		out.Usage.CacheReadTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}

	for _, tc := range choice.Message.ToolCalls {
		args := make(map[string]interface{})
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		id := tc.ID
		if id == "" {
			// Some compatible endpoints omit tool call ids; results must
			// still pair with a call.
			id = uuid.NewString()
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	switch choice.FinishReason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		out.FinishReason = FinishToolCalls
	case openai.FinishReasonLength:
		out.FinishReason = FinishLength
	default:
		out.FinishReason = FinishStop
	}
	return out, nil
}

func (p *OpenAIProvider) convertMessages(req ChatRequest) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage

	// Prompt caching is provider-managed here; the blocks collapse into one
	// system message.
	if len(req.System) > 0 {
		var sb strings.Builder
		for i, b := range req.System {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(b.Text)
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: sb.String(),
		})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			if len(m.Images) > 0 {
				var parts []openai.ChatMessagePart
				for _, img := range m.Images {
					parts = append(parts, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Data),
						},
					})
				}
				if m.Content != "" {
					parts = append(parts, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: m.Content,
					})
				}
				msgs = append(msgs, openai.ChatCompletionMessage{
					Role:         openai.ChatMessageRoleUser,
					MultiContent: parts,
				})
			} else {
				msgs = append(msgs, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleUser,
					Content: m.Content,
				})
			}

		case "assistant":
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			msgs = append(msgs, msg)

		case "tool":
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return msgs
}

func convertTools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		params, _ := json.Marshal(t.Parameters)
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(params),
			},
		}
	}
	return out
}

// wrapOpenAIError maps go-openai API errors onto HTTPError so RetryDo can
// tell transient failures from permanent ones.
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	return err
}
